package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/leadlift/leadlift/internal/crypto"
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	AdminToken  string
	MasterKey   [32]byte
	DBPath      string
	ListenAddr  string
	BaseURL     string
	CORSOrigins []string

	GoogleClientID     string
	GoogleClientSecret string
	AdsDeveloperToken  string
	AdsLoginCustomerID string

	// Protect, when set, registers secret values with the log masker.
	// Wired by main, not the environment.
	Protect func(values ...string)
}

// LoadConfig loads server configuration from environment variables.
func LoadConfig() (*Config, error) {
	adminToken := os.Getenv("LEADLIFT_ADMIN_TOKEN")
	if adminToken == "" {
		return nil, fmt.Errorf("LEADLIFT_ADMIN_TOKEN is required")
	}
	if len(adminToken) < 16 {
		return nil, fmt.Errorf("LEADLIFT_ADMIN_TOKEN must be at least 16 characters")
	}

	masterKeyHex := os.Getenv("LEADLIFT_MASTER_KEY")
	if masterKeyHex == "" {
		return nil, fmt.Errorf("LEADLIFT_MASTER_KEY is required (64 hex chars)")
	}
	masterKey, err := crypto.ParseMasterKey(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("LEADLIFT_MASTER_KEY: %w", err)
	}

	clientID := os.Getenv("LEADLIFT_GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("LEADLIFT_GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("LEADLIFT_GOOGLE_CLIENT_ID and LEADLIFT_GOOGLE_CLIENT_SECRET are required")
	}

	dbPath := os.Getenv("LEADLIFT_DB_PATH")
	if dbPath == "" {
		dbPath = "leadlift.db"
	}

	listenAddr := os.Getenv("LEADLIFT_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	baseURL := strings.TrimRight(os.Getenv("LEADLIFT_BASE_URL"), "/")
	if baseURL == "" {
		baseURL = "http://localhost" + listenAddr
	}

	var corsOrigins []string
	if v := os.Getenv("LEADLIFT_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				corsOrigins = append(corsOrigins, o)
			}
		}
	}

	return &Config{
		AdminToken:  adminToken,
		MasterKey:   masterKey,
		DBPath:      dbPath,
		ListenAddr:  listenAddr,
		BaseURL:     baseURL,
		CORSOrigins: corsOrigins,

		GoogleClientID:     clientID,
		GoogleClientSecret: clientSecret,
		AdsDeveloperToken:  os.Getenv("LEADLIFT_ADS_DEVELOPER_TOKEN"),
		AdsLoginCustomerID: os.Getenv("LEADLIFT_ADS_LOGIN_CUSTOMER_ID"),
	}, nil
}
