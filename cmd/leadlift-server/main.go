package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/leadlift/leadlift/internal/logx"
	"github.com/leadlift/leadlift/internal/server"
	"github.com/leadlift/leadlift/internal/server/db"
	"github.com/leadlift/leadlift/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	verbose := flag.Bool("verbose", false, "Enable verbose debug logs (same as --log-level debug)")
	logLevel := flag.String("log-level", "", "Log level: debug|info|warn|error (or LEADLIFT_LOG_LEVEL)")
	flag.BoolVar(showVersion, "v", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\n", version.String("leadlift-server"))
		fmt.Fprintf(os.Stderr, "Leadlift server provisions Google tag, conversion and analytics resources for tenants.\n\n")
		fmt.Fprintf(os.Stderr, "Environment variables:\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_MASTER_KEY            Master encryption key (64 hex chars, required)\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_ADMIN_TOKEN           Admin Bearer token for management APIs (min 16 chars, required)\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_GOOGLE_CLIENT_ID      Google OAuth client id (required)\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_GOOGLE_CLIENT_SECRET  Google OAuth client secret (required)\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_ADS_DEVELOPER_TOKEN   Google Ads API developer token\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_ADS_LOGIN_CUSTOMER_ID Manager account id for Ads API calls\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_DB_PATH               SQLite database path (default: leadlift.db)\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_LISTEN_ADDR           Listen address (default: :8080)\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_BASE_URL              Public base URL for OAuth callbacks (default: http://localhost:<port>)\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_CORS_ORIGINS          Comma-separated allowed CORS origins\n")
		fmt.Fprintf(os.Stderr, "  LEADLIFT_LOG_LEVEL             Log level: debug|info|warn|error (default: info)\n")
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("leadlift-server"))
		os.Exit(0)
	}

	if err := logx.Configure(*logLevel, *verbose); err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Token material and app secrets must never hit the logs verbatim.
	masker := logx.NewMaskingWriter(os.Stderr)
	masker.Protect(cfg.AdminToken, cfg.GoogleClientSecret, cfg.AdsDeveloperToken)
	logx.SetOutput(masker)
	cfg.Protect = masker.Protect

	store, err := db.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer store.Close()

	r := server.NewRouter(store, cfg)
	logx.Infof("server config: base_url=%s db=%s", cfg.BaseURL, cfg.DBPath)

	log.Printf("leadlift-server listening on %s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
