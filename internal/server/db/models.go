package db

import (
	"strings"
	"time"
)

// Tenant is the multi-customer isolation unit. The ga_* columns are the
// persisted references to remote GA4 resources provisioned for it.
type Tenant struct {
	TenantID        string    `json:"tenant_id"`
	Name            string    `json:"name"`
	GAAccount       string    `json:"ga_account"`
	GAProperty      string    `json:"ga_property"`
	GADataStream    string    `json:"ga_data_stream"`
	GAMeasurementID string    `json:"ga_measurement_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Credential is one stored OAuth grant, keyed by
// (user_id, tenant_id, provider, scope). Token material is encrypted with
// the master key before it reaches this struct's *Encrypted fields.
type Credential struct {
	UserID           string     `json:"user_id"`
	TenantID         string     `json:"tenant_id"`
	Provider         string     `json:"provider"`
	Scope            string     `json:"scope"`
	AccessEncrypted  []byte     `json:"-"`
	RefreshEncrypted []byte     `json:"-"`
	Expiry           *time.Time `json:"expiry"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AdsLink ties a tenant to a Google Ads customer account, carrying the
// persisted reference to the tenant's label in that account.
type AdsLink struct {
	TenantID      string    `json:"tenant_id"`
	CustomerID    string    `json:"customer_id"`
	LabelResource string    `json:"label_resource"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tracking is one conversion-tracking definition plus the remote GTM/Ads
// artifact ids created for it and its provisioning state.
type Tracking struct {
	TrackingID      string    `json:"tracking_id"`
	TenantID        string    `json:"tenant_id"`
	Name            string    `json:"name"`
	EventName       string    `json:"event_name"`
	PagePath        string    `json:"page_path"`
	ServerContainer bool      `json:"server_container"`
	GTMAccount      string    `json:"gtm_account"`
	GTMContainer    string    `json:"gtm_container"`
	AdsCustomerID   string    `json:"ads_customer_id"`
	WorkspaceID     string    `json:"workspace_id"`
	VariableIDs     []string  `json:"variable_ids"`
	TriggerID       string    `json:"trigger_id"`
	TagIDs          []string  `json:"tag_ids"`
	ClientID        string    `json:"client_id"`
	VersionID       string    `json:"version_id"`
	ConversionRes   string    `json:"conversion_action"`
	ConversionLabel string    `json:"conversion_label"`
	Status          string    `json:"status"`
	LastError       string    `json:"last_error"`
	CreatedEntities int       `json:"created_entities"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Tracking provisioning states.
const (
	StatusPending         = "pending"
	StatusWorkspaceReady  = "workspace_ready"
	StatusTriggersCreated = "triggers_created"
	StatusTagsCreated     = "tags_created"
	StatusPublished       = "published"
	StatusActive          = "active"
	StatusLabelPending    = "label_pending"
	StatusFailed          = "failed"
)

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
