package db

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTenant(t *testing.T, s *Store, id, name string) {
	t.Helper()
	if err := s.CreateTenant(&Tenant{TenantID: id, Name: name}); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
}

func TestTenantCRUD(t *testing.T) {
	s := newTestStore(t)

	seedTenant(t, s, "t1", "Acme Flowers")

	got, err := s.GetTenant("t1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got == nil {
		t.Fatal("GetTenant returned nil")
	}
	if got.Name != "Acme Flowers" {
		t.Errorf("got tenant %+v", got)
	}

	if err := s.SetTenantProperty("t1", "accounts/42", "properties/99"); err != nil {
		t.Fatalf("SetTenantProperty: %v", err)
	}
	if err := s.SetTenantDataStream("t1", "properties/99/dataStreams/7", "G-ABC123"); err != nil {
		t.Fatalf("SetTenantDataStream: %v", err)
	}

	got, _ = s.GetTenant("t1")
	if got.GAProperty != "properties/99" || got.GAMeasurementID != "G-ABC123" {
		t.Errorf("analytics refs not persisted: %+v", got)
	}

	if err := s.ResetTenantAnalytics("t1"); err != nil {
		t.Fatalf("ResetTenantAnalytics: %v", err)
	}
	got, _ = s.GetTenant("t1")
	if got.GAProperty != "" || got.GADataStream != "" {
		t.Errorf("analytics refs not cleared: %+v", got)
	}

	// Not found
	got, err = s.GetTenant("nonexistent")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for nonexistent tenant")
	}
}

func TestCredentialUpsert(t *testing.T) {
	s := newTestStore(t)
	seedTenant(t, s, "t1", "Acme")

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	cred := &Credential{
		UserID:           "u1",
		TenantID:         "t1",
		Provider:         "google",
		Scope:            "ads",
		AccessEncrypted:  []byte("enc-access-1"),
		RefreshEncrypted: []byte("enc-refresh-1"),
		Expiry:           &exp,
	}

	if err := s.UpsertCredential(cred); err != nil {
		t.Fatalf("UpsertCredential: %v", err)
	}

	got, err := s.GetCredential("u1", "t1", "google", "ads")
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if got == nil {
		t.Fatal("GetCredential returned nil")
	}
	if string(got.AccessEncrypted) != "enc-access-1" || string(got.RefreshEncrypted) != "enc-refresh-1" {
		t.Errorf("got credential %+v", got)
	}
	if got.Expiry == nil {
		t.Fatal("expiry not persisted")
	}

	// Absence is nil, not an error
	got, err = s.GetCredential("u1", "t1", "google", "analytics")
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for unconnected scope")
	}
}

func TestCredentialUpsert_KeepsRefreshToken(t *testing.T) {
	s := newTestStore(t)
	seedTenant(t, s, "t1", "Acme")

	first := &Credential{
		UserID: "u1", TenantID: "t1", Provider: "google", Scope: "tag-manager",
		AccessEncrypted:  []byte("access-old"),
		RefreshEncrypted: []byte("refresh-original"),
	}
	if err := s.UpsertCredential(first); err != nil {
		t.Fatalf("UpsertCredential: %v", err)
	}

	// Token rotation without a reissued refresh token must not null it out.
	rotated := &Credential{
		UserID: "u1", TenantID: "t1", Provider: "google", Scope: "tag-manager",
		AccessEncrypted: []byte("access-new"),
	}
	if err := s.UpsertCredential(rotated); err != nil {
		t.Fatalf("UpsertCredential rotation: %v", err)
	}

	got, err := s.GetCredential("u1", "t1", "google", "tag-manager")
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if string(got.AccessEncrypted) != "access-new" {
		t.Errorf("access token not rotated: %q", got.AccessEncrypted)
	}
	if string(got.RefreshEncrypted) != "refresh-original" {
		t.Errorf("refresh token dropped on rotation: %q", got.RefreshEncrypted)
	}
}

func TestCredentialDeleteByUser(t *testing.T) {
	s := newTestStore(t)
	seedTenant(t, s, "t1", "Acme")
	seedTenant(t, s, "t2", "Globex")

	for _, scope := range []string{"tag-manager", "ads", "analytics"} {
		for _, tenant := range []string{"t1", "t2"} {
			err := s.UpsertCredential(&Credential{
				UserID: "u1", TenantID: tenant, Provider: "google", Scope: scope,
				AccessEncrypted: []byte("a"), RefreshEncrypted: []byte("r"),
			})
			if err != nil {
				t.Fatalf("UpsertCredential: %v", err)
			}
		}
	}

	creds, err := s.ListCredentialsByUser("u1")
	if err != nil {
		t.Fatalf("ListCredentialsByUser: %v", err)
	}
	if len(creds) != 6 {
		t.Fatalf("got %d credentials, want 6", len(creds))
	}

	scopes, err := s.ListConnectedScopes("u1", "t1", "google")
	if err != nil {
		t.Fatalf("ListConnectedScopes: %v", err)
	}
	if len(scopes) != 3 {
		t.Fatalf("got %d scopes, want 3", len(scopes))
	}

	if err := s.DeleteCredentialsByUser("u1"); err != nil {
		t.Fatalf("DeleteCredentialsByUser: %v", err)
	}
	creds, _ = s.ListCredentialsByUser("u1")
	if len(creds) != 0 {
		t.Fatalf("credentials remain after delete: %d", len(creds))
	}
}

func TestAdsLinkLabel(t *testing.T) {
	s := newTestStore(t)
	seedTenant(t, s, "t1", "Acme")

	if err := s.UpsertAdsLink(&AdsLink{TenantID: "t1", CustomerID: "1234567890"}); err != nil {
		t.Fatalf("UpsertAdsLink: %v", err)
	}

	if err := s.SetAdsLinkLabel("t1", "1234567890", "customers/1234567890/labels/55"); err != nil {
		t.Fatalf("SetAdsLinkLabel: %v", err)
	}

	// Re-upsert must not clobber the recorded label reference.
	if err := s.UpsertAdsLink(&AdsLink{TenantID: "t1", CustomerID: "1234567890"}); err != nil {
		t.Fatalf("UpsertAdsLink again: %v", err)
	}

	got, err := s.GetAdsLink("t1", "1234567890")
	if err != nil {
		t.Fatalf("GetAdsLink: %v", err)
	}
	if got.LabelResource != "customers/1234567890/labels/55" {
		t.Errorf("label reference lost: %+v", got)
	}

	links, err := s.ListAdsLinks("t1")
	if err != nil {
		t.Fatalf("ListAdsLinks: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links", len(links))
	}
}

func TestTrackingLifecycle(t *testing.T) {
	s := newTestStore(t)
	seedTenant(t, s, "t1", "Acme")

	tr := &Tracking{
		TrackingID:   "trk1",
		TenantID:     "t1",
		Name:         "Contact Form",
		EventName:    "generate_lead",
		PagePath:     "/thank-you",
		GTMAccount:   "600",
		GTMContainer: "700",
	}
	if err := s.CreateTracking(tr); err != nil {
		t.Fatalf("CreateTracking: %v", err)
	}

	got, err := s.GetTracking("trk1")
	if err != nil {
		t.Fatalf("GetTracking: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("new tracking status = %q", got.Status)
	}

	got.WorkspaceID = "10"
	got.VariableIDs = []string{"20", "21"}
	got.TriggerID = "30"
	got.TagIDs = []string{"40"}
	got.VersionID = "5"
	got.Status = StatusActive
	got.CreatedEntities = 4
	if err := s.UpdateTrackingArtifacts(got); err != nil {
		t.Fatalf("UpdateTrackingArtifacts: %v", err)
	}

	got, _ = s.GetTracking("trk1")
	if got.Status != StatusActive || got.TriggerID != "30" {
		t.Errorf("artifacts not persisted: %+v", got)
	}
	if len(got.VariableIDs) != 2 || got.VariableIDs[1] != "21" {
		t.Errorf("variable ids = %v", got.VariableIDs)
	}

	if err := s.SetTrackingConversion("trk1", "customers/1/conversionActions/2", "AbCdEf", StatusActive); err != nil {
		t.Fatalf("SetTrackingConversion: %v", err)
	}
	got, _ = s.GetTracking("trk1")
	if got.ConversionLabel != "AbCdEf" {
		t.Errorf("conversion label = %q", got.ConversionLabel)
	}

	list, err := s.ListTrackings("t1")
	if err != nil {
		t.Fatalf("ListTrackings: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d trackings", len(list))
	}

	if err := s.DeleteTracking("trk1"); err != nil {
		t.Fatalf("DeleteTracking: %v", err)
	}
	got, _ = s.GetTracking("trk1")
	if got != nil {
		t.Fatal("tracking remains after delete")
	}
}
