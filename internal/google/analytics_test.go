package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProperty struct {
	name        string
	displayName string
	parent      string
}

type fakeStream struct {
	name          string
	measurementID string
	defaultURI    string
}

// fakeAnalytics serves the Analytics Admin v1beta subset used for property
// and data stream provisioning.
type fakeAnalytics struct {
	mu             sync.Mutex
	properties     []*fakeProperty
	streams        map[string][]*fakeStream // property resource name → streams
	propertyCreate int
	streamCreate   int
}

func newFakeAnalytics(t *testing.T) (*fakeAnalytics, string) {
	t.Helper()
	f := &fakeAnalytics{streams: make(map[string][]*fakeStream)}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, ts.URL
}

func (f *fakeAnalytics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := strings.TrimPrefix(r.URL.Path, "/v1beta/")
	switch {
	case p == "properties" && r.Method == http.MethodGet:
		parent := strings.TrimPrefix(r.URL.Query().Get("filter"), "parent:")
		var out []map[string]string
		for _, prop := range f.properties {
			if prop.parent == parent {
				out = append(out, map[string]string{"name": prop.name, "displayName": prop.displayName})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"properties": out})

	case p == "properties" && r.Method == http.MethodPost:
		var body struct {
			Parent      string `json:"parent"`
			DisplayName string `json:"displayName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		f.propertyCreate++
		prop := &fakeProperty{
			name:        fmt.Sprintf("properties/%d", 100+f.propertyCreate),
			displayName: body.DisplayName,
			parent:      body.Parent,
		}
		f.properties = append(f.properties, prop)
		json.NewEncoder(w).Encode(map[string]string{"name": prop.name, "displayName": prop.displayName})

	case strings.HasSuffix(p, "/dataStreams") && r.Method == http.MethodGet:
		property := strings.TrimSuffix(p, "/dataStreams")
		var out []map[string]any
		for _, s := range f.streams[property] {
			out = append(out, map[string]any{
				"name": s.name,
				"type": "WEB_DATA_STREAM",
				"webStreamData": map[string]string{
					"measurementId": s.measurementID,
					"defaultUri":    s.defaultURI,
				},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"dataStreams": out})

	case strings.HasSuffix(p, "/dataStreams") && r.Method == http.MethodPost:
		property := strings.TrimSuffix(p, "/dataStreams")
		var body struct {
			WebStreamData struct {
				DefaultURI string `json:"defaultUri"`
			} `json:"webStreamData"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		f.streamCreate++
		s := &fakeStream{
			name:          fmt.Sprintf("%s/dataStreams/%d", property, f.streamCreate),
			measurementID: fmt.Sprintf("G-TEST%d", f.streamCreate),
			defaultURI:    body.WebStreamData.DefaultURI,
		}
		f.streams[property] = append(f.streams[property], s)
		json.NewEncoder(w).Encode(map[string]any{
			"name": s.name,
			"type": "WEB_DATA_STREAM",
			"webStreamData": map[string]string{
				"measurementId": s.measurementID,
				"defaultUri":    s.defaultURI,
			},
		})

	default:
		http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
	}
}

func TestEnsurePropertyCreatesAndPersists(t *testing.T) {
	store := newTestStore(t)
	vault := newTestVault(t, store, VaultOptions{})
	live := seedLive(t, store, vault, "u1", "t1", ScopeAnalytics)
	tenant := seedTestTenant(t, store, "t1", "Acme Flowers")

	fake, url := newFakeAnalytics(t)
	a := NewAnalytics(store)
	a.Endpoint = url

	prop, err := a.EnsureProperty(context.Background(), live, tenant, "42")
	require.NoError(t, err)
	assert.Equal(t, "properties/101", prop)
	assert.Equal(t, 1, fake.propertyCreate)

	stored, err := store.GetTenant("t1")
	require.NoError(t, err)
	assert.Equal(t, "accounts/42", stored.GAAccount)
	assert.Equal(t, "properties/101", stored.GAProperty)

	// Second call short-circuits on the local reference.
	prop, err = a.EnsureProperty(context.Background(), live, tenant, "42")
	require.NoError(t, err)
	assert.Equal(t, "properties/101", prop)
	assert.Equal(t, 1, fake.propertyCreate)
}

func TestEnsurePropertyAdoptsRemoteMatch(t *testing.T) {
	store := newTestStore(t)
	vault := newTestVault(t, store, VaultOptions{})
	live := seedLive(t, store, vault, "u1", "t1", ScopeAnalytics)
	tenant := seedTestTenant(t, store, "t1", "Acme Flowers")

	fake, url := newFakeAnalytics(t)
	// A previous run created the property but crashed before persisting.
	fake.properties = append(fake.properties, &fakeProperty{
		name:        "properties/777",
		displayName: ResourceName("Acme Flowers"),
		parent:      "accounts/42",
	})

	a := NewAnalytics(store)
	a.Endpoint = url

	prop, err := a.EnsureProperty(context.Background(), live, tenant, "42")
	require.NoError(t, err)
	assert.Equal(t, "properties/777", prop)
	assert.Equal(t, 0, fake.propertyCreate, "matching property must be adopted, not duplicated")
}

func TestEnsureWebStreamCreatesAndRecordsMeasurementID(t *testing.T) {
	store := newTestStore(t)
	vault := newTestVault(t, store, VaultOptions{})
	live := seedLive(t, store, vault, "u1", "t1", ScopeAnalytics)
	tenant := seedTestTenant(t, store, "t1", "Acme Flowers")

	fake, url := newFakeAnalytics(t)
	a := NewAnalytics(store)
	a.Endpoint = url

	_, err := a.EnsureProperty(context.Background(), live, tenant, "42")
	require.NoError(t, err)

	stream, measurementID, err := a.EnsureWebStream(context.Background(), live, tenant, "https://acme.example")
	require.NoError(t, err)
	assert.Equal(t, "properties/101/dataStreams/1", stream)
	assert.Equal(t, "G-TEST1", measurementID)
	assert.Equal(t, 1, fake.streamCreate)

	stored, err := store.GetTenant("t1")
	require.NoError(t, err)
	assert.Equal(t, stream, stored.GADataStream)
	assert.Equal(t, "G-TEST1", stored.GAMeasurementID)

	// Repeat provisioning resolves the same stream without creating another.
	stream2, mid2, err := a.EnsureWebStream(context.Background(), live, tenant, "https://acme.example")
	require.NoError(t, err)
	assert.Equal(t, stream, stream2)
	assert.Equal(t, "G-TEST1", mid2)
	assert.Equal(t, 1, fake.streamCreate)
}

func TestEnsureWebStreamAdoptsStreamForSameSite(t *testing.T) {
	store := newTestStore(t)
	vault := newTestVault(t, store, VaultOptions{})
	live := seedLive(t, store, vault, "u1", "t1", ScopeAnalytics)
	tenant := seedTestTenant(t, store, "t1", "Acme Flowers")
	require.NoError(t, store.SetTenantProperty("t1", "accounts/42", "properties/101"))
	tenant.GAAccount = "accounts/42"
	tenant.GAProperty = "properties/101"

	fake, url := newFakeAnalytics(t)
	fake.streams["properties/101"] = []*fakeStream{{
		name:          "properties/101/dataStreams/55",
		measurementID: "G-EXISTING",
		defaultURI:    "https://acme.example",
	}}

	a := NewAnalytics(store)
	a.Endpoint = url

	stream, measurementID, err := a.EnsureWebStream(context.Background(), live, tenant, "https://acme.example")
	require.NoError(t, err)
	assert.Equal(t, "properties/101/dataStreams/55", stream)
	assert.Equal(t, "G-EXISTING", measurementID)
	assert.Equal(t, 0, fake.streamCreate)
}

func TestEnsureWebStreamRequiresProperty(t *testing.T) {
	store := newTestStore(t)
	vault := newTestVault(t, store, VaultOptions{})
	live := seedLive(t, store, vault, "u1", "t1", ScopeAnalytics)
	tenant := seedTestTenant(t, store, "t1", "Acme Flowers")

	a := NewAnalytics(store)
	_, _, err := a.EnsureWebStream(context.Background(), live, tenant, "https://acme.example")
	require.Error(t, err)
}
