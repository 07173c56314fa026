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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const duplicateNameBody = `{
  "error": {
    "code": 400,
    "message": "The specified conversion action name already exists.",
    "status": "INVALID_ARGUMENT",
    "details": [{
      "errors": [{
        "errorCode": {"conversionActionError": "DUPLICATE_NAME"},
        "message": "The specified conversion action name already exists."
      }]
    }]
  }
}`

// fakeAdsAction is the remote side of one conversion action, with a
// controllable propagation delay for its tag snippet.
type fakeAdsAction struct {
	resourceName string
	name         string
	// snippetAfter is the search count at which the event snippet becomes
	// visible; 0 means immediately, a negative value means never.
	snippetAfter int
	label        string
}

type fakeAds struct {
	mu           sync.Mutex
	actions      map[string]*fakeAdsAction
	labels       map[string]string // label name → resource name
	searches     int
	mutates      int
	labelCreates int
}

func (f *fakeAds) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		assert.Equal(t, "dev-token", r.Header.Get("developer-token"))

		switch {
		case strings.HasSuffix(r.URL.Path, "/conversionActions:mutate"):
			f.mutates++
			var req struct {
				Operations []struct {
					Create struct {
						Name string `json:"name"`
					} `json:"create"`
				} `json:"operations"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Operations) == 0 {
				http.Error(w, "bad mutate body", http.StatusBadRequest)
				return
			}
			name := req.Operations[0].Create.Name
			if _, exists := f.actions[name]; exists {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(duplicateNameBody))
				return
			}
			a := &fakeAdsAction{
				resourceName: fmt.Sprintf("customers/123/conversionActions/%d", len(f.actions)+1),
				name:         name,
				label:        "AbC-dEf1",
			}
			f.actions[name] = a
			fmt.Fprintf(w, `{"results":[{"resourceName":"%s"}]}`, a.resourceName)

		case strings.HasSuffix(r.URL.Path, "/labels:mutate"):
			var req struct {
				Operations []struct {
					Create struct {
						Name string `json:"name"`
					} `json:"create"`
				} `json:"operations"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Operations) == 0 {
				http.Error(w, "bad mutate body", http.StatusBadRequest)
				return
			}
			name := req.Operations[0].Create.Name
			if _, exists := f.labels[name]; exists {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(duplicateNameBody))
				return
			}
			f.labelCreates++
			rn := fmt.Sprintf("customers/123/labels/%d", f.labelCreates)
			f.labels[name] = rn
			fmt.Fprintf(w, `{"results":[{"resourceName":"%s"}]}`, rn)

		case strings.HasSuffix(r.URL.Path, "/googleAds:searchStream"):
			var req struct {
				Query string `json:"query"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad search body", http.StatusBadRequest)
				return
			}
			if strings.Contains(req.Query, "FROM label") {
				var rows []string
				for name, rn := range f.labels {
					row, _ := json.Marshal(map[string]any{
						"label": map[string]string{"resourceName": rn, "name": name},
					})
					rows = append(rows, string(row))
				}
				fmt.Fprintf(w, `[{"results":[%s]}]`, strings.Join(rows, ","))
				return
			}
			f.searches++
			var rows []string
			for _, a := range f.actions {
				snippet := ""
				if a.snippetAfter >= 0 && f.searches > a.snippetAfter {
					snippet = fmt.Sprintf(`gtag('event', 'conversion', {'send_to': 'AW-123/%s'});`, a.label)
				}
				row, _ := json.Marshal(map[string]any{
					"conversionAction": map[string]any{
						"resourceName": a.resourceName,
						"name":         a.name,
						"tagSnippets": []map[string]string{
							{"type": "WEBPAGE", "pageFormat": "HTML", "eventSnippet": snippet},
						},
					},
				})
				rows = append(rows, string(row))
			}
			fmt.Fprintf(w, `[{"results":[%s]}]`, strings.Join(rows, ","))

		default:
			t.Errorf("unexpected ads request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newFakeAds(t *testing.T) (*fakeAds, *AdsClient) {
	t.Helper()
	f := &fakeAds{actions: make(map[string]*fakeAdsAction), labels: make(map[string]string)}
	ts := httptest.NewServer(f.handler(t))
	t.Cleanup(ts.Close)
	return f, &AdsClient{Endpoint: ts.URL, DeveloperToken: "dev-token"}
}

func testRegistrar(ads *AdsClient) *Registrar {
	return &Registrar{Ads: ads, LabelAttempts: 3, LabelDelay: time.Millisecond}
}

func TestEnsureConversionActionCreatesAndResolvesLabel(t *testing.T) {
	store := newTestStore(t)
	vault := newTestVault(t, store, VaultOptions{})
	live := seedLive(t, store, vault, "u1", "t1", ScopeAds)

	fake, ads := newFakeAds(t)
	reg := testRegistrar(ads)

	conv, err := reg.EnsureConversionAction(context.Background(), live, "123", "Leadlift - Acme")
	require.NoError(t, err)
	assert.Equal(t, "customers/123/conversionActions/1", conv.ResourceName)
	assert.Equal(t, "AbC-dEf1", conv.Label)
	assert.Equal(t, 1, fake.mutates)
}

func TestEnsureConversionActionDuplicateAdopted(t *testing.T) {
	store := newTestStore(t)
	vault := newTestVault(t, store, VaultOptions{})
	live := seedLive(t, store, vault, "u1", "t1", ScopeAds)

	fake, ads := newFakeAds(t)
	// The action already exists remotely, label fully propagated.
	fake.actions["Purchase"] = &fakeAdsAction{
		resourceName: "customers/123/conversionActions/77",
		name:         "Purchase",
		label:        "ExIsTiNg",
	}

	reg := testRegistrar(ads)
	conv, err := reg.EnsureConversionAction(context.Background(), live, "123", "Purchase")
	require.NoError(t, err)
	assert.Equal(t, "customers/123/conversionActions/77", conv.ResourceName)
	assert.Equal(t, "ExIsTiNg", conv.Label)
}

func TestEnsureConversionActionLabelAppearsOnRetry(t *testing.T) {
	store := newTestStore(t)
	vault := newTestVault(t, store, VaultOptions{})
	live := seedLive(t, store, vault, "u1", "t1", ScopeAds)

	fake, ads := newFakeAds(t)
	reg := testRegistrar(ads)

	// Make the snippet visible only from the third search on.
	fake.mu.Lock()
	fake.actions["Leadlift - Acme"] = &fakeAdsAction{
		resourceName: "customers/123/conversionActions/5",
		name:         "Leadlift - Acme",
		snippetAfter: 2,
		label:        "LaTeLbL",
	}
	fake.mu.Unlock()

	conv, err := reg.EnsureConversionAction(context.Background(), live, "123", "Leadlift - Acme")
	require.NoError(t, err)
	assert.Equal(t, "LaTeLbL", conv.Label)
	assert.GreaterOrEqual(t, fake.searches, 3)
}

func TestEnsureConversionActionPropagationPending(t *testing.T) {
	store := newTestStore(t)
	vault := newTestVault(t, store, VaultOptions{})
	live := seedLive(t, store, vault, "u1", "t1", ScopeAds)

	fake, ads := newFakeAds(t)
	fake.mu.Lock()
	fake.actions["Leadlift - Acme"] = &fakeAdsAction{
		resourceName: "customers/123/conversionActions/9",
		name:         "Leadlift - Acme",
		snippetAfter: -1, // never propagates
	}
	fake.mu.Unlock()

	reg := testRegistrar(ads)
	conv, err := reg.EnsureConversionAction(context.Background(), live, "123", "Leadlift - Acme")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPropagationPending), "got %v", err)
	require.NotNil(t, conv)
	assert.Equal(t, "customers/123/conversionActions/9", conv.ResourceName)
	assert.Empty(t, conv.Label)

	// The retry is bounded: the duplicate lookup plus exactly three label
	// fetch attempts.
	assert.Equal(t, 4, fake.searches)
}

func TestAdsErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, KindCredentialInvalid},
		{"rate limited", http.StatusTooManyRequests, `{}`, KindTransient},
		{"server error", http.StatusInternalServerError, `{}`, KindTransient},
		{"permission denied", http.StatusForbidden, `{"error":{"message":"no developer token"}}`, KindRejected},
		{"duplicate name", http.StatusBadRequest, duplicateNameBody, KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			ads := &AdsClient{Endpoint: ts.URL, DeveloperToken: "dev-token"}
			_, err := ads.FindLabel(context.Background(), http.DefaultClient, "123", "Leadlift - Acme")
			require.Error(t, err)
			assert.True(t, IsKind(err, tc.kind), "want %v, got %v", tc.kind, err)
		})
	}
}

func TestListAccessibleCustomers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v17/customers:listAccessibleCustomers", r.URL.Path)
		w.Write([]byte(`{"resourceNames":["customers/111","customers/222"]}`))
	}))
	defer ts.Close()

	ads := &AdsClient{Endpoint: ts.URL, DeveloperToken: "dev-token"}
	ids, err := ads.ListAccessibleCustomers(context.Background(), http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, ids)
}
