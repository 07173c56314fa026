package google

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/leadlift/leadlift/internal/server/db"
)

var testKey = [32]byte{
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16,
	17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32,
}

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestVault(t *testing.T, store *db.Store, opts VaultOptions) *Vault {
	t.Helper()
	if opts.ClientID == "" {
		opts.ClientID = "test-client"
		opts.ClientSecret = "test-secret"
		opts.RedirectURL = "http://localhost/v1/google/callback"
	}
	if opts.Endpoint.TokenURL == "" {
		// Refresh must never reach the real provider from a test.
		opts.Endpoint = oauth2.Endpoint{
			AuthURL:  "http://invalid.invalid/auth",
			TokenURL: "http://invalid.invalid/token",
		}
	}
	return NewVault(store, testKey, opts)
}

// seedLive stores a grant with a still-valid access token and returns the
// live credential for one scope. The fresh expiry keeps Token() off the
// refresh path.
func seedLive(t *testing.T, store *db.Store, vault *Vault, userID, tenantID string, scope Scope) *Live {
	t.Helper()
	err := vault.StoreGrant(userID, tenantID, &oauth2.Token{
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		Expiry:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	live, err := vault.Live(userID, tenantID, scope)
	require.NoError(t, err)
	return live
}

func seedTestTenant(t *testing.T, store *db.Store, id, name string) *db.Tenant {
	t.Helper()
	tenant := &db.Tenant{TenantID: id, Name: name}
	require.NoError(t, store.CreateTenant(tenant))
	return tenant
}
