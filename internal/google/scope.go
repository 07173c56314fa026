// Package google provisions conversion-tracking infrastructure on a
// customer's Google accounts: Tag Manager tag graphs, Ads conversion
// actions, and GA4 properties. It holds per-user, per-tenant, per-scope
// OAuth credentials and creates remote resources idempotently.
package google

import "fmt"

// Provider is the only OAuth provider this package speaks to.
const Provider = "google"

// productName is the prefix of every deterministically named remote
// resource created by this system ("Leadlift - <Tenant>").
const productName = "Leadlift"

// Scope is one of the three Google capability domains a credential can
// cover. Each gets its own stored credential row even though a single
// consent grant covers all of them.
type Scope string

const (
	ScopeTagManager Scope = "tag-manager"
	ScopeAds        Scope = "ads"
	ScopeAnalytics  Scope = "analytics"
)

// AllScopes returns every scope the application manages, in the order the
// vault fans a grant out to.
func AllScopes() []Scope {
	return []Scope{ScopeTagManager, ScopeAds, ScopeAnalytics}
}

// ParseScope validates a scope string from the API surface.
func ParseScope(v string) (Scope, error) {
	switch Scope(v) {
	case ScopeTagManager, ScopeAds, ScopeAnalytics:
		return Scope(v), nil
	default:
		return "", fmt.Errorf("unknown scope %q (expected tag-manager|ads|analytics)", v)
	}
}

// oauthURLs returns the Google OAuth scope URLs a capability domain needs.
func (s Scope) oauthURLs() []string {
	switch s {
	case ScopeTagManager:
		return []string{
			"https://www.googleapis.com/auth/tagmanager.edit.containers",
			"https://www.googleapis.com/auth/tagmanager.edit.containerversions",
			"https://www.googleapis.com/auth/tagmanager.publish",
		}
	case ScopeAds:
		return []string{"https://www.googleapis.com/auth/adwords"}
	case ScopeAnalytics:
		return []string{"https://www.googleapis.com/auth/analytics.edit"}
	default:
		return nil
	}
}

// ConsentScopes is the full scope list requested during the OAuth consent
// flow: identity scopes plus every capability domain. One grant covers all
// of them; the vault fans it out to per-scope credential rows afterwards.
func ConsentScopes() []string {
	urls := []string{"openid", "email"}
	for _, s := range AllScopes() {
		urls = append(urls, s.oauthURLs()...)
	}
	return urls
}

// ResourceName derives the deterministic name used for every shared,
// tenant-scoped remote resource. The fixed convention is what makes
// search-before-create able to find resources left behind by earlier runs.
func ResourceName(tenantName string) string {
	return productName + " - " + tenantName
}
