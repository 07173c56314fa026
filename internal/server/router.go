package server

import (
	"github.com/gin-gonic/gin"

	"github.com/leadlift/leadlift/internal/google"
	"github.com/leadlift/leadlift/internal/server/db"
	"github.com/leadlift/leadlift/internal/server/handler"
)

// NewRouter creates and configures the Gin router with all routes.
func NewRouter(store *db.Store, cfg *Config) *gin.Engine {
	vault := google.NewVault(store, cfg.MasterKey, google.VaultOptions{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.BaseURL + "/v1/google/callback",
		Protect:      cfg.Protect,
	})
	ads := &google.AdsClient{
		DeveloperToken:  cfg.AdsDeveloperToken,
		LoginCustomerID: cfg.AdsLoginCustomerID,
	}
	return NewRouterWith(store, cfg, google.NewOrchestrator(store, vault, ads))
}

// NewRouterWith builds the router around a pre-wired orchestrator. Tests use
// it to inject an orchestrator whose clients point at fake endpoints.
func NewRouterWith(store *db.Store, cfg *Config, orch *google.Orchestrator) *gin.Engine {
	r := gin.Default()

	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}

	r.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})

	admin := AdminAuth(cfg.AdminToken)
	ident := RequireIdentity()

	v1 := r.Group("/v1")
	{
		// OAuth callback carries no identity headers; the signed state is
		// the only thing tying it back to a caller.
		v1.GET("/google/callback", handler.HandleCallback(orch.Vault))

		// Consent and credential lifecycle
		v1.GET("/google/connect", ident, handler.HandleConnect(orch.Vault))
		v1.GET("/google/status", ident, handler.HandleStatus(store))
		v1.DELETE("/google/credentials", ident, handler.HandleRevoke(orch.Vault))

		// Remote account discovery
		v1.GET("/google/accounts", ident, handler.HandleListAccounts(orch))

		// GA4 provisioning for the tenant
		v1.POST("/google/analytics", ident, handler.HandleProvisionAnalytics(orch))

		// Tracking definitions
		v1.POST("/trackings", ident, handler.HandleCreateTracking(store))
		v1.GET("/trackings", ident, handler.HandleListTrackings(store))
		v1.GET("/trackings/:id", ident, handler.HandleGetTracking(store))
		v1.POST("/trackings/:id/provision", ident, handler.HandleProvisionTracking(orch))
		v1.POST("/trackings/:id/conversion", ident, handler.HandleEnsureConversion(orch))
		v1.DELETE("/trackings/:id", ident, handler.HandleDeleteTracking(orch))

		// Tenant administration
		v1.POST("/tenants", admin, handler.HandleCreateTenant(store))
		v1.GET("/tenants", admin, handler.HandleListTenants(store))
	}

	return r
}
