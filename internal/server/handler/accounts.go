package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadlift/leadlift/internal/google"
)

// HandleListAccounts handles GET /v1/google/accounts?scope=.
// Returns the remote accounts reachable by the caller's credential for one
// scope. Per-account detail failures are dropped from the result, not
// escalated — partial data beats no data for a discovery listing.
func HandleListAccounts(orch *google.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, err := google.ParseScope(c.Query("scope"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID, tenantID := identity(c)

		accounts, err := orch.ListAccounts(c.Request.Context(), userID, tenantID, scope)
		if err != nil {
			writeError(c, err)
			return
		}
		if accounts == nil {
			accounts = []google.AccountSummary{}
		}
		c.JSON(http.StatusOK, gin.H{"accounts": accounts})
	}
}

// HandleProvisionAnalytics handles POST /v1/google/analytics.
// Ensures the tenant's GA4 property and web data stream exist under the
// chosen account.
func HandleProvisionAnalytics(orch *google.Orchestrator) gin.HandlerFunc {
	type request struct {
		AccountID string `json:"account_id" binding:"required"`
		SiteURL   string `json:"site_url" binding:"required"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID, tenantID := identity(c)

		tenant, err := orch.ProvisionAnalytics(c.Request.Context(), userID, tenantID, req.AccountID, req.SiteURL)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, tenant)
	}
}
