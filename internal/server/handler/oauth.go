package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadlift/leadlift/internal/google"
	"github.com/leadlift/leadlift/internal/server/db"
)

// HandleConnect handles GET /v1/google/connect.
// Redirects the caller into the Google consent flow with an HMAC-signed
// state carrying their identity.
func HandleConnect(vault *google.Vault) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, tenantID := identity(c)
		c.Redirect(http.StatusFound, vault.AuthURL(userID, tenantID))
	}
}

// HandleCallback handles GET /v1/google/callback.
// No identity headers here — Google redirects the bare browser; the signed
// state is what ties the code back to a (user, tenant) pair.
func HandleCallback(vault *google.Vault) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Query("code")
		state := c.Query("state")
		if code == "" || state == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
			return
		}

		userID, tenantID, err := vault.VerifyState(state)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired OAuth state: " + err.Error()})
			return
		}

		token, email, err := vault.Exchange(c.Request.Context(), code)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := vault.StoreGrant(userID, tenantID, token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "connected",
			"email":     email,
			"tenant_id": tenantID,
		})
	}
}

// HandleStatus handles GET /v1/google/status.
// Reports which scopes hold a stored credential for the caller. An empty
// list is the "please connect your account" state, not an error.
func HandleStatus(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, tenantID := identity(c)
		scopes, err := store.ListConnectedScopes(userID, tenantID, google.Provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if scopes == nil {
			scopes = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"connected_scopes": scopes})
	}
}

// HandleRevoke handles DELETE /v1/google/credentials.
func HandleRevoke(vault *google.Vault) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := identity(c)
		if err := vault.Revoke(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "revoked"})
	}
}
