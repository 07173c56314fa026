package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/leadlift/leadlift/internal/server/db"
)

// HandleCreateTenant handles POST /v1/tenants (admin).
func HandleCreateTenant(store *db.Store) gin.HandlerFunc {
	type request struct {
		TenantID string `json:"tenant_id"`
		Name     string `json:"name" binding:"required"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.TenantID == "" {
			req.TenantID = uuid.NewString()
		}
		tenant := &db.Tenant{TenantID: req.TenantID, Name: req.Name}
		if err := store.CreateTenant(tenant); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, tenant)
	}
}

// HandleListTenants handles GET /v1/tenants (admin).
func HandleListTenants(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenants, err := store.ListTenants()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if tenants == nil {
			tenants = []*db.Tenant{}
		}
		c.JSON(http.StatusOK, gin.H{"tenants": tenants})
	}
}
