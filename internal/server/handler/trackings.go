package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/leadlift/leadlift/internal/google"
	"github.com/leadlift/leadlift/internal/server/db"
)

// HandleCreateTracking handles POST /v1/trackings. Creating a definition
// only records it locally; provisioning is a separate, explicit step.
func HandleCreateTracking(store *db.Store) gin.HandlerFunc {
	type request struct {
		Name            string `json:"name" binding:"required"`
		EventName       string `json:"event_name"`
		PagePath        string `json:"page_path"`
		ServerContainer bool   `json:"server_container"`
		GTMAccount      string `json:"gtm_account" binding:"required"`
		GTMContainer    string `json:"gtm_container" binding:"required"`
		AdsCustomerID   string `json:"ads_customer_id"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.EventName == "" && req.PagePath == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "one of event_name or page_path is required"})
			return
		}
		_, tenantID := identity(c)

		tr := &db.Tracking{
			TrackingID:      uuid.NewString(),
			TenantID:        tenantID,
			Name:            req.Name,
			EventName:       req.EventName,
			PagePath:        req.PagePath,
			ServerContainer: req.ServerContainer,
			GTMAccount:      req.GTMAccount,
			GTMContainer:    req.GTMContainer,
			AdsCustomerID:   req.AdsCustomerID,
			Status:          db.StatusPending,
		}
		if err := store.CreateTracking(tr); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, tr)
	}
}

// HandleListTrackings handles GET /v1/trackings.
func HandleListTrackings(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, tenantID := identity(c)
		trackings, err := store.ListTrackings(tenantID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if trackings == nil {
			trackings = []*db.Tracking{}
		}
		c.JSON(http.StatusOK, gin.H{"trackings": trackings})
	}
}

// HandleGetTracking handles GET /v1/trackings/:id.
func HandleGetTracking(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, tenantID := identity(c)
		tr, err := store.GetTracking(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if tr == nil || tr.TenantID != tenantID {
			c.JSON(http.StatusNotFound, gin.H{"error": "tracking not found"})
			return
		}
		c.JSON(http.StatusOK, tr)
	}
}

// HandleProvisionTracking handles POST /v1/trackings/:id/provision.
// Safe to re-run: already-created remote entities are adopted, not
// duplicated. A pending conversion label yields 202 with the parked
// tracking; everything else either completes or reports why it stopped.
func HandleProvisionTracking(orch *google.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, tenantID := identity(c)
		tr, err := requireTracking(c, orch.Store, tenantID)
		if tr == nil {
			return
		}

		tr, err = orch.ProvisionTracking(c.Request.Context(), userID, tr.TrackingID)
		if google.IsKind(err, google.KindPropagationPending) {
			c.JSON(http.StatusAccepted, tr)
			return
		}
		if err != nil {
			writeErrorWith(c, err, gin.H{"tracking": tr})
			return
		}
		c.JSON(http.StatusOK, tr)
	}
}

// HandleEnsureConversion handles POST /v1/trackings/:id/conversion — the
// deferred retry after a label_pending provisioning outcome.
func HandleEnsureConversion(orch *google.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, tenantID := identity(c)
		tr, err := requireTracking(c, orch.Store, tenantID)
		if tr == nil {
			return
		}

		tr, err = orch.EnsureConversion(c.Request.Context(), userID, tr.TrackingID)
		if google.IsKind(err, google.KindPropagationPending) {
			c.JSON(http.StatusAccepted, tr)
			return
		}
		if err != nil {
			writeErrorWith(c, err, gin.H{"tracking": tr})
			return
		}
		c.JSON(http.StatusOK, tr)
	}
}

// HandleDeleteTracking handles DELETE /v1/trackings/:id.
func HandleDeleteTracking(orch *google.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, tenantID := identity(c)
		tr, _ := requireTracking(c, orch.Store, tenantID)
		if tr == nil {
			return
		}

		if err := orch.DeleteTracking(c.Request.Context(), userID, tr.TrackingID); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

// requireTracking loads the tracking and enforces tenant ownership, writing
// the error response itself when the row is missing or foreign.
func requireTracking(c *gin.Context, store *db.Store, tenantID string) (*db.Tracking, error) {
	tr, err := store.GetTracking(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, err
	}
	if tr == nil || tr.TenantID != tenantID {
		c.JSON(http.StatusNotFound, gin.H{"error": "tracking not found"})
		return nil, nil
	}
	return tr, nil
}
