package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadlift/leadlift/internal/google"
)

// identity returns the caller identity placed in the context by the
// server's RequireIdentity middleware.
func identity(c *gin.Context) (userID, tenantID string) {
	return c.GetString("user_id"), c.GetString("tenant_id")
}

// kindStatus maps the provisioning error taxonomy onto HTTP statuses. The
// kind is always included in the body so the CRUD layer can decide between
// a retry button, a reconnect prompt, or a permanent failure state.
func kindStatus(k google.Kind) int {
	switch k {
	case google.KindNotConnected:
		return http.StatusPreconditionFailed
	case google.KindCredentialInvalid:
		return http.StatusUnauthorized
	case google.KindTransient:
		return http.StatusBadGateway
	case google.KindConflict:
		return http.StatusConflict
	case google.KindRejected:
		return http.StatusUnprocessableEntity
	case google.KindPropagationPending:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	writeErrorWith(c, err, nil)
}

// writeErrorWith is writeError with extra body fields, for endpoints that
// return the affected record alongside the failure (a failed provisioning
// run still mutated the tracking's status and artifact ids).
func writeErrorWith(c *gin.Context, err error, extra gin.H) {
	body := gin.H{}
	for k, v := range extra {
		body[k] = v
	}
	var gerr *google.Error
	if errors.As(err, &gerr) {
		body["error"] = gerr.Error()
		body["kind"] = gerr.Kind.String()
		c.JSON(kindStatus(gerr.Kind), body)
		return
	}
	body["error"] = err.Error()
	c.JSON(http.StatusInternalServerError, body)
}
