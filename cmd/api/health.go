package api

import (
	"net/http"

	"mailagent-backend/internal/credential"
	"mailagent-backend/internal/dispatch"
	"mailagent-backend/internal/email/listener"

	"github.com/gin-gonic/gin"
)

// HealthSources supplies the status snapshots reported by /health. Nil
// sources are left out of the response.
type HealthSources struct {
	Credential func() credential.Status
	Listener   func() listener.Status
	Dispatcher func() dispatch.Stats
}

// HealthHandler reports background state
type HealthHandler struct {
	sources HealthSources
}

// NewHealthHandler creates a HealthHandler
func NewHealthHandler(sources HealthSources) *HealthHandler {
	return &HealthHandler{sources: sources}
}

// Health answers 503 while the mail credential is expired
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	body := gin.H{}

	if h.sources.Credential != nil {
		cred := h.sources.Credential()
		body["credential"] = cred
		if cred.State == credential.StateExpired {
			status = "credential_expired"
			code = http.StatusServiceUnavailable
		}
	}
	if h.sources.Listener != nil {
		l := h.sources.Listener()
		body["listener"] = l
		if l.State == listener.StateStopped && status == "ok" {
			status = "degraded"
		}
	}
	if h.sources.Dispatcher != nil {
		body["dispatcher"] = h.sources.Dispatcher()
	}

	body["status"] = status
	c.JSON(code, body)
}
