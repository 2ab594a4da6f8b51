package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/pkg/db"
	apperrors "github.com/dnspotify/server/pkg/errors"
	"github.com/dnspotify/server/pkg/httputil"
)

const readinessTimeout = 2 * time.Second

var errNotReady = apperrors.New("NOT_READY", "a dependency is unavailable", http.StatusServiceUnavailable)

// StatsSource reports runtime counters for /health.
type StatsSource interface {
	GetStats() map[string]interface{}
}

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	checker *db.HealthChecker
	stats   StatsSource
	started time.Time
}

// NewHealthHandler creates a HealthHandler. stats may be nil.
func NewHealthHandler(checker *db.HealthChecker, stats StatsSource) *HealthHandler {
	return &HealthHandler{checker: checker, stats: stats, started: time.Now()}
}

// Health always answers 200 while the process is up.
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.stats != nil {
		body["connections"] = h.stats.GetStats()
	}
	httputil.SuccessResponse(c, body)
}

// Ready probes every registered dependency and answers 503 if any fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.Check(c.Request.Context(), readinessTimeout)
	if !status.Healthy {
		httputil.ErrorResponseWithData(c, errNotReady, status)
		return
	}
	httputil.SuccessResponse(c, status)
}
