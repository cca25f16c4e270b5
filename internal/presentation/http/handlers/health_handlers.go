package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/performance"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
)

// HealthHandlers exposes liveness and performance introspection.
type HealthHandlers struct {
	db          *database.DB
	perfTracker *performance.Tracker
}

// NewHealthHandlers creates health handlers with injected dependencies
func NewHealthHandlers(db *database.DB, perfTracker *performance.Tracker) *HealthHandlers {
	return &HealthHandlers{db: db, perfTracker: perfTracker}
}

// GetHealth handles GET /api/v1/health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": h.perfTracker.Uptime().String(),
	})
}

// GetPerf handles GET /api/v1/admin/perf - operation timing stats
func (h *HealthHandlers) GetPerf(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime": h.perfTracker.Uptime().String(),
		"stats":  h.perfTracker.Stats(),
	})
}
