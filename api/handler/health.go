package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/models"
)

// PoolReporter is implemented by engines with a browser page pool.
type PoolReporter interface {
	ActivePages() int
	MaxPages() int
}

// Health returns a handler for GET /api/v1/health.
//
// Degrades status when more than 80% of the browser pages are in use.
// pool and cached may be nil.
func Health(engineName string, pool PoolReporter, cached func() int, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.PoolStats
		if pool != nil {
			stats = models.PoolStats{MaxPages: pool.MaxPages(), ActivePages: pool.ActivePages()}
		}

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		resp := models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Engine:    engineName,
			PoolStats: stats,
			Version:   "0.1.0",
		}
		if cached != nil {
			resp.Cached = cached()
		}
		c.JSON(http.StatusOK, resp)
	}
}
