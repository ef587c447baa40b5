package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/api/middleware"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/sites"
)

// Deps are the components the HTTP API serves.
type Deps struct {
	Registry *sites.Registry
	Config   *config.Config

	// EngineName is reported by the health endpoint.
	EngineName string
	// Pool is the browser page pool, nil when no browser runs.
	Pool handler.PoolReporter
	// Cached reports the number of cached responses. Optional.
	Cached func() int

	Started time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(d.EngineName, d.Pool, d.Cached, d.Started))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.GET("/operations", handler.Operations(d.Registry))
	protected.GET("/jobs/:id", handler.GetJob())
	protected.POST("/:site/:operation", handler.Scrape(d.Registry, cfg.Webhook.Secret))

	return r
}
