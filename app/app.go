// Package app assembles the fetch stack and the site registry from
// configuration. The server, the MCP bridge and the CLI all start here.
package app

import (
	"log/slog"
	"os"
	"time"

	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/sites"
)

// domainMemoryTTL is how long the dispatcher remembers which tier last
// succeeded for a domain.
const domainMemoryTTL = 24 * time.Hour

// App is the assembled stack.
type App struct {
	Engine   engine.Engine
	Pool     handler.PoolReporter // nil without a local browser
	Cache    *cache.Cache[*engine.FetchResult]
	Scraper  *scraper.Scraper
	Registry *sites.Registry

	closers []func()
}

// New builds the stack. With a scraping API key every fetch goes through
// the API; otherwise a dispatcher races the direct HTTP engine against a
// local browser, when one is enabled.
func New(cfg *config.Config) (*App, error) {
	a := &App{}

	eng, err := a.buildEngine(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = eng

	a.Cache = cache.New[*engine.FetchResult](cfg.Cache.MaxEntries, cfg.Cache.TTL)
	a.closers = append(a.closers, a.Cache.Stop)

	client := engine.NewClient(eng,
		engine.WithCache(a.Cache),
		engine.WithRateLimit(cfg.Fetch.RequestsPerSecond, cfg.Fetch.Burst),
		engine.WithConcurrency(cfg.Fetch.Concurrency),
	)
	a.Scraper = scraper.New(client, scraper.Options{
		ASP:     cfg.Fetch.ASP,
		Country: cfg.Fetch.Country,
		Cache:   cfg.Fetch.Cache,
		Debug:   cfg.Fetch.Debug,
		Timeout: cfg.Fetch.Timeout,
	})
	a.Registry = sites.NewRegistry(a.Scraper)
	return a, nil
}

func (a *App) buildEngine(cfg *config.Config) (engine.Engine, error) {
	if cfg.Fetch.APIKey != "" {
		slog.Info("using scraping API", "base", cfg.Fetch.APIBaseURL)
		return engine.NewAPIEngine(engine.APIEngineConfig{
			BaseURL:    cfg.Fetch.APIBaseURL,
			Key:        cfg.Fetch.APIKey,
			Timeout:    cfg.Fetch.Timeout,
			Retries:    cfg.Fetch.Retries,
			RetryDelay: cfg.Fetch.RetryDelay,
		}), nil
	}

	sessions := engine.NewSessionJars(cfg.Engine.SessionTTL)
	a.closers = append(a.closers, sessions.Close)
	httpEngine, err := engine.NewHTTPEngine(engine.HTTPEngineConfig{
		Timeout:  cfg.Engine.HTTPTimeout,
		Proxy:    cfg.Browser.Proxy,
		Sessions: sessions,
	})
	if err != nil {
		return nil, err
	}
	engines := []engine.Engine{httpEngine}

	if cfg.Browser.Enabled {
		rod, err := engine.NewRodEngine(engine.RodEngineConfig{
			Headless:       cfg.Browser.Headless,
			NoSandbox:      cfg.Browser.NoSandbox,
			BrowserBin:     cfg.Browser.BrowserBin,
			Proxy:          cfg.Browser.Proxy,
			MaxPages:       cfg.Browser.MaxPages,
			BlockResources: true,
			Sessions:       sessions,
		})
		if err != nil {
			return nil, err
		}
		engines = append(engines, rod)
		a.Pool = rod
		a.closers = append(a.closers, rod.Close)
	}

	memory := cache.New[string](cfg.Cache.MaxEntries, domainMemoryTTL)
	a.closers = append(a.closers, memory.Stop)

	slog.Info("using direct engines",
		"engines", len(engines),
		"delays", cfg.Engine.EscalationDelays,
	)
	return engine.NewDispatcher(engines, cfg.Engine.EscalationDelays, memory), nil
}

// Close releases the browser and stops background loops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// InitLogger configures slog from cfg. Logs go to stderr so stdout stays
// free for tool output.
func InitLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
