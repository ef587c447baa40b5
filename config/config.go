package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Fetch     FetchConfig
	Browser   BrowserConfig
	Engine    EngineConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Webhook   WebhookConfig
}

// FetchConfig controls the fetch collaborator shared by every scraper.
type FetchConfig struct {
	// APIKey is the scraping-API credential. When empty the direct
	// engines (HTTP + browser) are used instead.
	APIKey string

	// APIBaseURL is the scraping-API endpoint.
	APIBaseURL string // default: "https://api.scrapfly.io"

	// ASP enables the anti-scraping-protection bypass on every request.
	ASP bool // default: true

	// Country is the proxy country code attached to every request.
	Country string // default: "US"

	// Cache asks the scraping API to serve cached responses.
	Cache bool // default: false

	// Debug asks the scraping API to keep debug data for each request.
	Debug bool // default: false

	// Timeout is the per-request deadline.
	Timeout time.Duration // default: 150s

	// Retries is the number of extra attempts on transient failures.
	Retries int // default: 3

	// RetryDelay is the base delay between retries (doubled each attempt).
	RetryDelay time.Duration // default: 1s

	// Concurrency bounds in-flight requests of a single batch.
	Concurrency int // default: 5

	// RequestsPerSecond throttles all outgoing fetches. 0 disables it.
	RequestsPerSecond float64 // default: 0

	// Burst is the throttle burst size.
	Burst int // default: 5
}

// EngineConfig controls the direct-mode engine racing dispatcher.
type EngineConfig struct {
	// EscalationDelays is the staged start delay for each engine tier.
	EscalationDelays []time.Duration // default: [0s, 3s]

	// HTTPTimeout is the deadline for the pure HTTP engine.
	HTTPTimeout time.Duration // default: 15s

	// SessionTTL is how long a session keeps its cookies after it starts.
	SessionTTL time.Duration // default: 30m
}

// CacheConfig controls the local fetch response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses. 0 disables it.
	MaxEntries int // default: 1000

	// TTL is how long a cached response stays valid.
	TTL time.Duration // default: 1h
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser used in direct mode.
type BrowserConfig struct {
	// Enabled launches a local browser for requests that need rendering.
	Enabled bool // default: false

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 5

	// Proxy is the proxy URL used by the browser and the HTTP engine.
	Proxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: true
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting of the HTTP API.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 2
	Burst             int     // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// WebhookConfig controls completion notifications.
type WebhookConfig struct {
	// Secret signs webhook payloads when a request does not carry its own.
	Secret string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVEST_HOST", "0.0.0.0"),
			Port: envIntOr("HARVEST_PORT", 8080),
			Mode: envOr("HARVEST_MODE", "release"),
		},
		Fetch: FetchConfig{
			APIKey:            os.Getenv("SCRAPFLY_KEY"),
			APIBaseURL:        envOr("HARVEST_API_URL", "https://api.scrapfly.io"),
			ASP:               envBoolOr("HARVEST_ASP", true),
			Country:           envOr("HARVEST_COUNTRY", "US"),
			Cache:             envBoolOr("HARVEST_API_CACHE", false),
			Debug:             envBoolOr("HARVEST_API_DEBUG", false),
			Timeout:           envDurationOr("HARVEST_FETCH_TIMEOUT", 150*time.Second),
			Retries:           envIntOr("HARVEST_FETCH_RETRIES", 3),
			RetryDelay:        envDurationOr("HARVEST_FETCH_RETRY_DELAY", time.Second),
			Concurrency:       envIntOr("HARVEST_CONCURRENCY", 5),
			RequestsPerSecond: envFloatOr("HARVEST_FETCH_RPS", 0),
			Burst:             envIntOr("HARVEST_FETCH_BURST", 5),
		},
		Browser: BrowserConfig{
			Enabled:    envBoolOr("HARVEST_BROWSER", false),
			Headless:   envBoolOr("HARVEST_HEADLESS", true),
			MaxPages:   envIntOr("HARVEST_MAX_PAGES", 5),
			Proxy:      os.Getenv("HARVEST_PROXY"),
			NoSandbox:  envBoolOr("HARVEST_NO_SANDBOX", false),
			BrowserBin: os.Getenv("HARVEST_BROWSER_BIN"),
		},
		Engine: EngineConfig{
			EscalationDelays: envDurationSliceOr("HARVEST_ESCALATION_DELAYS", []time.Duration{0, 3 * time.Second}),
			HTTPTimeout:      envDurationOr("HARVEST_HTTP_TIMEOUT", 15*time.Second),
			SessionTTL:       envDurationOr("HARVEST_SESSION_TTL", 30*time.Minute),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 2.0),
			Burst:             envIntOr("HARVEST_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("HARVEST_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("HARVEST_CACHE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("HARVEST_LOG_LEVEL", "info"),
			Format: envOr("HARVEST_LOG_FORMAT", "json"),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("HARVEST_WEBHOOK_SECRET"),
		},
	}
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
