package models

// ScrapeResponse is the response for POST /api/v1/{site}/{operation}.
type ScrapeResponse struct {
	// Success indicates whether the operation completed. Individual pages
	// may still have failed; compare Requested and Succeeded.
	Success bool `json:"success"`

	Site      string `json:"site"`
	Operation string `json:"operation"`

	// Records are the extracted items.
	Records []map[string]any `json:"records"`

	// Total is the discovered item count, or the number of records when
	// the source reports none.
	Total int `json:"total"`

	// Requested and Succeeded count page fetches.
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`

	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent on an operation.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	Engine    string    `json:"engine"`
	PoolStats PoolStats `json:"pool_stats"`
	Cached    int       `json:"cached_responses"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool. Zero when no
// browser is running.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
