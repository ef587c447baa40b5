package models

// JobResponse is the immediate response for an async operation.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobStatusResponse is the response for GET /api/v1/jobs/:id.
type JobStatusResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Site      string          `json:"site"`
	Operation string          `json:"operation"`
	Result    *ScrapeResponse `json:"result,omitempty"`
}

// Job tracks an async operation.
type Job struct {
	ID        string
	Status    string // "processing", "completed", "partial", "failed"
	Site      string
	Operation string
	Result    *ScrapeResponse
	CreatedAt int64 // unix timestamp
}
