package models

import "time"

// ScrapeRequest is the payload for POST /api/v1/{site}/{operation}.
// Each operation reads only the fields it needs: URL lists for page
// scrapes, a search URL or keyword for searches, a post id for comments.
type ScrapeRequest struct {
	// URLs are the pages to scrape for list operations. Max 100.
	URLs []string `json:"urls,omitempty" binding:"omitempty,max=100,dive,url"`

	// URL is the search page for URL-seeded searches.
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// PostID identifies the post whose comments are scraped.
	PostID string `json:"post_id,omitempty"`

	// Keyword and Location are the free-text search terms. They are sent
	// unescaped; the request builder encodes them.
	Keyword  string `json:"keyword,omitempty"`
	Location string `json:"location,omitempty"`

	// PageSize is the cursor step for paginated APIs that accept one.
	PageSize int `json:"page_size,omitempty" binding:"omitempty,min=1,max=100"`

	// MaxItems caps the number of items requested. 0 means no cap.
	MaxItems int `json:"max_items,omitempty" binding:"omitempty,min=0"`

	// MaxPages caps the number of pages fetched. 0 means no cap.
	MaxPages int `json:"max_pages,omitempty" binding:"omitempty,min=0"`

	// AllPages follows pagination past the first search page.
	AllPages bool `json:"all_pages,omitempty"`

	// Timeout bounds the whole operation in seconds.
	// Default: 300. Max: 1800.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=1800"`

	// Async returns a job id immediately; poll GET /api/v1/jobs/:id.
	Async bool `json:"async,omitempty"`

	// WebhookURL receives a scrape.completed or scrape.failed event when
	// the operation finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook payload. Falls back to the server's
	// configured secret.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 300
	}
}

// Deadline returns the operation timeout as a duration.
func (r *ScrapeRequest) Deadline() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}
