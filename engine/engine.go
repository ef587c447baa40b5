package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ysmood/gson"
)

// Fetcher is the fetch collaborator every scraper depends on.
type Fetcher interface {
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// Engine is a named Fetcher. All concrete engines implement it.
type Engine interface {
	Fetcher

	// Name returns the engine identifier (e.g. "api", "http", "rod").
	Name() string
}

// Renderer is implemented by engines that execute page JavaScript.
type Renderer interface {
	RendersJS() bool
}

// FetchRequest describes one fetch. It is treated as immutable once built;
// engines that need to alter it work on a Clone.
type FetchRequest struct {
	// URL is the target, query string included.
	URL string

	// Headers are sent with the target request.
	Headers map[string]string

	// Session ties requests to one cookie/proxy session. Empty means none.
	Session string

	// ASP asks for the anti-scraping-protection bypass.
	ASP bool

	// RenderJS asks for a full browser render.
	RenderJS bool

	// Country is the proxy location, e.g. "US".
	Country string

	// Cache lets the scraping API serve a cached copy.
	Cache bool

	// Debug asks the scraping API to keep debug data.
	Debug bool

	// Timeout bounds the fetch; zero means the engine default.
	Timeout time.Duration
}

// Clone returns a deep copy of the request.
func (r *FetchRequest) Clone() *FetchRequest {
	c := *r
	if r.Headers != nil {
		c.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}

// Flags returns the request options as strings, for cache keys and logs.
func (r *FetchRequest) Flags() []string {
	flags := []string{"country=" + r.Country}
	if r.ASP {
		flags = append(flags, "asp")
	}
	if r.RenderJS {
		flags = append(flags, "render_js")
	}
	for k, v := range r.Headers {
		flags = append(flags, "h:"+strings.ToLower(k)+"="+v)
	}
	return flags
}

// FetchResult is a fetched response. The document and JSON views are
// parsed lazily on first use and memoised, so a result can be shared
// between goroutines and extracted more than once.
type FetchResult struct {
	Content    string
	StatusCode int
	FinalURL   string
	EngineName string

	// Request is the descriptor that produced this result.
	Request *FetchRequest

	docOnce sync.Once
	doc     *goquery.Document
	docErr  error

	jsonOnce sync.Once
	json     gson.JSON
	jsonErr  error
}

// URL returns the final URL, falling back to the requested one.
func (r *FetchResult) URL() string {
	if r.FinalURL != "" {
		return r.FinalURL
	}
	if r.Request != nil {
		return r.Request.URL
	}
	return ""
}

// Document returns the body parsed as an HTML document.
func (r *FetchResult) Document() (*goquery.Document, error) {
	r.docOnce.Do(func() {
		r.doc, r.docErr = goquery.NewDocumentFromReader(strings.NewReader(r.Content))
	})
	return r.doc, r.docErr
}

// JSON returns the body parsed as JSON.
func (r *FetchResult) JSON() (gson.JSON, error) {
	r.jsonOnce.Do(func() {
		r.json, r.jsonErr = ParseJSON(r.Content)
	})
	return r.json, r.jsonErr
}

// ParseJSON decodes s into a gson node. Unlike gson.NewFrom it reports
// malformed input instead of yielding a nil node.
func ParseJSON(s string) (gson.JSON, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return gson.New(nil), fmt.Errorf("engine: decode json: %w", err)
	}
	return gson.New(v), nil
}
