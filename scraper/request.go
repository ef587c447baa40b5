package scraper

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/harvest/engine"
)

// RequestTemplate describes a family of requests that differ only in their
// pagination cursor.
type RequestTemplate struct {
	BaseURL string

	// Params are merged into BaseURL's query. They are encoded exactly
	// once, so free text must be passed unescaped.
	Params url.Values

	// CursorParam names the query parameter that carries the cursor.
	// Empty means the template is not paginated.
	CursorParam string

	Headers  map[string]string
	Session  string
	ASP      bool
	RenderJS bool
	Country  string
	Cache    bool
	Debug    bool
	Timeout  time.Duration
}

// Build returns the request for cursor. The template is not modified.
func (t RequestTemplate) Build(cursor int) *engine.FetchRequest {
	params := url.Values{}
	for k, v := range t.Params {
		params[k] = append([]string(nil), v...)
	}
	if t.CursorParam != "" {
		params.Set(t.CursorParam, strconv.Itoa(cursor))
	}

	target := t.BaseURL
	if len(params) > 0 {
		sep := "?"
		switch {
		case strings.HasSuffix(target, "?"), strings.HasSuffix(target, "&"):
			sep = ""
		case strings.Contains(target, "?"):
			sep = "&"
		}
		target += sep + params.Encode()
	}

	var headers map[string]string
	if len(t.Headers) > 0 {
		headers = make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			headers[k] = v
		}
	}

	return &engine.FetchRequest{
		URL:      target,
		Headers:  headers,
		Session:  t.Session,
		ASP:      t.ASP,
		RenderJS: t.RenderJS,
		Country:  t.Country,
		Cache:    t.Cache,
		Debug:    t.Debug,
		Timeout:  t.Timeout,
	}
}
