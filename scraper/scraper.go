// Package scraper holds the site-independent scraping core: request
// templates, the paginating orchestrator, URL-list batches and sessions.
// Site packages describe what to fetch and how to parse it; this package
// decides when to fetch and aggregates the results.
package scraper

import (
	"context"
	"time"

	"github.com/use-agent/harvest/engine"
)

// Options are the base flags applied to every request a Scraper builds.
type Options struct {
	ASP     bool
	Country string
	Cache   bool
	Debug   bool
	Timeout time.Duration

	// SessionPrefix overrides the host-derived session id prefix.
	SessionPrefix string
}

// Scraper runs fetch plans against a Client. It is safe for concurrent use.
type Scraper struct {
	client *engine.Client
	opts   Options
}

// New creates a Scraper.
func New(client *engine.Client, opts Options) *Scraper {
	return &Scraper{client: client, opts: opts}
}

// Options returns the base flags.
func (s *Scraper) Options() Options { return s.opts }

// Template returns a request template for rawURL carrying the base flags.
func (s *Scraper) Template(rawURL string) RequestTemplate {
	return RequestTemplate{
		BaseURL: rawURL,
		ASP:     s.opts.ASP,
		Country: s.opts.Country,
		Cache:   s.opts.Cache,
		Debug:   s.opts.Debug,
		Timeout: s.opts.Timeout,
	}
}

// Requests builds one plain page request per URL.
func (s *Scraper) Requests(urls []string, mutate ...func(*RequestTemplate)) []*engine.FetchRequest {
	reqs := make([]*engine.FetchRequest, 0, len(urls))
	for _, u := range urls {
		t := s.Template(u)
		for _, m := range mutate {
			m(&t)
		}
		reqs = append(reqs, t.Build(0))
	}
	return reqs
}

// Fetch performs a single fetch through the client.
func (s *Scraper) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	return s.client.Fetch(ctx, req)
}
