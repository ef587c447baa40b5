package engine

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/use-agent/harvest/cache"
)

// Client is the fetch collaborator handed to scrapers. It wraps a Fetcher
// with a response cache, a rate limiter and bounded concurrent batches.
type Client struct {
	fetcher     Fetcher
	cache       *cache.Cache[*FetchResult]
	limiter     *rate.Limiter
	concurrency int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCache serves repeated stateless requests from c.
func WithCache(c *cache.Cache[*FetchResult]) ClientOption {
	return func(cl *Client) { cl.cache = c }
}

// WithRateLimit throttles outgoing fetches. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(cl *Client) {
		if rps <= 0 {
			cl.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithConcurrency bounds the in-flight fetches of one FetchMany call.
func WithConcurrency(n int) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.concurrency = n
		}
	}
}

// NewClient wraps f. The default concurrency is 5.
func NewClient(f Fetcher, opts ...ClientOption) *Client {
	c := &Client{fetcher: f, concurrency: 5}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Concurrency returns the FetchMany worker bound.
func (c *Client) Concurrency() int { return c.concurrency }

// Fetch performs one fetch. Session-bound requests bypass the cache since
// their responses depend on server-side state.
func (c *Client) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	var key string
	if c.cache != nil && req.Session == "" {
		key = cache.Key(req.URL, req.Session, req.Flags()...)
		if res, ok := c.cache.Get(key); ok {
			slog.Debug("fetch cache hit", "url", req.URL)
			return res, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	res, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if key != "" {
		c.cache.Set(key, res)
	}
	return res, nil
}

// EndSession releases the fetcher's state for session. It is a no-op for
// fetchers that keep none, like the scraping API whose sessions expire
// server-side.
func (c *Client) EndSession(session string) {
	if session == "" {
		return
	}
	if se, ok := c.fetcher.(SessionEnder); ok {
		se.EndSession(session)
	}
}

// BatchResult is the outcome of one request of a FetchMany batch.
type BatchResult struct {
	// Index is the request's position in the submitted slice.
	Index    int
	Request  *FetchRequest
	Response *FetchResult
	Err      error
}

// FetchMany fetches reqs with at most Concurrency requests in flight and
// delivers results in completion order. The channel is closed once every
// request has produced a result. After ctx is cancelled no new fetches
// start; the remaining requests are reported with ctx's error.
func (c *Client) FetchMany(ctx context.Context, reqs []*FetchRequest) <-chan BatchResult {
	out := make(chan BatchResult, len(reqs))
	sem := semaphore.NewWeighted(int64(c.concurrency))

	go func() {
		var wg sync.WaitGroup
		defer close(out)
		defer wg.Wait()

		for i, req := range reqs {
			if err := sem.Acquire(ctx, 1); err != nil {
				for j := i; j < len(reqs); j++ {
					out <- BatchResult{Index: j, Request: reqs[j], Err: err}
				}
				return
			}

			wg.Add(1)
			go func(i int, req *FetchRequest) {
				defer wg.Done()
				defer sem.Release(1)
				res, err := c.Fetch(ctx, req)
				out <- BatchResult{Index: i, Request: req, Response: res, Err: err}
			}(i, req)
		}
	}()
	return out
}
