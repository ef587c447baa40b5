// Package enginetest provides a scripted engine.Fetcher for tests of code
// that fetches through the engine package.
package enginetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/use-agent/harvest/engine"
)

// Fetcher answers every fetch with Handler and records the requests.
type Fetcher struct {
	Handler func(req *engine.FetchRequest) (*engine.FetchResult, error)

	mu       sync.Mutex
	requests []*engine.FetchRequest
	ended    []string
}

// Fetch implements engine.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.Handler(req)
}

// EndSession implements engine.SessionEnder by recording session.
func (f *Fetcher) EndSession(session string) {
	f.mu.Lock()
	f.ended = append(f.ended, session)
	f.mu.Unlock()
}

// Ended returns the ended sessions, in call order.
func (f *Fetcher) Ended() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

// Requests returns the requests seen so far, in call order.
func (f *Fetcher) Requests() []*engine.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*engine.FetchRequest(nil), f.requests...)
}

// URLs returns the requested URLs, sorted.
func (f *Fetcher) URLs() []string {
	reqs := f.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.URL
	}
	sort.Strings(out)
	return out
}

// Pages returns a handler serving pages by URL. A request is answered by
// the exact URL if present, else by the longest key that prefixes it.
// Unknown URLs fail like a 404 would.
func Pages(pages map[string]string) func(*engine.FetchRequest) (*engine.FetchResult, error) {
	return func(req *engine.FetchRequest) (*engine.FetchResult, error) {
		body, ok := pages[req.URL]
		if !ok {
			best := ""
			for k := range pages {
				if strings.HasPrefix(req.URL, k) && len(k) > len(best) {
					best = k
				}
			}
			if best == "" {
				return nil, fmt.Errorf("enginetest: no page for %s", req.URL)
			}
			body = pages[best]
		}
		return &engine.FetchResult{
			Content:    body,
			StatusCode: 200,
			FinalURL:   req.URL,
			EngineName: "test",
			Request:    req,
		}, nil
	}
}
