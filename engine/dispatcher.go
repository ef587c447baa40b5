package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/use-agent/harvest/cache"
)

// Dispatcher races several engines with staged escalation and remembers
// which engine won for each host. It is itself an Engine, so a Client
// can wrap it like any single engine.
type Dispatcher struct {
	engines          []Engine
	escalationDelays []time.Duration
	memory           *cache.Cache[string]
}

// NewDispatcher creates a Dispatcher. engines[i] starts escalationDelays[i]
// after the race begins; missing delays default to zero. memory may be nil.
func NewDispatcher(engines []Engine, escalationDelays []time.Duration, memory *cache.Cache[string]) *Dispatcher {
	delays := make([]time.Duration, len(engines))
	copy(delays, escalationDelays)
	return &Dispatcher{
		engines:          engines,
		escalationDelays: delays,
		memory:           memory,
	}
}

func (d *Dispatcher) Name() string { return "dispatcher" }

// RendersJS reports whether any raced engine renders JavaScript.
func (d *Dispatcher) RendersJS() bool {
	for _, e := range d.engines {
		if rendersJS(e) {
			return true
		}
	}
	return false
}

// EndSession forwards to every engine that keeps session state.
func (d *Dispatcher) EndSession(session string) {
	for _, e := range d.engines {
		if se, ok := e.(SessionEnder); ok {
			se.EndSession(session)
		}
	}
}

// Fetch tries the remembered engine for the host first and falls back to a
// full race. RenderJS requests only go to engines that render.
func (d *Dispatcher) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	candidates := d.candidates(req)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("dispatcher: no engine can serve %s (render_js=%t)", req.URL, req.RenderJS)
	}

	domain := extractDomain(req.URL)
	if d.memory != nil {
		if remembered, ok := d.memory.Get(domain); ok {
			for _, c := range candidates {
				if c.engine.Name() != remembered {
					continue
				}
				slog.Debug("domain memory hit", "domain", domain, "engine", remembered)
				result, err := c.engine.Fetch(ctx, req)
				if err == nil {
					return result, nil
				}
				slog.Info("remembered engine failed, running full race",
					"domain", domain, "engine", remembered, "error", err)
				break
			}
		}
	}

	return d.race(ctx, req, domain, candidates)
}

type candidate struct {
	engine Engine
	delay  time.Duration
}

func (d *Dispatcher) candidates(req *FetchRequest) []candidate {
	out := make([]candidate, 0, len(d.engines))
	for i, e := range d.engines {
		if req.RenderJS && !rendersJS(e) {
			continue
		}
		out = append(out, candidate{engine: e, delay: d.escalationDelays[i]})
	}
	// Without the skipped tiers the first eligible engine starts at once.
	if len(out) > 0 && req.RenderJS {
		base := out[0].delay
		for i := range out {
			out[i].delay -= base
		}
	}
	return out
}

// race runs the candidates with staged delays and returns the first success.
func (d *Dispatcher) race(ctx context.Context, req *FetchRequest, domain string, candidates []candidate) (*FetchResult, error) {
	type raceResult struct {
		result *FetchResult
		err    error
	}

	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	results := make(chan raceResult, len(candidates))
	var wg sync.WaitGroup

	for _, c := range candidates {
		wg.Add(1)
		go func(e Engine, delay time.Duration) {
			defer wg.Done()

			if delay > 0 {
				select {
				case <-raceCtx.Done():
					return
				case <-time.After(delay):
				}
			}
			if raceCtx.Err() != nil {
				return
			}

			slog.Debug("engine starting", "engine", e.Name(), "url", req.URL)
			result, err := e.Fetch(raceCtx, req)
			if err != nil {
				slog.Debug("engine failed", "engine", e.Name(), "url", req.URL, "error", err)
			}
			results <- raceResult{result: result, err: err}
		}(c.engine, c.delay)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var lastErr error
	for rr := range results {
		if rr.err != nil {
			lastErr = rr.err
			continue
		}
		raceCancel()
		slog.Debug("engine won race", "engine", rr.result.EngineName, "url", req.URL)
		if d.memory != nil {
			d.memory.Set(domain, rr.result.EngineName)
		}
		return rr.result, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("dispatcher: all engines failed for %s", req.URL)
	}
	return nil, lastErr
}

func rendersJS(e Engine) bool {
	r, ok := e.(Renderer)
	return ok && r.RendersJS()
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
