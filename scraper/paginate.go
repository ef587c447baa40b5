package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/models"
)

// Mode selects how the orchestrator learns how many pages exist.
type Mode int

const (
	// ByTotal reads a total item count from the seed page and dispatches
	// every remaining page as one concurrent batch.
	ByTotal Mode = iota

	// ByHasMore follows a boolean has-more signal one page at a time.
	ByHasMore
)

func (m Mode) String() string {
	if m == ByHasMore {
		return "has_more"
	}
	return "total"
}

// Page is what a PageParser extracts from one response.
type Page struct {
	Records []extract.Record
	Total   int
	HasMore bool
}

// PageParser extracts a Page from a response.
type PageParser func(*engine.FetchResult) (Page, error)

// Pagination is a fetch plan for a cursor-paginated source.
type Pagination struct {
	// Name labels log lines.
	Name string

	Template RequestTemplate

	// Seed, when set, replaces Template for the seed fetch, e.g. an HTML
	// search page that reports the total ahead of a paginated API.
	Seed *RequestTemplate

	// Start is the seed cursor: 0 for offsets, 1 for page numbers.
	Start int

	// PageSize is the cursor step.
	PageSize int

	// MaxItems and MaxPages cap the target. Zero means no cap.
	MaxItems int
	MaxPages int

	Mode  Mode
	Parse PageParser

	// Ordered re-sorts pages by cursor instead of keeping arrival order.
	Ordered bool
}

// limit is the item cap implied by MaxItems and MaxPages, 0 if none.
func (p Pagination) limit() int {
	c := p.MaxItems
	if p.MaxPages > 0 {
		if pc := p.MaxPages * p.PageSize; c == 0 || pc < c {
			c = pc
		}
	}
	return c
}

// Result is the outcome of one scrape operation.
type Result struct {
	Records []extract.Record `json:"records"`

	// Total is whatever the source reports as its size: the item count of
	// most by-total sources, the page count of page-numbered ones such as
	// ImmobilienScout24. Has-more sources and URL lists report the number
	// of records collected.
	Total int `json:"total"`

	// Requested and Succeeded count page fetches, seed included.
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`
}

// Cursors returns the follow-up cursors start+step, start+2*step, ...
// strictly below start+target.
func Cursors(start, step, target int) []int {
	if step <= 0 {
		return nil
	}
	var out []int
	for c := start + step; c < start+target; c += step {
		out = append(out, c)
	}
	return out
}

type pageRecords struct {
	cursor  int
	records []extract.Record
}

// Paginate fetches the seed page, works out the remaining cursors and
// collects every page's records. A seed failure is fatal; a follow-up
// failure is logged and that page is dropped.
func (s *Scraper) Paginate(ctx context.Context, p Pagination) (*Result, error) {
	if p.PageSize <= 0 || p.Parse == nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("%s: pagination needs a page size and a parser", p.Name), nil)
	}

	seedTmpl := p.Template
	if p.Seed != nil {
		seedTmpl = *p.Seed
	}
	seedReq := seedTmpl.Build(p.Start)
	res, err := s.client.Fetch(ctx, seedReq)
	if err != nil {
		return nil, &models.ScrapeError{Code: models.ErrCodeSeed, Message: p.Name + ": seed fetch failed", URL: seedReq.URL, Err: err}
	}
	seed, err := p.Parse(res)
	if err != nil {
		return nil, err
	}

	result := &Result{Records: []extract.Record{}, Requested: 1, Succeeded: 1}
	pages := []pageRecords{{cursor: p.Start, records: seed.Records}}
	limit := p.limit()

	switch p.Mode {
	case ByTotal:
		target := seed.Total
		if limit > 0 && limit < target {
			slog.Debug("pagination target capped", "name", p.Name, "total", seed.Total, "cap", limit)
			target = limit
		}
		result.Total = seed.Total

		cursors := Cursors(p.Start, p.PageSize, target)
		slog.Info("dispatching pages", "name", p.Name, "total", seed.Total, "pages", len(cursors))
		pages = append(pages, s.dispatch(ctx, p, cursors, result)...)

	case ByHasMore:
		pages = append(pages, s.follow(ctx, p, seed, limit, result)...)
	}

	if p.Ordered {
		sort.SliceStable(pages, func(i, j int) bool { return pages[i].cursor < pages[j].cursor })
	}
	for _, pg := range pages {
		result.Records = append(result.Records, pg.records...)
	}
	if p.Mode == ByHasMore {
		result.Total = len(result.Records)
	}

	slog.Info("pagination complete",
		"name", p.Name,
		"requested", result.Requested,
		"succeeded", result.Succeeded,
		"records", len(result.Records),
	)
	return result, nil
}

// dispatch fetches cursors as one concurrent batch, in arrival order.
func (s *Scraper) dispatch(ctx context.Context, p Pagination, cursors []int, result *Result) []pageRecords {
	if len(cursors) == 0 {
		return nil
	}
	reqs := make([]*engine.FetchRequest, len(cursors))
	for i, c := range cursors {
		reqs[i] = p.Template.Build(c)
	}
	result.Requested += len(reqs)

	var pages []pageRecords
	for br := range s.client.FetchMany(ctx, reqs) {
		if br.Err != nil {
			slog.Warn("page fetch failed", "name", p.Name, "url", br.Request.URL, "error", br.Err)
			continue
		}
		page, err := p.Parse(br.Response)
		if err != nil {
			slog.Warn("page parse failed", "name", p.Name, "url", br.Request.URL, "error", err)
			continue
		}
		result.Succeeded++
		pages = append(pages, pageRecords{cursor: cursors[br.Index], records: page.Records})
	}
	return pages
}

// follow walks a has-more source one page at a time until the signal
// drops, the cap is reached or a page fails.
func (s *Scraper) follow(ctx context.Context, p Pagination, seed Page, limit int, result *Result) []pageRecords {
	var pages []pageRecords
	collected := len(seed.Records)
	hasMore := seed.HasMore
	cursor := p.Start

	for hasMore && ctx.Err() == nil {
		if limit > 0 && collected >= limit {
			slog.Debug("pagination cap reached", "name", p.Name, "cap", limit, "collected", collected)
			break
		}
		if p.MaxPages > 0 && result.Requested >= p.MaxPages {
			break
		}

		cursor += p.PageSize
		req := p.Template.Build(cursor)
		result.Requested++

		res, err := s.client.Fetch(ctx, req)
		if err != nil {
			slog.Warn("page fetch failed", "name", p.Name, "url", req.URL, "error", err)
			break
		}
		page, err := p.Parse(res)
		if err != nil {
			slog.Warn("page parse failed", "name", p.Name, "url", req.URL, "error", err)
			break
		}
		result.Succeeded++
		pages = append(pages, pageRecords{cursor: cursor, records: page.Records})
		collected += len(page.Records)
		hasMore = page.HasMore
	}
	return pages
}

// Gather fetches reqs concurrently and parses each response. Failed
// fetches and parses are logged and dropped. Values are returned in
// arrival order along with the number of successful responses.
func Gather[T any](ctx context.Context, s *Scraper, name string, reqs []*engine.FetchRequest, parse func(*engine.FetchResult) ([]T, error)) ([]T, int) {
	var (
		out       []T
		succeeded int
	)
	for br := range s.client.FetchMany(ctx, reqs) {
		if br.Err != nil {
			slog.Warn("fetch failed", "name", name, "url", br.Request.URL, "error", br.Err)
			continue
		}
		vals, err := parse(br.Response)
		if err != nil {
			slog.Warn("parse failed", "name", name, "url", br.Request.URL, "error", err)
			continue
		}
		succeeded++
		out = append(out, vals...)
	}
	return out, succeeded
}

// Each scrapes a list of independent pages into records.
func (s *Scraper) Each(ctx context.Context, name string, reqs []*engine.FetchRequest, parse func(*engine.FetchResult) ([]extract.Record, error)) *Result {
	records, succeeded := Gather(ctx, s, name, reqs, parse)
	if records == nil {
		records = []extract.Record{}
	}
	slog.Info("batch complete",
		"name", name,
		"requested", len(reqs),
		"succeeded", succeeded,
		"records", len(records),
	)
	return &Result{
		Records:   records,
		Total:     len(records),
		Requested: len(reqs),
		Succeeded: succeeded,
	}
}

// One adapts a single-record parser for Each.
func One(parse func(*engine.FetchResult) (extract.Record, error)) func(*engine.FetchResult) ([]extract.Record, error) {
	return func(res *engine.FetchResult) ([]extract.Record, error) {
		rec, err := parse(res)
		if err != nil {
			return nil, err
		}
		return []extract.Record{rec}, nil
	}
}
