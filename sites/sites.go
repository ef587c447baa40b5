// Package sites exposes every site operation under a "site/operation"
// name, so the HTTP API, the MCP bridge and the CLI share one table.
package sites

import (
	"context"
	"sort"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/sites/immoscout"
	"github.com/use-agent/harvest/sites/linkedin"
	"github.com/use-agent/harvest/sites/redfin"
	"github.com/use-agent/harvest/sites/tiktok"
)

// Input names a request field an operation reads.
type Input string

const (
	InputURLs     Input = "urls"
	InputURL      Input = "url"
	InputPostID   Input = "post_id"
	InputKeyword  Input = "keyword"
	InputLocation Input = "location"
	InputPageSize Input = "page_size"
	InputMaxItems Input = "max_items"
	InputMaxPages Input = "max_pages"
	InputAllPages Input = "all_pages"
)

// Operation is one runnable site operation.
type Operation struct {
	Site        string
	Name        string
	Description string

	// Inputs lists the request fields Run reads; the first is required.
	Inputs []Input

	Run func(ctx context.Context, req *models.ScrapeRequest) (*scraper.Result, error)
}

// Key returns "site/operation".
func (o Operation) Key() string { return o.Site + "/" + o.Name }

// Registry holds the operations of every site.
type Registry struct {
	ops   []Operation
	byKey map[string]Operation
}

// NewRegistry wires every site scraper to s.
func NewRegistry(s *scraper.Scraper) *Registry {
	tt := tiktok.New(s)
	rf := redfin.New(s)
	li := linkedin.New(s)
	is := immoscout.New(s)

	ops := []Operation{
		{
			Site: "tiktok", Name: "posts",
			Description: "Scrape TikTok video posts from their URLs.",
			Inputs:      []Input{InputURLs},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return tt.ScrapePosts(ctx, r.URLs)
			},
		},
		{
			Site: "tiktok", Name: "profiles",
			Description: "Scrape TikTok profiles from their URLs.",
			Inputs:      []Input{InputURLs},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return tt.ScrapeProfiles(ctx, r.URLs)
			},
		},
		{
			Site: "tiktok", Name: "comments",
			Description: "Scrape the comments of a TikTok post.",
			Inputs:      []Input{InputPostID, InputPageSize, InputMaxItems},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return tt.ScrapeComments(ctx, r.PostID, r.PageSize, r.MaxItems)
			},
		},
		{
			Site: "tiktok", Name: "search",
			Description: "Search TikTok videos by keyword.",
			Inputs:      []Input{InputKeyword, InputMaxItems, InputPageSize},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return tt.ScrapeSearch(ctx, r.Keyword, r.MaxItems, r.PageSize)
			},
		},
		{
			Site: "redfin", Name: "search",
			Description: "Scrape every home listed by a Redfin search page URL.",
			Inputs:      []Input{InputURL},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return rf.ScrapeSearch(ctx, r.URL)
			},
		},
		{
			Site: "redfin", Name: "for-sale",
			Description: "Scrape Redfin properties for sale from their URLs.",
			Inputs:      []Input{InputURLs},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return rf.ScrapePropertiesForSale(ctx, r.URLs)
			},
		},
		{
			Site: "redfin", Name: "for-rent",
			Description: "Scrape Redfin rental floor plans from property URLs.",
			Inputs:      []Input{InputURLs},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return rf.ScrapePropertiesForRent(ctx, r.URLs)
			},
		},
		{
			Site: "linkedin", Name: "profiles",
			Description: "Scrape public LinkedIn profiles from their URLs.",
			Inputs:      []Input{InputURLs},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return li.ScrapeProfiles(ctx, r.URLs)
			},
		},
		{
			Site: "linkedin", Name: "companies",
			Description: "Scrape LinkedIn company pages from their URLs.",
			Inputs:      []Input{InputURLs},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return li.ScrapeCompanies(ctx, r.URLs)
			},
		},
		{
			Site: "linkedin", Name: "jobs",
			Description: "Scrape LinkedIn job postings from their URLs.",
			Inputs:      []Input{InputURLs},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return li.ScrapeJobs(ctx, r.URLs)
			},
		},
		{
			Site: "linkedin", Name: "job-search",
			Description: "Search LinkedIn jobs by keyword and location.",
			Inputs:      []Input{InputKeyword, InputLocation, InputMaxPages},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return li.ScrapeJobSearch(ctx, r.Keyword, r.Location, r.MaxPages)
			},
		},
		{
			Site: "immoscout", Name: "search",
			Description: "Scrape ImmobilienScout24 search results from a search URL.",
			Inputs:      []Input{InputURL, InputAllPages, InputMaxPages},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return is.ScrapeSearch(ctx, r.URL, r.AllPages, r.MaxPages)
			},
		},
		{
			Site: "immoscout", Name: "properties",
			Description: "Scrape ImmobilienScout24 exposé pages from their URLs.",
			Inputs:      []Input{InputURLs},
			Run: func(ctx context.Context, r *models.ScrapeRequest) (*scraper.Result, error) {
				return is.ScrapeProperties(ctx, r.URLs)
			},
		},
	}

	reg := &Registry{ops: ops, byKey: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		reg.byKey[op.Key()] = op
	}
	return reg
}

// Lookup finds an operation by site and name.
func (r *Registry) Lookup(site, name string) (Operation, bool) {
	op, ok := r.byKey[site+"/"+name]
	return op, ok
}

// All returns every operation in site order.
func (r *Registry) All() []Operation {
	return append([]Operation(nil), r.ops...)
}

// Sites returns the site names, sorted.
func (r *Registry) Sites() []string {
	seen := map[string]bool{}
	var out []string
	for _, op := range r.ops {
		if !seen[op.Site] {
			seen[op.Site] = true
			out = append(out, op.Site)
		}
	}
	sort.Strings(out)
	return out
}
