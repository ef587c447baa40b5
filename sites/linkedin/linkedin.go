// Package linkedin scrapes public LinkedIn profiles, company pages, job
// postings and job searches. Entity pages carry a JSON-LD description of
// the entity; job searches page through the guest jobs API.
package linkedin

import (
	"context"
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/cleaner"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
)

const (
	baseURL       = "https://www.linkedin.com"
	jobSearchPage = baseURL + "/jobs/search"
	jobSearchAPI  = baseURL + "/jobs-guest/jobs/api/seeMoreJobPostings/search"

	// JobsPerPage is the fixed page size of the guest jobs API.
	JobsPerPage = 25
)

// Scraper runs the LinkedIn operations.
type Scraper struct {
	s *scraper.Scraper
}

// New creates a LinkedIn scraper.
func New(s *scraper.Scraper) *Scraper {
	return &Scraper{s: s}
}

// ScrapeProfiles scrapes public profile pages into their JSON-LD Person.
func (l *Scraper) ScrapeProfiles(ctx context.Context, urls []string) (*scraper.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no profile urls given", nil)
	}
	return l.s.Each(ctx, "linkedin profiles", l.s.Requests(urls), scraper.One(parseProfile)), nil
}

func parseProfile(res *engine.FetchResult) (extract.Record, error) {
	person, err := extract.LinkedData(res, "Person")
	if err != nil {
		return nil, err
	}
	return extract.Object(person, res.URL())
}

var companyFields = extract.FieldMap[gson.JSON]{
	extract.F("name", extract.Str("name")),
	extract.F("url", extract.Str("url")),
	extract.F("description", extract.Str("description")),
	extract.F("slogan", extract.Str("slogan")),
	extract.F("logo", extract.Str("logo", "contentUrl")),
	extract.F("numberOfEmployees", extract.Int("numberOfEmployees", "value")),
	extract.F("address", extract.Path("address")),
	extract.F("sameAs", extract.Path("sameAs")),
}

func aboutItem(id string) string {
	return `div[data-test-id="about-us__` + id + `"] dd`
}

var aboutFields = extract.FieldMap[*goquery.Selection]{
	extract.F("website", extract.Attr(aboutItem("website")+" a", "href")),
	extract.F("industry", extract.Text(aboutItem("industry"))),
	extract.F("companySize", extract.Text(aboutItem("size"))),
	extract.F("headquarters", extract.Text(aboutItem("headquarters"))),
	extract.F("organizationType", extract.Text(aboutItem("organizationType"))),
	extract.F("founded", extract.Text(aboutItem("foundedOn"))),
	extract.F("specialties", extract.Text(aboutItem("specialties"))),
}

// ScrapeCompanies scrapes company pages. The JSON-LD Organization is
// merged with the page's "About us" section.
func (l *Scraper) ScrapeCompanies(ctx context.Context, urls []string) (*scraper.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no company urls given", nil)
	}
	return l.s.Each(ctx, "linkedin companies", l.s.Requests(urls), scraper.One(parseCompany)), nil
}

func parseCompany(res *engine.FetchResult) (extract.Record, error) {
	org, err := extract.LinkedData(res, "Organization")
	if err != nil {
		return nil, err
	}
	rec := extract.Apply(org, companyFields)

	root, err := extract.Root(res)
	if err != nil {
		return nil, err
	}
	for k, v := range extract.Apply(root, aboutFields) {
		rec[k] = v
	}
	return rec, nil
}

// ScrapeJobs scrapes job posting pages. The description is returned as
// Markdown.
func (l *Scraper) ScrapeJobs(ctx context.Context, urls []string) (*scraper.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no job urls given", nil)
	}
	return l.s.Each(ctx, "linkedin jobs", l.s.Requests(urls), scraper.One(parseJob)), nil
}

func parseJob(res *engine.FetchResult) (extract.Record, error) {
	posting, err := extract.LinkedData(res, "JobPosting")
	if err != nil {
		return nil, err
	}
	rec, err := extract.Object(posting, res.URL())
	if err != nil {
		return nil, err
	}

	if desc, ok := rec["description"].(string); ok {
		// JSON-LD carries the description as escaped HTML.
		md, err := cleaner.ToMarkdown(html.UnescapeString(desc), baseURL)
		if err == nil {
			rec["description"] = md
		}
	}

	root, err := extract.Root(res)
	if err != nil {
		return nil, err
	}
	rec["jobUrl"] = res.URL()
	rec["applicants"] = extract.Text("figcaption.num-applicants__caption")(root)
	rec["criteria"] = jobCriteria(root)
	return rec, nil
}

// jobCriteria reads the seniority/employment/function list under a job
// description as label to value.
func jobCriteria(root *goquery.Selection) map[string]string {
	out := map[string]string{}
	extract.Find(root, "li.description__job-criteria-item").Each(func(_ int, item *goquery.Selection) {
		label := extract.TextOf(extract.Find(item, "h3"))
		if label == "" {
			return
		}
		out[label] = extract.TextOf(extract.Find(item, "span"))
	})
	return out
}

var jobCardFields = extract.FieldMap[*goquery.Selection]{
	extract.F("jobId", jobID),
	extract.F("title", extract.Text("h3.base-search-card__title")),
	extract.F("company", extract.Text("h4.base-search-card__subtitle")),
	extract.F("companyUrl", cleanLink("h4.base-search-card__subtitle a")),
	extract.F("location", extract.Text("span.job-search-card__location")),
	extract.F("salary", extract.Text("span.job-search-card__salary-info")),
	extract.F("benefits", extract.Text("span.result-benefits__text")),
	extract.F("postedAt", extract.Attr("time", "datetime")),
	extract.F("url", cleanLink("a.base-card__full-link")),
}

func jobID(card *goquery.Selection) any {
	urn := card.AttrOr("data-entity-urn", "")
	return strings.TrimPrefix(urn, "urn:li:jobPosting:")
}

// cleanLink selects a link without its tracking query.
func cleanLink(selector string) func(*goquery.Selection) any {
	return func(s *goquery.Selection) any {
		href := extract.Attr(selector, "href")(s).(string)
		href, _, _ = strings.Cut(href, "?")
		return href
	}
}

// ScrapeJobSearch scrapes job search results. The search page gives the
// total and the first cards; later pages come from the guest jobs API at
// 25 jobs per page. maxPages caps the pages fetched, zero means all.
func (l *Scraper) ScrapeJobSearch(ctx context.Context, keyword, location string, maxPages int) (*scraper.Result, error) {
	if keyword == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "keyword is required", nil)
	}
	params := url.Values{"keywords": {keyword}}
	if location != "" {
		params.Set("location", location)
	}

	seed := l.s.Template(jobSearchPage)
	seed.Params = params

	api := l.s.Template(jobSearchAPI)
	api.Params = params
	api.CursorParam = "start"

	return l.s.Paginate(ctx, scraper.Pagination{
		Name:     "linkedin job search",
		Template: api,
		Seed:     &seed,
		PageSize: JobsPerPage,
		MaxPages: maxPages,
		Mode:     scraper.ByTotal,
		Parse:    parseJobCards,
	})
}

func parseJobCards(res *engine.FetchResult) (scraper.Page, error) {
	root, err := extract.Root(res)
	if err != nil {
		return scraper.Page{}, err
	}
	cards := extract.Find(root, "div.base-search-card")
	header := extract.Find(root, "span.results-context-header__job-count")
	if cards.Length() == 0 && header.Length() == 0 {
		return scraper.Page{}, models.NewDataShapeError(res.URL(), "no job cards or job count", nil)
	}

	page := scraper.Page{Total: parseCount(extract.TextOf(header))}
	cards.Each(func(_ int, card *goquery.Selection) {
		page.Records = append(page.Records, extract.Apply(card, jobCardFields))
	})
	return page, nil
}

// parseCount reads counts such as "1,000+" or "2.345".
func parseCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
		}
	}
	return n
}
