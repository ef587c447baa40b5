// Package immoscout scrapes ImmobilienScout24 search results and exposé
// (property) pages.
package immoscout

import (
	"context"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
)

const exposeURL = "https://www.immobilienscout24.de/expose/"

// resultListModel captures the search state assigned in an inline script.
var resultListModel = regexp.MustCompile(`resultListModel:\s*(\{.*\}),\s*\n`)

// resultList is the path to the result list inside resultListModel.
var resultList = []any{"searchResponseModel", "resultlist.resultlist"}

// Scraper runs the ImmobilienScout24 operations.
type Scraper struct {
	s *scraper.Scraper
}

// New creates an ImmobilienScout24 scraper.
func New(s *scraper.Scraper) *Scraper {
	return &Scraper{s: s}
}

var estate = []any{"resultlist.realEstate"}

func estatePath(path ...any) []any {
	return append(append([]any{}, estate...), path...)
}

var listingFields = extract.FieldMap[gson.JSON]{
	extract.F("id", extract.Str("@id")),
	extract.F("url", func(n gson.JSON) any { return exposeURL + extract.Str("@id")(n).(string) }),
	extract.F("publishDate", extract.Str("@publishDate")),
	extract.F("title", extract.Str(estatePath("title")...)),
	extract.F("type", extract.Str(estatePath("@xsi.type")...)),
	extract.F("price", extract.Path(estatePath("price", "value")...)),
	extract.F("currency", extract.Str(estatePath("price", "currency")...)),
	extract.F("livingSpace", extract.Path(estatePath("livingSpace")...)),
	extract.F("rooms", extract.Path(estatePath("numberOfRooms")...)),
	extract.F("address", extract.Str(estatePath("address", "description", "text")...)),
	extract.F("city", extract.Str(estatePath("address", "city")...)),
	extract.F("postcode", extract.Str(estatePath("address", "postcode")...)),
	extract.F("balcony", extract.Bool(estatePath("balcony")...)),
	extract.F("builtInKitchen", extract.Bool(estatePath("builtInKitchen")...)),
	extract.F("realtor", extract.Str(estatePath("contactDetails", "company")...)),
}

// ScrapeSearch scrapes a search URL. Unless allPages is set only the
// first result page is read; maxPages caps the pages when it is, zero
// meaning every page. Result.Total is the number of result pages.
func (m *Scraper) ScrapeSearch(ctx context.Context, searchURL string, allPages bool, maxPages int) (*scraper.Result, error) {
	if searchURL == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "search url is required", nil)
	}
	if !allPages {
		maxPages = 1
	}

	tmpl := m.s.Template(searchURL)
	tmpl.CursorParam = "pagenumber"

	return m.s.Paginate(ctx, scraper.Pagination{
		Name:     "immoscout search",
		Template: tmpl,
		Start:    1,
		PageSize: 1,
		MaxPages: maxPages,
		Mode:     scraper.ByTotal,
		Parse:    parseSearch,
		Ordered:  true,
	})
}

func parseSearch(res *engine.FetchResult) (scraper.Page, error) {
	list, err := extract.ScriptJSON(res, resultListModel, resultList...)
	if err != nil {
		return scraper.Page{}, err
	}
	pages, err := extract.Descend(list, res.URL(), "paging", "numberOfPages")
	if err != nil {
		return scraper.Page{}, err
	}

	entries, err := extract.Descend(list, res.URL(), "resultlistEntries", 0, "resultlistEntry")
	if err != nil {
		// An empty search has no entries at all.
		if hits, ok := list.Gets("paging", "numberOfHits"); ok && hits.Int() == 0 {
			return scraper.Page{Total: pages.Int()}, nil
		}
		return scraper.Page{}, err
	}
	// A single hit is serialized as an object rather than a list.
	if _, isObj := entries.Val().(map[string]interface{}); isObj {
		return scraper.Page{Records: []extract.Record{extract.Apply(entries, listingFields)}, Total: pages.Int()}, nil
	}

	records, err := extract.Items(entries, res.URL(), nil, nil, listingFields)
	if err != nil {
		return scraper.Page{}, err
	}
	return scraper.Page{Records: records, Total: pages.Int()}, nil
}

var exposeFields = extract.FieldMap[*goquery.Selection]{
	extract.F("title", extract.Text("h1#expose-title")),
	extract.F("address", extract.Text("div.address-block")),
	extract.F("purchasePrice", extract.Text("div.is24qa-kaufpreis-main")),
	extract.F("coldRent", extract.Text("div.is24qa-kaltmiete-main")),
	extract.F("livingSpace", extract.Text("div.is24qa-flaeche-main")),
	extract.F("rooms", extract.Text("div.is24qa-zi-main")),
	extract.F("description", extract.Text("pre.is24qa-objektbeschreibung")),
	extract.F("equipment", extract.Text("pre.is24qa-ausstattung")),
	extract.F("location", extract.Text("pre.is24qa-lage")),
	extract.F("features", extract.Texts("div.criteriagroup.boolean-listing span")),
	extract.F("images", extract.Attrs("div.sp-slide img", "data-src")),
	extract.F("realtor", extract.Text("span[data-qa=companyName]")),
	extract.F("attributes", attributes),
}

// attributes collects the label/value rows of the criteria tables.
func attributes(s *goquery.Selection) any {
	out := map[string]string{}
	extract.Find(s, "div.criteriagroup dl").Each(func(_ int, row *goquery.Selection) {
		label := extract.TextOf(extract.Find(row, "dt"))
		if label == "" {
			return
		}
		out[label] = extract.TextOf(extract.Find(row, "dd"))
	})
	return out
}

// ScrapeProperties scrapes exposé pages.
func (m *Scraper) ScrapeProperties(ctx context.Context, urls []string) (*scraper.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no property urls given", nil)
	}
	return m.s.Each(ctx, "immoscout properties", m.s.Requests(urls), scraper.One(parseExpose)), nil
}

func parseExpose(res *engine.FetchResult) (extract.Record, error) {
	if _, err := extract.Require(res, "h1#expose-title"); err != nil {
		return nil, err
	}
	root, err := extract.Root(res)
	if err != nil {
		return nil, err
	}
	rec := extract.Apply(root, exposeFields)
	rec["url"] = res.URL()
	return rec, nil
}
