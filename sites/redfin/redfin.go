// Package redfin scrapes Redfin search results and property listings.
//
// Search results come from the gis API whose parameters are copied from the
// search page's CSV download link. Sale listings are parsed from the page
// HTML. Rentals are served by a floor plan API keyed by the rental id that
// the page embeds in its og:image URL.
package redfin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/harvest/cleaner"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
)

const (
	baseURL      = "https://www.redfin.com"
	gisAPI       = baseURL + "/stingray/api/gis?"
	floorPlanAPI = baseURL + "/stingray/api/v1/rentals/%s/floorPlans"

	// jsonPrefix guards Redfin API bodies against JSON hijacking.
	jsonPrefix = "{}&&"

	rentalIDLen = 36
)

// Scraper runs the Redfin operations.
type Scraper struct {
	s *scraper.Scraper
}

// New creates a Redfin scraper.
func New(s *scraper.Scraper) *Scraper {
	return &Scraper{s: s}
}

// apiTemplate builds a request for a Redfin JSON API. These endpoints are
// not protected, so they go without the anti-bot bypass.
func (r *Scraper) apiTemplate(rawURL string) scraper.RequestTemplate {
	t := r.s.Template(rawURL)
	t.ASP = false
	return t
}

// ScrapeSearch scrapes every home listed by a search page URL.
func (r *Scraper) ScrapeSearch(ctx context.Context, searchURL string) (*scraper.Result, error) {
	if searchURL == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "search url is required", nil)
	}

	seedReq := r.s.Template(searchURL).Build(0)
	page, err := r.s.Fetch(ctx, seedReq)
	if err != nil {
		return nil, &models.ScrapeError{Code: models.ErrCodeSeed, Message: "redfin search page failed", URL: searchURL, Err: err}
	}
	params, err := searchParams(page)
	if err != nil {
		return nil, err
	}

	apiRes, err := r.s.Fetch(ctx, r.apiTemplate(gisAPI+params).Build(0))
	if err != nil {
		return nil, err
	}
	root, err := extract.JSONBody(apiRes, jsonPrefix)
	if err != nil {
		return nil, err
	}
	homes, err := extract.Objects(root, apiRes.URL(), "payload", "homes")
	if err != nil {
		return nil, err
	}

	slog.Info("search complete",
		"name", "redfin search",
		"requested", 2,
		"succeeded", 2,
		"records", len(homes),
	)
	return &scraper.Result{Records: homes, Total: len(homes), Requested: 2, Succeeded: 2}, nil
}

// searchParams returns the query string of the search page's CSV download
// link, which the gis API accepts unchanged.
func searchParams(res *engine.FetchResult) (string, error) {
	link, err := extract.Require(res, "a#download-and-save")
	if err != nil {
		return "", err
	}
	_, params, ok := strings.Cut(link.AttrOr("href", ""), "gis-csv?")
	if !ok || params == "" {
		return "", models.NewDataShapeError(res.URL(), "download link has no gis-csv parameters", nil)
	}
	return params, nil
}

var saleFields = extract.FieldMap[*goquery.Selection]{
	extract.F("address", address),
	extract.F("description", extract.Text("#marketing-remarks-scroll p span")),
	extract.F("price", extract.Text("div[data-rf-test-id=abp-price] > div")),
	extract.F("estimatedMonthlyPrice", extract.Text("span.est-monthly-payment")),
	extract.F("attachments", extract.Attrs("img.widenPhoto", "src")),
	extract.F("details", extract.Texts("div .keyDetails-value")),
	extract.F("features", features),
}

func address(s *goquery.Selection) any {
	street := extract.TextOf(extract.Find(s, ".street-address"))
	city := extract.TextOf(extract.Find(s, ".cityStateZip"))
	return strings.TrimSpace(street + " " + city)
}

// features groups amenity labels by their heading.
func features(s *goquery.Selection) any {
	out := map[string][]string{}
	extract.Find(s, ".amenity-group ul div.title").Each(func(_ int, title *goquery.Selection) {
		label := extract.TextOf(title)
		vals := []string{}
		title.NextAllFiltered("li").ChildrenFiltered("span").Each(func(_ int, span *goquery.Selection) {
			vals = append(vals, extract.TextOf(span))
		})
		out[label] = vals
	})
	return out
}

// ScrapePropertiesForSale scrapes sale listing pages.
func (r *Scraper) ScrapePropertiesForSale(ctx context.Context, urls []string) (*scraper.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no property urls given", nil)
	}
	return r.s.Each(ctx, "redfin properties for sale", r.s.Requests(urls), scraper.One(parseForSale)), nil
}

func parseForSale(res *engine.FetchResult) (extract.Record, error) {
	// The address block is on every listing; its absence means the page
	// is not a listing (or a block page).
	if _, err := extract.Require(res, ".street-address"); err != nil {
		return nil, err
	}
	root, err := extract.Root(res)
	if err != nil {
		return nil, err
	}
	rec := extract.Apply(root, saleFields)
	rec["propertyUrl"] = res.URL()

	if remarks := extract.Find(root, "#marketing-remarks-scroll"); remarks.Length() > 0 {
		if inner, err := remarks.Html(); err == nil {
			if md, err := cleaner.ToMarkdown(inner, baseURL); err == nil {
				rec["descriptionMarkdown"] = md
			}
		}
	}
	return rec, nil
}

// ScrapePropertiesForRent scrapes rental listings. Each page is fetched for
// its rental id and the floor plans are then read from the API. Pages
// without a valid rental id are skipped.
func (r *Scraper) ScrapePropertiesForRent(ctx context.Context, urls []string) (*scraper.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no property urls given", nil)
	}

	ids, pages := scraper.Gather(ctx, r.s, "redfin rental pages", r.s.Requests(urls), func(res *engine.FetchResult) ([]string, error) {
		id, ok, err := rentalID(res)
		if err != nil {
			return nil, err
		}
		if !ok {
			slog.Info("property isn't for rent", "url", res.URL())
			return nil, nil
		}
		return []string{id}, nil
	})

	apiReqs := make([]*engine.FetchRequest, len(ids))
	for i, id := range ids {
		apiReqs[i] = r.apiTemplate(fmt.Sprintf(floorPlanAPI, id)).Build(0)
	}
	res := r.s.Each(ctx, "redfin rentals", apiReqs, scraper.One(parseFloorPlans))
	res.Requested += len(urls)
	res.Succeeded += pages
	return res, nil
}

// rentalID reads the rental id from the og:image URL, of the form
// .../rent/<id>/... ok is false when the page has no usable id.
func rentalID(res *engine.FetchResult) (id string, ok bool, err error) {
	root, err := extract.Root(res)
	if err != nil {
		return "", false, err
	}
	content := extract.Find(root, `meta[property="og:image"]`).AttrOr("content", "")
	_, rest, found := strings.Cut(content, "rent/")
	if !found {
		return "", false, nil
	}
	id, _, _ = strings.Cut(rest, "/")
	if len(id) != rentalIDLen {
		return "", false, nil
	}
	return id, true, nil
}

func parseFloorPlans(res *engine.FetchResult) (extract.Record, error) {
	root, err := extract.JSONBody(res, jsonPrefix)
	if err != nil {
		return nil, err
	}
	return extract.Object(root, res.URL())
}
