package redfin

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/engine/enginetest"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
)

const searchPage = `<html><body>
<a id="download-and-save" href="/stingray/api/gis-csv?al=1&amp;market=seattle&amp;num_homes=350&amp;region_id=16163&amp;region_type=6&amp;v=8">Download</a>
</body></html>`

const gisBody = `{}&&{"version":1,"errorMessage":"Success","resultCode":0,"payload":{"homes":[
 {"mlsId":{"value":"1"},"price":{"value":500000},"url":"/WA/Seattle/1"},
 {"mlsId":{"value":"2"},"price":{"value":750000},"url":"/WA/Seattle/2"}
]}}`

const salePage = `<html><body>
<div data-rf-test-id="abp-price"><div>$1,250,000</div><span>Price</span></div>
<span class="est-monthly-payment">$7,801</span>/mo
<div class="street-address">123 Pine St</div>
<div class="cityStateZip">Seattle, WA 98101</div>
<div id="marketing-remarks-scroll"><p><span>Light-filled <b>corner</b> home.</span></p></div>
<img class="widenPhoto" src="https://ssl.cdn-redfin.com/1.jpg">
<img class="widenPhoto" src="https://ssl.cdn-redfin.com/2.jpg">
<div class="keyDetails"><div class="keyDetails-value">Single Family</div><div class="keyDetails-value">Built 1925</div></div>
<div class="amenity-group"><ul>
 <div class="title">Parking</div>
 <li><span>Garage: 2</span></li>
 <li><span>Driveway</span></li>
</ul></div>
</body></html>`

func rentalPage(id string) string {
	return `<html><head><meta property="og:image" content="https://ssl.cdn-redfin.com/photo/rent/` + id + `/genMid.jpg"></head><body></body></html>`
}

const (
	rentalA = "a1b2c3d4-0000-4000-8000-000000000001"
	rentalB = "a1b2c3d4-0000-4000-8000-000000000002"
)

func newScraper(f *enginetest.Fetcher) *Scraper {
	return New(scraper.New(engine.NewClient(f), scraper.Options{ASP: true, Country: "US"}))
}

func TestScrapeSearch(t *testing.T) {
	f := &enginetest.Fetcher{Handler: enginetest.Pages(map[string]string{
		"https://www.redfin.com/city/16163/WA/Seattle": searchPage,
		gisAPI: gisBody,
	})}
	s := newScraper(f)

	res, err := s.ScrapeSearch(context.Background(), "https://www.redfin.com/city/16163/WA/Seattle")
	if err != nil {
		t.Fatalf("ScrapeSearch: %v", err)
	}
	if len(res.Records) != 2 || res.Total != 2 {
		t.Errorf("records = %d total = %d", len(res.Records), res.Total)
	}

	reqs := f.Requests()
	api := reqs[1]
	want := gisAPI + "al=1&market=seattle&num_homes=350&region_id=16163&region_type=6&v=8"
	if api.URL != want {
		t.Errorf("api url = %s, want %s", api.URL, want)
	}
	if api.ASP || api.Country != "US" {
		t.Errorf("api flags = asp %v country %q, want no asp and US", api.ASP, api.Country)
	}
	if !reqs[0].ASP {
		t.Error("search page must use asp")
	}
}

func TestScrapeSearch_LogsPageCounts(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	f := &enginetest.Fetcher{Handler: enginetest.Pages(map[string]string{
		"https://www.redfin.com/city/16163/WA/Seattle": searchPage,
		gisAPI: gisBody,
	})}
	res, err := newScraper(f).ScrapeSearch(context.Background(), "https://www.redfin.com/city/16163/WA/Seattle")
	if err != nil {
		t.Fatalf("ScrapeSearch: %v", err)
	}
	if res.Requested != 2 || res.Succeeded != 2 {
		t.Errorf("requested = %d succeeded = %d, want 2 and 2", res.Requested, res.Succeeded)
	}

	var summary string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, `"msg":"search complete"`) {
			summary = line
		}
	}
	for _, want := range []string{`"requested":2`, `"succeeded":2`, `"records":2`} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary log %q lacks %s", summary, want)
		}
	}
}

func TestScrapeSearch_SeedFailure(t *testing.T) {
	f := &enginetest.Fetcher{Handler: enginetest.Pages(map[string]string{})}
	_, err := newScraper(f).ScrapeSearch(context.Background(), "https://www.redfin.com/city/1")
	if models.CodeOf(err) != models.ErrCodeSeed {
		t.Errorf("code = %s, want %s", models.CodeOf(err), models.ErrCodeSeed)
	}
}

func TestScrapeSearch_MissingLink(t *testing.T) {
	f := &enginetest.Fetcher{Handler: enginetest.Pages(map[string]string{
		"https://www.redfin.com/city/1": "<html><body>no results</body></html>",
	})}
	_, err := newScraper(f).ScrapeSearch(context.Background(), "https://www.redfin.com/city/1")
	if !models.IsDataShape(err) {
		t.Errorf("err = %v, want DATA_SHAPE", err)
	}
	if len(f.Requests()) != 1 {
		t.Errorf("fetches = %d, want 1", len(f.Requests()))
	}
}

func TestParseForSale(t *testing.T) {
	res := &engine.FetchResult{Content: salePage, FinalURL: "https://www.redfin.com/WA/Seattle/123-Pine-St/home/1"}
	rec, err := parseForSale(res)
	if err != nil {
		t.Fatalf("parseForSale: %v", err)
	}

	checks := map[string]any{
		"address":               "123 Pine St Seattle, WA 98101",
		"price":                 "$1,250,000",
		"estimatedMonthlyPrice": "$7,801",
		"description":           "Light-filled corner home.",
		"propertyUrl":           res.FinalURL,
		"attachments":           []string{"https://ssl.cdn-redfin.com/1.jpg", "https://ssl.cdn-redfin.com/2.jpg"},
		"details":               []string{"Single Family", "Built 1925"},
		"features":              map[string][]string{"Parking": {"Garage: 2", "Driveway"}},
	}
	for k, want := range checks {
		if diff := cmp.Diff(want, rec[k]); diff != "" {
			t.Errorf("%s (-want +got):\n%s", k, diff)
		}
	}
	if md, _ := rec["descriptionMarkdown"].(string); !strings.Contains(md, "**corner**") {
		t.Errorf("descriptionMarkdown = %q", md)
	}
}

func TestParseForSale_NotAListing(t *testing.T) {
	_, err := parseForSale(&engine.FetchResult{Content: "<html><body>Access denied</body></html>"})
	if !models.IsDataShape(err) {
		t.Errorf("err = %v, want DATA_SHAPE", err)
	}
}

func TestRentalID(t *testing.T) {
	tests := []struct {
		name   string
		page   string
		wantID string
		wantOK bool
	}{
		{"valid", rentalPage(rentalA), rentalA, true},
		{"short id", rentalPage("12345"), "", false},
		{"sale photo", `<meta property="og:image" content="https://ssl.cdn-redfin.com/photo/1/bigphoto/1.jpg">`, "", false},
		{"no meta", "<html></html>", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok, err := rentalID(&engine.FetchResult{Content: tt.page})
			if err != nil {
				t.Fatal(err)
			}
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("rentalID = %q, %v; want %q, %v", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

// A page without a rental id is excluded from the floor plan requests.
func TestScrapePropertiesForRent_SkipsMissingID(t *testing.T) {
	f := &enginetest.Fetcher{Handler: enginetest.Pages(map[string]string{
		"https://www.redfin.com/WA/Seattle/a/apartment/1": rentalPage(rentalA),
		"https://www.redfin.com/WA/Seattle/b/apartment/2": rentalPage("not-a-rental"),
		"https://www.redfin.com/WA/Seattle/c/apartment/3": rentalPage(rentalB),
		"https://www.redfin.com/stingray/api/v1/rentals/": `{"floorPlans":[{"beds":1}]}`,
	})}
	s := newScraper(f)

	res, err := s.ScrapePropertiesForRent(context.Background(), []string{
		"https://www.redfin.com/WA/Seattle/a/apartment/1",
		"https://www.redfin.com/WA/Seattle/b/apartment/2",
		"https://www.redfin.com/WA/Seattle/c/apartment/3",
	})
	if err != nil {
		t.Fatal(err)
	}

	var apiURLs []string
	for _, u := range f.URLs() {
		if strings.Contains(u, "/stingray/api/") {
			apiURLs = append(apiURLs, u)
		}
	}
	want := []string{
		"https://www.redfin.com/stingray/api/v1/rentals/" + rentalA + "/floorPlans",
		"https://www.redfin.com/stingray/api/v1/rentals/" + rentalB + "/floorPlans",
	}
	if diff := cmp.Diff(want, apiURLs); diff != "" {
		t.Errorf("floor plan requests (-want +got):\n%s", diff)
	}
	if len(res.Records) != 2 {
		t.Errorf("records = %d, want 2", len(res.Records))
	}
	if res.Requested != 5 || res.Succeeded != 5 {
		t.Errorf("requested %d succeeded %d, want 5 and 5", res.Requested, res.Succeeded)
	}
}
