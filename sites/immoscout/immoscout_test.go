package immoscout

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/engine/enginetest"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
)

const searchURL = "https://www.immobilienscout24.de/Suche/de/baden-wuerttemberg/schwarzwald-baar-kreis/villingen-schwenningen/schwenningen/wohnung-kaufen?"

func entry(id int) string {
	return fmt.Sprintf(`{"@id":"%d","@publishDate":"2024-02-01T10:00:00.000+01:00","resultlist.realEstate":{"@xsi.type":"search:ApartmentBuy","title":"Wohnung %d","price":{"value":249000.0,"currency":"EUR"},"livingSpace":71.5,"numberOfRooms":3,"balcony":true,"builtInKitchen":false,"address":{"city":"Villingen-Schwenningen","postcode":"78054","description":{"text":"Schwenningen, Villingen-Schwenningen"}}}}`, id, id)
}

// searchPage renders one result page; entries is either a JSON array or a
// single object.
func searchPage(pageNumber, pages int, entries string) string {
	return `<html><body><script>
IS24.resultList = {
    resultListModel: {"searchResponseModel":{"resultlist.resultlist":{"paging":{"pageNumber":` + strconv.Itoa(pageNumber) +
		`,"pageSize":20,"numberOfPages":` + strconv.Itoa(pages) + `,"numberOfHits":117},"resultlistEntries":[{"@numberOfHits":"117","resultlistEntry":` + entries + `}]}}},
    isUserLoggedIn: false
};
</script></body></html>`
}

func twoEntries(page int) string {
	return "[" + entry(page*100+1) + "," + entry(page*100+2) + "]"
}

func pageNumber(req *engine.FetchRequest) int {
	u, _ := url.Parse(req.URL)
	n, _ := strconv.Atoi(u.Query().Get("pagenumber"))
	return n
}

func newScraper(f *enginetest.Fetcher) *Scraper {
	return New(scraper.New(engine.NewClient(f), scraper.Options{ASP: true, Country: "DE"}))
}

func TestParseSearch(t *testing.T) {
	page, err := parseSearch(&engine.FetchResult{Content: searchPage(1, 6, twoEntries(1))})
	if err != nil {
		t.Fatalf("parseSearch: %v", err)
	}
	if page.Total != 6 || len(page.Records) != 2 {
		t.Fatalf("page = total %d records %d", page.Total, len(page.Records))
	}

	rec := page.Records[0]
	checks := map[string]any{
		"id":       "101",
		"url":      "https://www.immobilienscout24.de/expose/101",
		"title":    "Wohnung 101",
		"type":     "search:ApartmentBuy",
		"price":    249000.0,
		"currency": "EUR",
		"rooms":    float64(3),
		"postcode": "78054",
		"balcony":  true,
	}
	for k, want := range checks {
		if diff := cmp.Diff(want, rec[k]); diff != "" {
			t.Errorf("%s (-want +got):\n%s", k, diff)
		}
	}
}

func TestParseSearch_SingleEntry(t *testing.T) {
	page, err := parseSearch(&engine.FetchResult{Content: searchPage(1, 1, entry(7))})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 1 || page.Records[0]["id"] != "7" {
		t.Errorf("records = %v", page.Records)
	}
}

func TestParseSearch_NoModel(t *testing.T) {
	_, err := parseSearch(&engine.FetchResult{Content: "<html><body>Ich bin kein Roboter</body></html>"})
	if !models.IsDataShape(err) {
		t.Errorf("err = %v, want DATA_SHAPE", err)
	}
}

func TestScrapeSearch_AllPages(t *testing.T) {
	f := &enginetest.Fetcher{Handler: func(req *engine.FetchRequest) (*engine.FetchResult, error) {
		n := pageNumber(req)
		return &engine.FetchResult{Content: searchPage(n, 6, twoEntries(n)), Request: req}, nil
	}}
	s := newScraper(f)

	res, err := s.ScrapeSearch(context.Background(), searchURL, true, 4)
	if err != nil {
		t.Fatalf("ScrapeSearch: %v", err)
	}

	want := []string{
		searchURL + "pagenumber=1",
		searchURL + "pagenumber=2",
		searchURL + "pagenumber=3",
		searchURL + "pagenumber=4",
	}
	if diff := cmp.Diff(want, f.URLs()); diff != "" {
		t.Errorf("requested urls (-want +got):\n%s", diff)
	}
	if len(res.Records) != 8 {
		t.Errorf("records = %d, want 8", len(res.Records))
	}
	// Total is numberOfPages, not numberOfHits.
	if res.Total != 6 {
		t.Errorf("total = %d, want page count 6", res.Total)
	}
	var ids []string
	for _, r := range res.Records {
		ids = append(ids, r["id"].(string))
	}
	if diff := cmp.Diff([]string{"101", "102", "201", "202", "301", "302", "401", "402"}, ids); diff != "" {
		t.Errorf("records not in page order (-want +got):\n%s", diff)
	}
}

func TestScrapeSearch_FirstPageOnly(t *testing.T) {
	f := &enginetest.Fetcher{Handler: func(req *engine.FetchRequest) (*engine.FetchResult, error) {
		return &engine.FetchResult{Content: searchPage(1, 6, twoEntries(1))}, nil
	}}
	res, err := newScraper(f).ScrapeSearch(context.Background(), searchURL, false, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Requests()) != 1 || len(res.Records) != 2 {
		t.Errorf("fetches = %d records = %d", len(f.Requests()), len(res.Records))
	}
}

const exposePage = `<html><body>
<h1 id="expose-title">Helle 3-Zimmer-Wohnung</h1>
<div class="address-block"><span>Muster Str. 1,</span> <span>78054 Schwenningen</span></div>
<div class="is24qa-kaufpreis-main">249.000 €</div>
<div class="is24qa-flaeche-main">71,5 m²</div>
<div class="is24qa-zi-main">3</div>
<pre class="is24qa-objektbeschreibung">Ruhige Lage.</pre>
<div class="criteriagroup boolean-listing"><span>Balkon/ Terrasse</span><span>Keller</span></div>
<div class="criteriagroup"><dl><dt>Etage</dt><dd>2 von 4</dd></dl><dl><dt>Baujahr</dt><dd>1994</dd></dl></div>
<div class="sp-slide"><img data-src="https://pictures.immobilienscout24.de/1.jpg"></div>
</body></html>`

func TestParseExpose(t *testing.T) {
	res := &engine.FetchResult{Content: exposePage, FinalURL: "https://www.immobilienscout24.de/expose/79351890"}
	rec, err := parseExpose(res)
	if err != nil {
		t.Fatal(err)
	}
	checks := map[string]any{
		"title":         "Helle 3-Zimmer-Wohnung",
		"address":       "Muster Str. 1, 78054 Schwenningen",
		"purchasePrice": "249.000 €",
		"coldRent":      "",
		"rooms":         "3",
		"features":      []string{"Balkon/ Terrasse", "Keller"},
		"images":        []string{"https://pictures.immobilienscout24.de/1.jpg"},
		"attributes":    map[string]string{"Etage": "2 von 4", "Baujahr": "1994"},
		"url":           res.FinalURL,
	}
	for k, want := range checks {
		if diff := cmp.Diff(want, rec[k]); diff != "" {
			t.Errorf("%s (-want +got):\n%s", k, diff)
		}
	}
}

func TestScrapeProperties(t *testing.T) {
	f := &enginetest.Fetcher{Handler: enginetest.Pages(map[string]string{
		"https://www.immobilienscout24.de/expose/79351890": exposePage,
		"https://www.immobilienscout24.de/expose/1":        "<html><body>Angebot nicht gefunden</body></html>",
	})}
	res, err := newScraper(f).ScrapeProperties(context.Background(), []string{
		"https://www.immobilienscout24.de/expose/79351890",
		"https://www.immobilienscout24.de/expose/1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Requested != 2 || res.Succeeded != 1 || len(res.Records) != 1 {
		t.Errorf("result = %+v", res)
	}
}
