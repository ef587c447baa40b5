package linkedin

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/engine/enginetest"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
)

const profilePage = `<html><head>
<script type="application/ld+json">{"@context":"http://schema.org","@graph":[
 {"@type":"WebPage","url":"https://www.linkedin.com/in/williamhgates"},
 {"@type":"Person","name":"Bill Gates","jobTitle":["Co-chair"],"address":{"addressLocality":"Seattle"}}
]}</script></head><body></body></html>`

const companyPage = `<html><head>
<script type="application/ld+json">{"@context":"http://schema.org","@type":"Organization",
 "name":"Microsoft","url":"https://www.linkedin.com/company/microsoft","description":"Every person.",
 "logo":{"@type":"ImageObject","contentUrl":"https://media.licdn.com/logo.png"},
 "numberOfEmployees":{"value":221000,"@type":"QuantitativeValue"},
 "address":{"addressLocality":"Redmond"},"sameAs":"https://news.microsoft.com/"}</script>
</head><body><dl>
<div data-test-id="about-us__website"><dt>Website</dt><dd><a href="https://news.microsoft.com/">news.microsoft.com</a></dd></div>
<div data-test-id="about-us__industry"><dt>Industry</dt><dd>Software Development</dd></div>
<div data-test-id="about-us__size"><dt>Company size</dt><dd>10,001+ employees</dd></div>
<div data-test-id="about-us__headquarters"><dt>Headquarters</dt><dd>Redmond, Washington</dd></div>
</dl></body></html>`

const jobPage = `<html><head>
<script type="application/ld+json">{"@context":"http://schema.org","@type":"JobPosting",
 "title":"Python Developer","datePosted":"2024-03-01",
 "description":"&lt;p&gt;Build &lt;strong&gt;APIs&lt;/strong&gt;.&lt;/p&gt;",
 "hiringOrganization":{"name":"MindPal"}}</script>
</head><body>
<figcaption class="num-applicants__caption"> Over 200 applicants </figcaption>
<ul class="description__job-criteria-list">
 <li class="description__job-criteria-item"><h3>Seniority level</h3><span>Internship</span></li>
 <li class="description__job-criteria-item"><h3>Employment type</h3><span>Full-time</span></li>
</ul></body></html>`

func jobCards(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		id := 3700000000 + start + i
		fmt.Fprintf(&b, `<li><div class="base-card base-search-card job-search-card" data-entity-urn="urn:li:jobPosting:%d">
<a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/python-developer-%d?refId=abc&trackingId=x"></a>
<h3 class="base-search-card__title">Python Developer</h3>
<h4 class="base-search-card__subtitle"><a href="https://www.linkedin.com/company/acme?trk=public_jobs">Acme</a></h4>
<span class="job-search-card__location">Austin, TX</span>
<time class="job-search-card__listdate" datetime="2024-03-01">1 week ago</time>
</div></li>`, id, id)
	}
	return b.String()
}

func searchPage(total string) string {
	return `<html><body><h1><span class="results-context-header__job-count">` + total + `</span> Python Developer Jobs</h1>
<ul class="jobs-search__results-list">` + jobCards(0, JobsPerPage) + `</ul></body></html>`
}

func newScraper(f *enginetest.Fetcher) *Scraper {
	return New(scraper.New(engine.NewClient(f), scraper.Options{Country: "US"}))
}

func TestParseProfile_Graph(t *testing.T) {
	rec, err := parseProfile(&engine.FetchResult{Content: profilePage})
	if err != nil {
		t.Fatal(err)
	}
	if rec["name"] != "Bill Gates" {
		t.Errorf("profile = %v", rec)
	}
}

func TestParseCompany(t *testing.T) {
	rec, err := parseCompany(&engine.FetchResult{Content: companyPage})
	if err != nil {
		t.Fatal(err)
	}
	want := extract.Record{
		"name":              "Microsoft",
		"url":               "https://www.linkedin.com/company/microsoft",
		"description":       "Every person.",
		"slogan":            "",
		"logo":              "https://media.licdn.com/logo.png",
		"numberOfEmployees": 221000,
		"address":           map[string]interface{}{"addressLocality": "Redmond"},
		"sameAs":            "https://news.microsoft.com/",
		"website":           "https://news.microsoft.com/",
		"industry":          "Software Development",
		"companySize":       "10,001+ employees",
		"headquarters":      "Redmond, Washington",
		"organizationType":  "",
		"founded":           "",
		"specialties":       "",
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("company (-want +got):\n%s", diff)
	}
}

func TestParseJob(t *testing.T) {
	res := &engine.FetchResult{Content: jobPage, FinalURL: "https://www.linkedin.com/jobs/view/3703081824"}
	rec, err := parseJob(res)
	if err != nil {
		t.Fatal(err)
	}
	if rec["description"] != "Build **APIs**." {
		t.Errorf("description = %q", rec["description"])
	}
	if rec["applicants"] != "Over 200 applicants" || rec["jobUrl"] != res.FinalURL {
		t.Errorf("job = %v", rec)
	}
	wantCriteria := map[string]string{"Seniority level": "Internship", "Employment type": "Full-time"}
	if diff := cmp.Diff(wantCriteria, rec["criteria"]); diff != "" {
		t.Errorf("criteria (-want +got):\n%s", diff)
	}
}

func TestParseJob_NoLinkedData(t *testing.T) {
	_, err := parseJob(&engine.FetchResult{Content: "<html><body>Sign in</body></html>"})
	if !models.IsDataShape(err) {
		t.Errorf("err = %v, want DATA_SHAPE", err)
	}
}

func TestScrapeJobSearch(t *testing.T) {
	f := &enginetest.Fetcher{Handler: func(req *engine.FetchRequest) (*engine.FetchResult, error) {
		if strings.HasPrefix(req.URL, jobSearchPage) {
			return &engine.FetchResult{Content: searchPage("1,000+"), Request: req}, nil
		}
		u, _ := url.Parse(req.URL)
		start := 0
		fmt.Sscan(u.Query().Get("start"), &start)
		return &engine.FetchResult{Content: jobCards(start, JobsPerPage), Request: req}, nil
	}}
	s := newScraper(f)

	res, err := s.ScrapeJobSearch(context.Background(), "Python Developer", "United States", 3)
	if err != nil {
		t.Fatalf("ScrapeJobSearch: %v", err)
	}

	want := []string{
		jobSearchAPI + "?keywords=Python+Developer&location=United+States&start=25",
		jobSearchAPI + "?keywords=Python+Developer&location=United+States&start=50",
		jobSearchPage + "?keywords=Python+Developer&location=United+States",
	}
	if diff := cmp.Diff(want, f.URLs()); diff != "" {
		t.Errorf("requested urls (-want +got):\n%s", diff)
	}
	if len(res.Records) != 75 || res.Total != 1000 {
		t.Errorf("records = %d total = %d", len(res.Records), res.Total)
	}

	first := res.Records[0]
	if first["url"] != "https://www.linkedin.com/jobs/view/python-developer-3700000000" ||
		first["companyUrl"] != "https://www.linkedin.com/company/acme" ||
		first["jobId"] != "3700000000" {
		t.Errorf("card = %v", first)
	}
}

func TestParseJobCards_Empty(t *testing.T) {
	_, err := parseJobCards(&engine.FetchResult{Content: "<html><body>Please sign in</body></html>"})
	if !models.IsDataShape(err) {
		t.Errorf("err = %v, want DATA_SHAPE", err)
	}
}

func TestParseCount(t *testing.T) {
	for in, want := range map[string]int{"1,000+": 1000, "2.345": 2345, "": 0, "87": 87} {
		if got := parseCount(in); got != want {
			t.Errorf("parseCount(%q) = %d, want %d", in, got, want)
		}
	}
}
