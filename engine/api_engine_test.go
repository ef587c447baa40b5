package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/harvest/models"
)

func envelope(content string, success bool, status int) []byte {
	var env struct {
		Result map[string]any `json:"result"`
	}
	env.Result = map[string]any{
		"content":     content,
		"status_code": status,
		"url":         "https://example.com/final",
		"success":     success,
	}
	b, _ := json.Marshal(env)
	return b
}

func newTestAPIEngine(srv *httptest.Server, retries int) *APIEngine {
	return NewAPIEngine(APIEngineConfig{
		BaseURL:    srv.URL + "/",
		Key:        "scp-test",
		Timeout:    5 * time.Second,
		Retries:    retries,
		RetryDelay: time.Millisecond,
	})
}

func TestAPIEngine_EncodesRequest(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write(envelope("<html></html>", true, 200))
	}))
	defer srv.Close()

	e := newTestAPIEngine(srv, 0)
	res, err := e.Fetch(context.Background(), &FetchRequest{
		URL:      "https://www.tiktok.com/api/search/general/full/?keyword=whales&offset=12",
		Headers:  map[string]string{"Content-Type": "application/json"},
		Session:  "tiktok-abc",
		ASP:      true,
		RenderJS: true,
		Country:  "US",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if got.URL.Path != "/scrape" {
		t.Errorf("path = %q, want /scrape", got.URL.Path)
	}
	q := got.URL.Query()
	checks := map[string]string{
		"key":                   "scp-test",
		"url":                   "https://www.tiktok.com/api/search/general/full/?keyword=whales&offset=12",
		"asp":                   "true",
		"render_js":             "true",
		"country":               "us",
		"session":               "tiktok-abc",
		"headers[content-type]": "application/json",
	}
	for k, want := range checks {
		if q.Get(k) != want {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), want)
		}
	}
	if q.Has("cache") {
		t.Error("cache should be omitted when false")
	}

	if res.Content != "<html></html>" || res.StatusCode != 200 {
		t.Errorf("result = %q/%d", res.Content, res.StatusCode)
	}
	if res.URL() != "https://example.com/final" {
		t.Errorf("URL() = %q", res.URL())
	}
	if res.EngineName != "api" {
		t.Errorf("EngineName = %q, want api", res.EngineName)
	}
}

func TestAPIEngine_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":"ERR::THROTTLE","message":"slow down","retryable":true}`))
			return
		}
		w.Write(envelope("ok", true, 200))
	}))
	defer srv.Close()

	res, err := newTestAPIEngine(srv, 3).Fetch(context.Background(), &FetchRequest{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Content != "ok" {
		t.Errorf("Content = %q", res.Content)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestAPIEngine_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"ERR::SCRAPE::BAD_PARAM","message":"bad url"}`))
	}))
	defer srv.Close()

	_, err := newTestAPIEngine(srv, 3).Fetch(context.Background(), &FetchRequest{URL: "https://example.com"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if code := models.CodeOf(err); code != models.ErrCodeTransport {
		t.Errorf("code = %s, want %s", code, models.ErrCodeTransport)
	}
}

func TestAPIEngine_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write(envelope("", false, 503))
	}))
	defer srv.Close()

	_, err := newTestAPIEngine(srv, 2).Fetch(context.Background(), &FetchRequest{URL: "https://example.com/x"})
	se := models.AsScrapeError(err)
	if se.Code != models.ErrCodeTransport {
		t.Errorf("code = %s", se.Code)
	}
	if se.URL != "https://example.com/x" {
		t.Errorf("URL = %q", se.URL)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}
