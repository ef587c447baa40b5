package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/use-agent/harvest/models"
)

func TestHTTPEngine_SessionCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/seed":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "42", Path: "/"})
			w.Write([]byte("<html>seed</html>"))
		case "/api":
			c, err := r.Cookie("sid")
			if err != nil {
				w.Write([]byte(`{"cookie":""}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"cookie":"` + c.Value + `"}`))
		}
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(HTTPEngineConfig{})
	if err != nil {
		t.Fatalf("NewHTTPEngine: %v", err)
	}
	ctx := context.Background()

	if _, err := e.Fetch(ctx, &FetchRequest{URL: srv.URL + "/seed", Session: "s1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := e.Fetch(ctx, &FetchRequest{URL: srv.URL + "/api", Session: "s1"})
	if err != nil {
		t.Fatalf("api: %v", err)
	}
	doc, err := res.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if got := doc.Get("cookie").Str(); got != "42" {
		t.Errorf("session cookie = %q, want 42", got)
	}

	// A stateless request must not see the session's cookies.
	res, err = e.Fetch(ctx, &FetchRequest{URL: srv.URL + "/api"})
	if err != nil {
		t.Fatalf("stateless: %v", err)
	}
	if res.Content != `{"cookie":""}` {
		t.Errorf("stateless content = %q", res.Content)
	}
}

func TestHTTPEngine_CustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Test")))
	}))
	defer srv.Close()

	e, _ := NewHTTPEngine(HTTPEngineConfig{})
	res, err := e.Fetch(context.Background(), &FetchRequest{
		URL:     srv.URL,
		Headers: map[string]string{"X-Test": "yes"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Content != "yes" {
		t.Errorf("header not forwarded, got %q", res.Content)
	}
}

func TestHTTPEngine_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	e, _ := NewHTTPEngine(HTTPEngineConfig{})
	_, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL})
	if models.CodeOf(err) != models.ErrCodeTransport {
		t.Errorf("code = %s, want %s", models.CodeOf(err), models.ErrCodeTransport)
	}
}
