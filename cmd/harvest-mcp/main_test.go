package main

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/engine/enginetest"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/sites"
)

const personPage = `<html><head><script type="application/ld+json">
{"@type":"Person","name":"Ada Lovelace"}</script></head></html>`

func testRegistry() *sites.Registry {
	f := &enginetest.Fetcher{Handler: enginetest.Pages(map[string]string{
		"https://www.linkedin.com/in/ada": personPage,
	})}
	return sites.NewRegistry(scraper.New(engine.NewClient(f), scraper.Options{}))
}

func call(args map[string]any) mcp.CallToolRequest {
	var r mcp.CallToolRequest
	r.Params.Arguments = args
	return r
}

func TestNewServer_OneToolPerOperation(t *testing.T) {
	reg := testRegistry()
	s := newServer(reg)
	tools := s.ListTools()
	if len(tools) != len(reg.All()) {
		t.Fatalf("tools = %d, want %d", len(tools), len(reg.All()))
	}
	for _, name := range []string{"tiktok_posts", "redfin_for_sale", "linkedin_job_search", "immoscout_search"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing tool %s", name)
		}
	}
}

func TestToolFor_FirstInputRequired(t *testing.T) {
	op, _ := testRegistry().Lookup("tiktok", "comments")
	tool := toolFor(op)
	if diff := cmp.Diff([]string{"post_id"}, tool.InputSchema.Required); diff != "" {
		t.Errorf("required (-want +got):\n%s", diff)
	}
	for _, in := range op.Inputs {
		if _, ok := tool.InputSchema.Properties[string(in)]; !ok {
			t.Errorf("missing property %s", in)
		}
	}
}

func TestRequestFor(t *testing.T) {
	req := requestFor(call(map[string]any{
		"keyword":   "whale song",
		"max_items": float64(60),
		"all_pages": true,
		"urls":      []any{"https://a", "https://b"},
	}))
	if req.Keyword != "whale song" || req.MaxItems != 60 || !req.AllPages {
		t.Errorf("request = %+v", req)
	}
	if diff := cmp.Diff([]string{"https://a", "https://b"}, req.URLs); diff != "" {
		t.Errorf("urls (-want +got):\n%s", diff)
	}
	if req.Timeout != 300 {
		t.Errorf("timeout = %d, want default", req.Timeout)
	}
}

func TestHandleOperation(t *testing.T) {
	reg := testRegistry()
	op, _ := reg.Lookup("linkedin", "profiles")

	res, err := handleOperation(op)(context.Background(), call(map[string]any{
		"urls": []any{"https://www.linkedin.com/in/ada"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	text := res.Content[0].(mcp.TextContent).Text
	if !strings.Contains(text, "Ada Lovelace") || !strings.HasPrefix(text, "linkedin/profiles: 1 records") {
		t.Errorf("text = %s", text)
	}

	res, _ = handleOperation(op)(context.Background(), call(map[string]any{}))
	if !res.IsError {
		t.Error("expected a tool error without urls")
	}
}
