package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/app"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/sites"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	app.InitLogger(cfg.Log)

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	s := newServer(a.Registry)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// newServer registers one tool per site operation.
func newServer(reg *sites.Registry) *server.MCPServer {
	s := server.NewMCPServer(
		"harvest",
		"0.1.0",
		server.WithToolCapabilities(false),
	)
	for _, op := range reg.All() {
		s.AddTool(toolFor(op), handleOperation(op))
	}
	return s
}

// toolName turns "redfin/for-sale" into "redfin_for_sale".
func toolName(op sites.Operation) string {
	return strings.NewReplacer("/", "_", "-", "_").Replace(op.Key())
}

var inputDescriptions = map[sites.Input]string{
	sites.InputURLs:     "Page URLs to scrape",
	sites.InputURL:      "Search page URL",
	sites.InputPostID:   "Id of the post whose comments are scraped",
	sites.InputKeyword:  "Search keyword",
	sites.InputLocation: "Search location",
	sites.InputPageSize: "Items per API page",
	sites.InputMaxItems: "Maximum number of items to collect (0: no cap)",
	sites.InputMaxPages: "Maximum number of pages to fetch (0: no cap)",
	sites.InputAllPages: "Follow pagination past the first page",
}

func toolFor(op sites.Operation) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(op.Description)}
	for i, in := range op.Inputs {
		props := []mcp.PropertyOption{mcp.Description(inputDescriptions[in])}
		if i == 0 {
			props = append(props, mcp.Required())
		}
		name := string(in)
		switch in {
		case sites.InputURLs:
			opts = append(opts, mcp.WithArray(name, append(props, mcp.WithStringItems())...))
		case sites.InputPageSize, sites.InputMaxItems, sites.InputMaxPages:
			opts = append(opts, mcp.WithNumber(name, append(props, mcp.Min(0))...))
		case sites.InputAllPages:
			opts = append(opts, mcp.WithBoolean(name, props...))
		default:
			opts = append(opts, mcp.WithString(name, props...))
		}
	}
	return mcp.NewTool(toolName(op), opts...)
}

// requestFor maps tool arguments onto a ScrapeRequest.
func requestFor(request mcp.CallToolRequest) *models.ScrapeRequest {
	req := &models.ScrapeRequest{
		URLs:     request.GetStringSlice(string(sites.InputURLs), nil),
		URL:      request.GetString(string(sites.InputURL), ""),
		PostID:   request.GetString(string(sites.InputPostID), ""),
		Keyword:  request.GetString(string(sites.InputKeyword), ""),
		Location: request.GetString(string(sites.InputLocation), ""),
		PageSize: request.GetInt(string(sites.InputPageSize), 0),
		MaxItems: request.GetInt(string(sites.InputMaxItems), 0),
		MaxPages: request.GetInt(string(sites.InputMaxPages), 0),
		AllPages: request.GetBool(string(sites.InputAllPages), false),
	}
	req.Defaults()
	return req
}

func handleOperation(op sites.Operation) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := requestFor(request)

		ctx, cancel := context.WithTimeout(ctx, req.Deadline())
		defer cancel()

		resp := handler.Run(ctx, op, req, time.Now())
		if !resp.Success {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)), nil
		}

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		header := fmt.Sprintf("%s: %d records (%d/%d pages fetched)\n\n",
			op.Key(), len(resp.Records), resp.Succeeded, resp.Requested)
		return mcp.NewToolResultText(header + string(out)), nil
	}
}
