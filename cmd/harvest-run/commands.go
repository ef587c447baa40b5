package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/app"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/sites"
)

var outDir string

// newRootCmd builds a "<site> <operation>" command tree over reg. With a
// nil registry the stack is assembled from the environment on first run.
func newRootCmd(reg *sites.Registry) *cobra.Command {
	root := &cobra.Command{
		Use:   "harvest-run",
		Short: "harvest-run runs one site operation and writes its records as JSON.",
	}
	root.PersistentFlags().StringVar(&outDir, "out", "results", "Directory the result file is written to.")

	// The tree needs operation metadata before any engine exists.
	meta := reg
	if meta == nil {
		meta = sites.NewRegistry(nil)
	}

	for _, site := range meta.Sites() {
		siteCmd := &cobra.Command{Use: site, Short: "Operations on " + site}
		for _, op := range meta.All() {
			if op.Site == site {
				siteCmd.AddCommand(operationCmd(reg, op))
			}
		}
		root.AddCommand(siteCmd)
	}
	return root
}

func operationCmd(reg *sites.Registry, op sites.Operation) *cobra.Command {
	req := &models.ScrapeRequest{}
	cmd := &cobra.Command{
		Use:   op.Name,
		Short: op.Description,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				req.URLs = append(req.URLs, args...)
			}
			req.Defaults()

			if reg == nil {
				cfg := config.Load()
				app.InitLogger(cfg.Log)
				a, err := app.New(cfg)
				if err != nil {
					return err
				}
				defer a.Close()
				reg = a.Registry
			}
			run, _ := reg.Lookup(op.Site, op.Name)
			return runOperation(cmd.Context(), run, req)
		},
	}

	flags := cmd.Flags()
	for _, in := range op.Inputs {
		switch in {
		case sites.InputURLs:
			flags.StringSliceVar(&req.URLs, "urls", nil, "Page URLs to scrape; also accepted as arguments.")
		case sites.InputURL:
			flags.StringVar(&req.URL, "url", "", "Search page URL.")
		case sites.InputPostID:
			flags.StringVar(&req.PostID, "post-id", "", "Id of the post whose comments are scraped.")
		case sites.InputKeyword:
			flags.StringVar(&req.Keyword, "keyword", "", "Search keyword.")
		case sites.InputLocation:
			flags.StringVar(&req.Location, "location", "", "Search location.")
		case sites.InputPageSize:
			flags.IntVar(&req.PageSize, "page-size", 0, "Items per API page.")
		case sites.InputMaxItems:
			flags.IntVar(&req.MaxItems, "max-items", 0, "Maximum items to collect, 0 for no cap.")
		case sites.InputMaxPages:
			flags.IntVar(&req.MaxPages, "max-pages", 0, "Maximum pages to fetch, 0 for no cap.")
		case sites.InputAllPages:
			flags.BoolVar(&req.AllPages, "all-pages", false, "Follow pagination past the first page.")
		}
	}
	flags.IntVar(&req.Timeout, "timeout", 0, "Operation timeout in seconds.")
	return cmd
}

func runOperation(ctx context.Context, op sites.Operation, req *models.ScrapeRequest) error {
	ctx, cancel := context.WithTimeout(ctx, req.Deadline())
	defer cancel()

	start := time.Now()
	slog.Info("running", "operation", op.Key())
	resp := handler.Run(ctx, op, req, start)
	if !resp.Success {
		return fmt.Errorf("%s: [%s] %s", op.Key(), resp.Error.Code, resp.Error.Message)
	}

	path, err := writeResult(op, resp)
	if err != nil {
		return err
	}
	slog.Info("saved",
		"operation", op.Key(),
		"records", len(resp.Records),
		"requested", resp.Requested,
		"succeeded", resp.Succeeded,
		"path", path,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// writeResult stores the records as indented JSON in <out>/<site>_<operation>.json.
func writeResult(op sites.Operation, resp *models.ScrapeResponse) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	name := op.Site + "_" + strings.ReplaceAll(op.Name, "-", "_") + ".json"
	path := filepath.Join(outDir, name)

	data, err := json.MarshalIndent(resp.Records, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}

// ExecuteContext runs the command tree against the environment's stack.
func ExecuteContext(ctx context.Context) {
	if err := newRootCmd(nil).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
