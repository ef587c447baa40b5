package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/use-agent/harvest/api"
	"github.com/use-agent/harvest/app"
	"github.com/use-agent/harvest/config"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	app.InitLogger(cfg.Log)
	slog.Info("harvest starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"browser", cfg.Browser.Enabled,
		"concurrency", cfg.Fetch.Concurrency,
	)

	// ── 3. Build engines, client and site registry ──────────────────
	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// ── 4. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Registry:   a.Registry,
		Config:     cfg,
		EngineName: a.Engine.Name(),
		Pool:       a.Pool,
		Cached:     a.Cache.Len,
		Started:    time.Now(),
	})

	// ── 5. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained")
	}
	slog.Info("harvest stopped")
}
