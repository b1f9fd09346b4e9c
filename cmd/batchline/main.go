package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/batchline/batchline/internal/batch"
	"github.com/batchline/batchline/internal/config"
	"github.com/batchline/batchline/internal/manager"
	"github.com/batchline/batchline/internal/platform/sqlite"
	"github.com/batchline/batchline/internal/repository/result"
	"github.com/batchline/batchline/internal/server"
)

func main() {
	cfg := config.Load()

	// Root context: cancelled on SIGINT/SIGTERM so running jobs unwind
	// cooperatively during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Terminal results are archived to sqlite so they survive restarts even
	// though running jobs do not. Results older than the retention window are
	// dropped on startup.
	store := result.NewSQLiteStore(db.DB)
	if n, err := store.Purge(rootCtx, cfg.ResultTTL); err != nil {
		slog.Error("failed to purge expired results", "error", err)
	} else if n > 0 {
		slog.Info("purged expired results", "count", n)
	}

	// Processor registry
	registry := manager.NewRegistry()
	defaultCfg := batch.DefaultConfig()
	defaultCfg.BatchSize = cfg.BatchSize
	defaultCfg.MaxConcurrentBatches = cfg.Workers
	if err := registry.Register("default", defaultCfg); err != nil {
		slog.Error("failed to register default processor", "error", err)
		os.Exit(1)
	}
	retryCfg := defaultCfg
	retryCfg.RetryFailed = true
	if err := registry.Register("default-retry", retryCfg); err != nil {
		slog.Error("failed to register retry processor", "error", err)
		os.Exit(1)
	}

	mgr := manager.New(rootCtx, registry, store)

	// Item handlers available to API submissions.
	handlers := map[string]server.ItemHandler{
		"urlcheck": urlCheck(&http.Client{Timeout: 10 * time.Second}),
	}

	// HTTP server — rootCtx is used as BaseContext so every request context
	// inherits from it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Port, mgr, handlers)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	<-done

	// Cancel root context first so running jobs begin winding down, then wait
	// for them to drain and store their terminal results.
	rootCancel()
	mgr.Close()

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}

// urlCheck returns an item handler that GETs the item as a URL and fails on
// transport errors and non-2xx statuses.
func urlCheck(client *http.Client) server.ItemHandler {
	return func(ctx context.Context, item string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, item, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		res, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", item, err)
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode < 200 || res.StatusCode > 299 {
			return fmt.Errorf("%s returned HTTP %d", item, res.StatusCode)
		}
		return nil
	}
}
