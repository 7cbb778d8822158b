package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lysyi3m/feed-digest/app/api"
	"github.com/lysyi3m/feed-digest/app/cfg"
	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/lysyi3m/feed-digest/app/render"
	"github.com/lysyi3m/feed-digest/app/tasks"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was shown
		return
	}

	setupLogger(c.Debug)

	catalog, err := loadCatalog(c)
	if err != nil {
		slog.Error("Failed to load feed configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Feed configuration loaded",
		"categories", len(catalog.Categories),
		"sources", len(catalog.Sources()))

	sortPolicy, err := tasks.ParseSortPolicy(c.SortPolicy)
	if err != nil {
		slog.Error("Invalid sort policy", "error", err)
		os.Exit(1)
	}

	fetcher := feed.NewFetcher(&http.Client{}, feed.NewParser(), c.UserAgent, c.Timeout)
	normalizer := feed.NewNormalizer(feed.DateFallback(c.DateFallback), c.RecentWindow)
	scheduler := tasks.NewScheduler(fetcher, normalizer, tasks.Options{
		Concurrency: c.Concurrency,
		WaveDelay:   c.WaveDelay,
		SortPolicy:  sortPolicy,
	})

	page, err := render.NewHTML(c.TemplatePath)
	if err != nil {
		slog.Error("Failed to load template", "error", err)
		os.Exit(1)
	}
	digest := render.NewRSS("Feed Digest", c.BaseUrl, strings.TrimSuffix(c.BaseUrl, "/")+"/feed.xml", c.Version)

	info := map[string]any{
		"title":      "Feed Digest",
		"Version":    c.Version,
		"Categories": len(catalog.Categories),
		"Sources":    len(catalog.Sources()),
	}

	if c.Serve {
		serve(c, api.NewHandler(scheduler, catalog, page, digest, info))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := scheduler.Run(ctx, catalog)
	for _, failure := range result.Errors {
		slog.Warn("Source failed", "url", failure.Source.URL, "category", failure.Source.Category, "error", failure.Cause)
	}

	var renderer render.Renderer = page
	if c.Format == "rss" {
		renderer = digest
	}

	out, err := renderer.Run(render.NewPayload(result, info))
	if err != nil {
		slog.Error("Failed to render digest", "error", err)
		os.Exit(1)
	}

	if err := writeOutput(c.Output, out); err != nil {
		slog.Error("Failed to write digest", "error", err)
		os.Exit(1)
	}

	slog.Info("Digest written",
		"output", c.Output,
		"items", result.ItemCount(),
		"errors", len(result.Errors),
		"duration", result.FinishedAt.Sub(result.StartedAt))
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadCatalog prefers the feeds file and falls back to the inline document.
func loadCatalog(c *cfg.Cfg) (*feed.Catalog, error) {
	if c.FeedsFile != "" {
		return feed.LoadSources(c.FeedsFile)
	}
	if c.FeedsJSON != "" {
		return feed.ParseSources([]byte(c.FeedsJSON))
	}
	return nil, &feed.ConfigError{Err: errors.New("no feed configuration: set --feeds-file or FEEDS")}
}

func writeOutput(path, content string) error {
	if path == "-" {
		_, err := fmt.Fprint(os.Stdout, content)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func serve(c *cfg.Cfg, handler *api.Handler) {
	refresher, err := api.NewRefresher(handler, time.Duration(c.SchedulerInterval)*time.Second)
	if err != nil {
		slog.Error("Failed to create refresher", "error", err)
		os.Exit(1)
	}
	refresher.Start()
	defer refresher.Stop()

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      api.NewServer(handler, c.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", c.Port, "interval", c.SchedulerInterval)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}
