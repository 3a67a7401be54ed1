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

	"github.com/lysyi3m/rss-stash/app/api"
	"github.com/lysyi3m/rss-stash/app/bridge"
	"github.com/lysyi3m/rss-stash/app/cfg"
	"github.com/lysyi3m/rss-stash/app/database"
	"github.com/lysyi3m/rss-stash/app/feed"
	"github.com/lysyi3m/rss-stash/app/network"
	"github.com/lysyi3m/rss-stash/app/notify"
	"github.com/lysyi3m/rss-stash/app/syncer"
	"github.com/lysyi3m/rss-stash/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting RSS Stash server", "version", appCfg.Version)

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Database ready", "path", appCfg.DBPath)

	store := database.NewStore(db)

	client, err := network.NewClient(network.Options{
		Timeout:       appCfg.FetchTimeout,
		UserAgent:     appCfg.UserAgent,
		MinTLSVersion: appCfg.MinTLSVersion,
		MaxBodyBytes:  appCfg.MaxBodyBytes,
	})
	if err != nil {
		slog.Error("Failed to create HTTP client", "error", err)
		os.Exit(1)
	}

	cacheBridge, err := bridge.New(database.NewResponseCacheRepository(db), client, bridge.Options{
		Origin:        appCfg.Origin,
		CacheName:     appCfg.CacheVersion,
		SnapshotCache: appCfg.SnapshotCache,
		FeedProxyPath: appCfg.FeedProxyPath,
	})
	if err != nil {
		slog.Error("Failed to create cache bridge", "error", err)
		os.Exit(1)
	}

	assets := appCfg.AppAssets
	if appCfg.SkipPrecache {
		slog.Info("Skipping app shell precache")
		assets = nil
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 2*time.Minute)
	if removed, err := cacheBridge.Upgrade(startupCtx, assets); err != nil {
		slog.Warn("Failed to activate cache generation", "cache", cacheBridge.CacheName(), "error", err)
	} else if len(removed) > 0 {
		slog.Info("Removed old caches", "caches", removed)
	}
	cancelStartup()

	subscriptions, err := feed.LoadSubscriptions(appCfg.FeedsDir)
	if err != nil {
		slog.Error("Failed to load subscriptions", "dir", appCfg.FeedsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Subscriptions loaded", "dir", appCfg.FeedsDir, "count", len(subscriptions))

	hub := notify.NewHub(16)
	parser := feed.NewParser(feed.NewSummarizer(0))
	coordinator := syncer.NewCoordinator(store, client, parser, hub, cacheBridge, syncer.Options{
		Window:      appCfg.StalenessWindow,
		Concurrency: appCfg.SyncConcurrency,
	})

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(coordinator, cacheBridge, store, subscriptions, tasks.Options{
		Interval:    appCfg.SchedulerInterval,
		WorkerCount: appCfg.WorkerCount,
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, coordinator, cacheBridge, scheduler, hub, appCfg.StalenessWindow, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	// No write timeout: /api/events holds its response open
	httpServer := &http.Server{
		Addr:              ":" + appCfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	httpServer.RegisterOnShutdown(hub.Close)

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "origin", appCfg.Origin)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	slog.Info("RSS Stash server shutdown complete")
}
