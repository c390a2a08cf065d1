package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cagrikaymak/marketsync/internal/backfill"
	"github.com/cagrikaymak/marketsync/internal/config"
	"github.com/cagrikaymak/marketsync/internal/execution"
	"github.com/cagrikaymak/marketsync/internal/failure"
	"github.com/cagrikaymak/marketsync/internal/freshness"
	"github.com/cagrikaymak/marketsync/internal/platform/sqlite"
	"github.com/cagrikaymak/marketsync/internal/provider"
	"github.com/cagrikaymak/marketsync/internal/provider/marketfeed"
	"github.com/cagrikaymak/marketsync/internal/quality"
	"github.com/cagrikaymak/marketsync/internal/registry"
	anomalyrepo "github.com/cagrikaymak/marketsync/internal/repository/anomaly"
	candlerepo "github.com/cagrikaymak/marketsync/internal/repository/candle"
	executionrepo "github.com/cagrikaymak/marketsync/internal/repository/execution"
	failurerepo "github.com/cagrikaymak/marketsync/internal/repository/failure"
	freshnessrepo "github.com/cagrikaymak/marketsync/internal/repository/freshness"
	symbolrepo "github.com/cagrikaymak/marketsync/internal/repository/symbol"
	"github.com/cagrikaymak/marketsync/internal/scheduler"
	"github.com/cagrikaymak/marketsync/internal/server"
)

func main() {
	cfg := config.Load()

	// Root context: cancelled on SIGINT/SIGTERM so in-flight backfill units
	// stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Repositories
	candleRepo := candlerepo.NewRepository(db.DB)
	executionRepo := executionrepo.NewRepository(db.DB)
	freshnessRepo := freshnessrepo.NewRepository(db.DB)
	anomalyRepo := anomalyrepo.NewRepository(db.DB)
	failureRepo := failurerepo.NewRepository(db.DB)
	symbolRepo := symbolrepo.NewRepository(db.DB)

	// Seed the symbol registry on first start.
	if cfg.SeedSymbols != "" {
		seed, err := registry.ParseSeed(cfg.SeedSymbols)
		if err != nil {
			slog.Error("invalid SEED_SYMBOLS", "error", err)
			os.Exit(1)
		}
		if err := symbolRepo.SeedIfEmpty(rootCtx, seed); err != nil {
			slog.Error("failed to seed symbols", "error", err)
			os.Exit(1)
		}
	}

	// Provider client: one shared rate limiter and retry policy for all units.
	feed := marketfeed.New(
		marketfeed.WithEndpoint(cfg.ProviderEndpoint),
		marketfeed.WithAPIKey(cfg.ProviderAPIKey),
	)
	retry := provider.DefaultRetryPolicy()
	retry.MaxAttempts = uint64(cfg.RetryMaxAttempts)
	client := provider.NewClient(feed, provider.NewLimiter(cfg.MaxRequestRate), retry)

	// Services
	freshCache := freshness.NewCache(freshnessRepo)
	failureTracker := failure.NewTracker(failureRepo, int64(cfg.AlertThreshold))
	qualityEngine := quality.NewEngine(candleRepo, anomalyRepo, quality.DefaultThresholds())
	tracker := execution.NewTracker(executionRepo, freshCache, failureTracker)

	orchestrator := backfill.New(rootCtx, symbolRepo, client, candleRepo,
		qualityEngine, freshCache, failureTracker, tracker, backfill.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			Stagger:       cfg.Stagger,
			GroupPause:    cfg.GroupPause,
			Lookback:      cfg.Lookback,
		})

	// Recurring trigger
	sched := scheduler.New(orchestrator,
		scheduler.WithDailyAt(cfg.DailyAt),
		scheduler.WithInterval(cfg.Interval),
	)
	if err := sched.Start(); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// HTTP server — rootCtx is used as BaseContext so every request context
	// inherits from it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Port, server.Deps{
		Orchestrator: orchestrator,
		Tracker:      tracker,
		Quality:      qualityEngine,
		Freshness:    freshCache,
		Client:       client,
	})

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

	// Stop admitting new work first, then cancel the root context so in-flight
	// units wind down.
	sched.Stop()
	orchestrator.Stop()
	rootCancel()

	// Drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
