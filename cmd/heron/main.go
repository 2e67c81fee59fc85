// Heron - Account cost and behavioural fit engine.
// Copyright (c) 2026 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/heron/internal/api"
	"github.com/opensource-finance/heron/internal/assess"
	"github.com/opensource-finance/heron/internal/bus"
	"github.com/opensource-finance/heron/internal/cache"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/portfolio"
	"github.com/opensource-finance/heron/internal/repository"
	"github.com/opensource-finance/heron/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("HERON_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting heron",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HERON_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Registry and load config documents from database
	registry := assess.NewRegistry()
	if err := loadConfigFromDatabase(ctx, repo, registry); err != nil {
		slog.Error("failed to load configuration documents", "error", err)
		os.Exit(1)
	}
	schedules, accounts, profiles := registry.Counts()
	slog.Info("registry initialized",
		"schedules", schedules,
		"accounts", accounts,
		"kpi_profiles", profiles,
	)

	// Initialize assessment processor and portfolio runner
	processor := assess.NewProcessor(registry)
	runner := portfolio.NewRunner(processor, 10)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("HERON_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, processor)

		// Get tenant IDs to process (from environment or default)
		var tenantIDs []string
		if envTenants := os.Getenv("HERON_TENANTS"); envTenants != "" {
			for _, id := range strings.Split(envTenants, ",") {
				if id = strings.TrimSpace(id); id != "" {
					tenantIDs = append(tenantIDs, id)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, processor, runner, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("heron is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("heron shutdown complete")
}

// GlobalTenantID is used for configuration shared by all tenants.
const GlobalTenantID = "*"

// loadConfigFromDatabase loads fee schedules, account products and KPI
// profiles into the registry. All documents are configured via the API - no
// hardcoded defaults.
func loadConfigFromDatabase(ctx context.Context, repo domain.Repository, registry *assess.Registry) error {
	schedules, err := repo.ListFeeSchedules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list fee schedules from database", "error", err)
	} else if len(schedules) > 0 {
		if err := registry.ReloadSchedules(schedules); err != nil {
			return fmt.Errorf("load fee schedules: %w", err)
		}
	} else {
		slog.Info("no fee schedules in database - configure via POST /schedules API")
	}

	accounts, err := repo.ListAccountConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list account configs from database", "error", err)
	} else if len(accounts) > 0 {
		if err := registry.ReloadAccounts(accounts); err != nil {
			return fmt.Errorf("load account configs: %w", err)
		}
	} else {
		slog.Info("no account configs in database - configure via POST /accounts API")
	}

	profiles, err := repo.ListKPIProfiles(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list kpi profiles from database", "error", err)
	} else if len(profiles) > 0 {
		if err := registry.ReloadProfiles(profiles); err != nil {
			return fmt.Errorf("load kpi profiles: %w", err)
		}
	} else {
		slog.Info("no kpi profiles in database - configure via POST /kpi-profiles API")
	}

	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 HERON                    ║")
	fmt.Println("  ║    Account Cost & Fit Intelligence        ║")
	fmt.Println("  ║     The right account, every time.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assess                      - Assess a customer against an account")
	fmt.Println("    GET  /assessments/{id}            - Get assessment by ID")
	fmt.Println("    POST /customers                   - Ingest a customer with history")
	fmt.Println("    GET  /customers/{id}/assessments  - Assessment history")
	fmt.Println("    GET  /customers/{id}/features     - Behavioural feature snapshot")
	fmt.Println("    POST /portfolio/run               - Batch-assess the whole book")
	fmt.Println("    GET  /schedules                   - List fee schedules")
	fmt.Println("    POST /schedules                   - Create a fee schedule")
	fmt.Println("    POST /schedules/reload            - Hot-reload schedules from database")
	fmt.Println("    GET  /accounts                    - List account products")
	fmt.Println("    POST /accounts                    - Create an account product")
	fmt.Println("    POST /kpi-profiles                - Create a KPI profile")
	fmt.Println("    POST /kpi-profiles/reload         - Hot-reload KPI profiles")
	fmt.Println("    GET  /health                      - Health check")
	fmt.Println()
}
