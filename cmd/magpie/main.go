// Magpie - Checkout fraud monitoring for retail counters.
// Copyright (c) 2025 OpenRetail
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

	"github.com/openretail/magpie/internal/api"
	"github.com/openretail/magpie/internal/bus"
	"github.com/openretail/magpie/internal/cache"
	"github.com/openretail/magpie/internal/checkout"
	"github.com/openretail/magpie/internal/domain"
	"github.com/openretail/magpie/internal/engine"
	"github.com/openretail/magpie/internal/repository"
	"github.com/openretail/magpie/internal/rules"
	"github.com/openretail/magpie/internal/worker"
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
	if os.Getenv("MAGPIE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting magpie",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg, err := domain.LoadConfig(os.Getenv("MAGPIE_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Check for distributed mode via environment
	if os.Getenv("MAGPIE_DISTRIBUTED") == "true" {
		cfg = domain.DistributedConfig()
		slog.Info("running in distributed mode")
	}

	slog.Info("configuration loaded",
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

	// Initialize fraud engine with configured thresholds
	fraudEngine := engine.New(cfg.Engine)
	slog.Info("fraud engine initialized",
		"bulk_item_count", cfg.Engine.BulkItemCount,
		"cash_ceiling", cfg.Engine.CashCeiling,
	)

	// Initialize custom rules engine
	rulesEngine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rules engine", "error", err)
		os.Exit(1)
	}
	defer rulesEngine.Close()

	// Load custom rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, rulesEngine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rules engine initialized", "rules_count", rulesEngine.RulesCount())

	// Initialize checkout processor
	processor := checkout.NewProcessor(repo, cacheImpl, busImpl, fraudEngine, rulesEngine)
	slog.Info("checkout processor initialized")

	// Initialize async Worker for distributed deployments
	var asyncWorker *worker.Worker
	if cfg.EventBus.Type == "nats" || os.Getenv("MAGPIE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, processor)

		// Get retailer IDs to process (from environment or default)
		retailerIDs := []string{}
		if envRetailers := os.Getenv("MAGPIE_RETAILERS"); envRetailers != "" {
			retailerIDs = strings.Split(envRetailers, ",")
		}

		workerCfg := worker.Config{
			RetailerIDs: retailerIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "retailer_count", len(retailerIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, processor, rulesEngine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("magpie is ready",
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

	slog.Info("magpie shutdown complete")
}

// loadRulesFromDatabase loads custom rules from the database into the engine.
// All rules must be configured via POST /rules API - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, rulesEngine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx, api.GlobalRetailerID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return rulesEngine.LoadRules(dbRules)
	}

	slog.Info("no custom rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                🐦 MAGPIE                  ║")
	fmt.Println("  ║      Checkout Fraud Monitoring            ║")
	fmt.Println("  ║       Every bill, double-checked.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /sales                     - Record a sale and analyze it")
	fmt.Println("    GET  /sales/{id}                - Get sale by ID")
	fmt.Println("    GET  /customers/{phone}/sales   - Customer purchase history")
	fmt.Println("    GET  /alerts                    - List open fraud alerts")
	fmt.Println("    POST /alerts/{id}/resolve       - Mark alert reviewed")
	fmt.Println("    DELETE /alerts/{id}             - Delete an alert")
	fmt.Println("    GET  /products                  - List catalog")
	fmt.Println("    POST /products                  - Create or update a product")
	fmt.Println("    GET  /rules                     - List custom rules")
	fmt.Println("    POST /rules                     - Create a custom rule")
	fmt.Println("    POST /rules/reload              - Hot-reload rules from database")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
