package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockleague/backend/internal/api"
	"github.com/wonny/stockleague/backend/internal/api/handlers"
	"github.com/wonny/stockleague/backend/internal/metricscache"
	"github.com/wonny/stockleague/backend/internal/provider"
	"github.com/wonny/stockleague/backend/internal/scheduler"
	"github.com/wonny/stockleague/backend/internal/scheduler/jobs"
	"github.com/wonny/stockleague/backend/internal/settlement"
	"github.com/wonny/stockleague/backend/internal/universe"
	"github.com/wonny/stockleague/backend/internal/warm"
	"github.com/wonny/stockleague/backend/pkg/config"
	"github.com/wonny/stockleague/backend/pkg/database"
	"github.com/wonny/stockleague/backend/pkg/logger"
	"github.com/wonny/stockleague/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Start the REST API server.

This command:
- serves the metrics-lookup endpoint
- serves the weekly settlement trigger
- runs the background warm scheduler

Endpoints:
  GET  /health                  - Health check
  POST /api/metrics/lookup      - Metrics snapshots for a set of tickers
  POST /api/settlement/resolve  - Settle a scoring week (shared secret)

Example:
  go run ./cmd/league api
  go run ./cmd/league api --port 8090`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== StockLeague API Server ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info("Connected to database")

	// 4. Optional Redis side cache
	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	sideCache := redis.NewCache(redisClient, "league")

	// 5. Provider client with process-local budget
	budget := provider.NewBudget(cfg.Provider.MinuteLimit, cfg.Provider.DayLimit, cfg.Provider.Cooldown)
	providerClient := provider.NewClient(cfg.Provider, log, budget).
		WithProfileCache(sideCache)

	// 6. Metrics cache (memory tier + durable tier)
	memCache := metricscache.NewMemoryCache(cfg.Cache.MemoryTTL)
	cacheRepo := metricscache.NewRepository(db.Pool)
	metricsService := metricscache.NewService(
		memCache,
		cacheRepo,
		providerClient,
		cfg.Cache.Benchmark,
		cfg.Cache.DurableTTL,
		log,
	)

	// 7. Universe and warm scheduler
	universeRepo := universe.NewRepository(db.Pool)
	universeService := universe.NewService(universeRepo, sideCache, cfg.Warm.UniverseTTL, log)

	warmer := warm.New(cacheRepo, universeService, metricsService, cfg.Warm.Interval, cfg.Warm.BatchSize, log)
	metricsService.WithWarmTrigger(warmer)

	// 8. Weekly settlement
	settlementRepo := settlement.NewRepository(db.Pool)
	resolver := settlement.NewResolver(providerClient, settlementRepo, cfg.Settlement.CallDelay, log)

	// 9. Cron safety net for the warm pass
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewWarmJob(warmer, cfg.Warm.CronSpec)); err != nil {
		return fmt.Errorf("schedule warm job: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// 10. Handlers and router
	metricsHandler := handlers.NewMetricsHandler(metricsService, log)
	settlementHandler := handlers.NewSettlementHandler(resolver, cfg.Settlement.Secret, log)
	router := api.NewRouter(metricsHandler, settlementHandler, log)

	// 11. Server with graceful shutdown
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /api/metrics/lookup")
	fmt.Println("  POST /api/settlement/resolve")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
