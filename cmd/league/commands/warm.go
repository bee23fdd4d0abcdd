package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/stockleague/backend/internal/metricscache"
	"github.com/wonny/stockleague/backend/internal/provider"
	"github.com/wonny/stockleague/backend/internal/universe"
	"github.com/wonny/stockleague/backend/internal/warm"
	"github.com/wonny/stockleague/backend/pkg/config"
	"github.com/wonny/stockleague/backend/pkg/database"
	"github.com/wonny/stockleague/backend/pkg/logger"
	"github.com/wonny/stockleague/backend/pkg/redis"
)

// warmCmd represents the warm command
var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Run one warm pass over the ticker universe",
	Long: `Run a single cache warm pass and exit.

This command:
- loads the current ticker universe
- refreshes the next batch of stale snapshots within budget
- persists the wrap-around cursor for the next pass

The pass shares its cursor with the API server's background warmer, so
running it alongside a live server is safe.

Example:
  go run ./cmd/league warm`,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)
}

func runWarm(cmd *cobra.Command, args []string) error {
	fmt.Println("=== StockLeague Cache Warm ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	sideCache := redis.NewCache(redisClient, "league")

	budget := provider.NewBudget(cfg.Provider.MinuteLimit, cfg.Provider.DayLimit, cfg.Provider.Cooldown)
	providerClient := provider.NewClient(cfg.Provider, log, budget).
		WithProfileCache(sideCache)

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

	universeRepo := universe.NewRepository(db.Pool)
	universeService := universe.NewService(universeRepo, sideCache, cfg.Warm.UniverseTTL, log)

	// Interval 0: a manual invocation always runs
	warmer := warm.New(cacheRepo, universeService, metricsService, 0, cfg.Warm.BatchSize, log)

	if err := warmer.Run(context.Background()); err != nil {
		return fmt.Errorf("warm pass: %w", err)
	}

	fmt.Println("✅ Warm pass completed")
	return nil
}
