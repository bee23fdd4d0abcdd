package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/internal/provider"
	"github.com/wonny/stockleague/backend/internal/settlement"
	"github.com/wonny/stockleague/backend/pkg/config"
	"github.com/wonny/stockleague/backend/pkg/database"
	"github.com/wonny/stockleague/backend/pkg/logger"
)

// settleWeekCmd represents the settle-week command
var settleWeekCmd = &cobra.Command{
	Use:   "settle-week",
	Short: "Resolve settlement prices for one scoring week",
	Long: `Resolve split-adjusted open/close prices for a scoring week.

For each ticker a compact daily series is fetched, splits are inferred
within the window, and the week's open/close are upserted. Provider
calls are paced with a fixed delay, so large lineups take a while.

Example:
  go run ./cmd/league settle-week --week-id 2026-W10 \
    --start 2026-03-02 --end 2026-03-06 \
    --tickers AAPL,MSFT,NVDA,SPY`,
	RunE: runSettleWeek,
}

var (
	settleWeekID  string
	settleStart   string
	settleEnd     string
	settleTickers string
)

func init() {
	rootCmd.AddCommand(settleWeekCmd)

	// Flags
	settleWeekCmd.Flags().StringVar(&settleWeekID, "week-id", "", "scoring week identifier (required)")
	settleWeekCmd.Flags().StringVar(&settleStart, "start", "", "week start date, YYYY-MM-DD (required)")
	settleWeekCmd.Flags().StringVar(&settleEnd, "end", "", "week end date, YYYY-MM-DD (required)")
	settleWeekCmd.Flags().StringVar(&settleTickers, "tickers", "", "comma-separated tickers (required)")
	settleWeekCmd.MarkFlagRequired("week-id")
	settleWeekCmd.MarkFlagRequired("start")
	settleWeekCmd.MarkFlagRequired("end")
	settleWeekCmd.MarkFlagRequired("tickers")
}

func runSettleWeek(cmd *cobra.Command, args []string) error {
	fmt.Println("=== StockLeague Weekly Settlement ===")

	start, err := time.Parse("2006-01-02", settleStart)
	if err != nil {
		return fmt.Errorf("parse --start: %w", err)
	}
	end, err := time.Parse("2006-01-02", settleEnd)
	if err != nil {
		return fmt.Errorf("parse --end: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("--end must not precede --start")
	}

	tickers := make([]string, 0)
	for _, t := range strings.Split(settleTickers, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, strings.ToUpper(t))
		}
	}
	if len(tickers) == 0 {
		return fmt.Errorf("--tickers is empty")
	}

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

	budget := provider.NewBudget(cfg.Provider.MinuteLimit, cfg.Provider.DayLimit, cfg.Provider.Cooldown)
	providerClient := provider.NewClient(cfg.Provider, log, budget)

	settlementRepo := settlement.NewRepository(db.Pool)
	resolver := settlement.NewResolver(providerClient, settlementRepo, cfg.Settlement.CallDelay, log)

	week := contracts.SettlementWeek{ID: settleWeekID, Start: start, End: end}

	fmt.Printf("Resolving %d tickers for %s (%s → %s)...\n", len(tickers), week.ID, settleStart, settleEnd)

	result, err := resolver.ResolveWeek(context.Background(), week, tickers)
	if err != nil {
		return fmt.Errorf("resolve week: %w", err)
	}

	fmt.Printf("\n✅ Resolved %d tickers\n", len(result.Prices))
	for _, p := range result.Prices {
		fmt.Printf("   %-6s open %.2f  close %.2f\n", p.Ticker, p.OpenPrice, p.ClosePrice)
	}
	if len(result.Missing) > 0 {
		fmt.Printf("⚠️  Missing: %s\n", strings.Join(result.Missing, ", "))
	}

	return nil
}
