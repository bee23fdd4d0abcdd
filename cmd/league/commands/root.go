package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "league",
	Short: "StockLeague - market metrics backend",
	Long: `StockLeague Unified CLI

Rate-budgeted market data ingestion, split-adjusted return metrics,
two-tier caching and weekly settlement for fantasy stock leagues.

Usage:
  go run ./cmd/league [command]

Examples:
  go run ./cmd/league api
  go run ./cmd/league warm
  go run ./cmd/league settle-week --week-id 2026-W10 --start 2026-03-02 --end 2026-03-06 --tickers AAPL,MSFT
  go run ./cmd/league test-db
  go run ./cmd/league test-logger`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
