package main

import (
	"os"

	"github.com/wonny/stockleague/backend/cmd/league/commands"
)

// main is the entry point for the StockLeague CLI
// ⭐ Unified CLI entry point: go run ./cmd/league [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
