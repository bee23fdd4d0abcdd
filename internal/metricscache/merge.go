package metricscache

import "github.com/wonny/stockleague/backend/internal/contracts"

// Merge overlays a fresh snapshot on a previous one. Every field on the
// fresh snapshot wins unless it is nil/absent, in which case the
// previous value is retained. This lets a cheap returns-only refresh
// coexist with a previously fetched overview without data loss.
func Merge(fresh, previous contracts.MetricsSnapshot) contracts.MetricsSnapshot {
	out := fresh

	// Overview fields
	if out.Name == "" {
		out.Name = previous.Name
	}
	if out.Description == "" {
		out.Description = previous.Description
	}
	if out.Sector == "" {
		out.Sector = previous.Sector
	}
	if out.MarketCap == nil {
		out.MarketCap = previous.MarketCap
	}
	if out.PERatio == nil {
		out.PERatio = previous.PERatio
	}
	if out.DividendYield == nil {
		out.DividendYield = previous.DividendYield
	}

	// Price fields
	if out.LastPrice == nil {
		out.LastPrice = previous.LastPrice
	}
	if out.AsOf.IsZero() {
		out.AsOf = previous.AsOf
	}

	// Return/risk fields
	if out.AnnualReturn == nil {
		out.AnnualReturn = previous.AnnualReturn
	}
	if out.OneYearReturn == nil {
		out.OneYearReturn = previous.OneYearReturn
	}
	if out.AnnualVolatility == nil {
		out.AnnualVolatility = previous.AnnualVolatility
	}
	if out.Beta == nil {
		out.Beta = previous.Beta
	}
	if out.Alpha == nil {
		out.Alpha = previous.Alpha
	}
	if out.Sharpe == nil {
		out.Sharpe = previous.Sharpe
	}
	if len(out.YearlyReturns) == 0 {
		out.YearlyReturns = previous.YearlyReturns
	}
	if len(out.MonthlyReturns) == 0 {
		out.MonthlyReturns = previous.MonthlyReturns
	}

	return out
}
