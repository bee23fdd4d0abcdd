package contracts

import "time"

// SettlementWeek is the fixed calendar window a scoring period is
// settled over
type SettlementWeek struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WeeklyPrice is a settlement-grade, split-adjusted open/close pair.
// One row per ticker per scoring week, upserted idempotently.
type WeeklyPrice struct {
	WeekID     string    `json:"week_id"`
	Ticker     string    `json:"ticker"`
	OpenPrice  float64   `json:"open_price"`
	ClosePrice float64   `json:"close_price"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ResolveResult is the outcome of resolving one settlement week
type ResolveResult struct {
	Prices  []WeeklyPrice `json:"prices"`
	Missing []string      `json:"missing"`
}
