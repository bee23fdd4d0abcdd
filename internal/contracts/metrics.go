package contracts

import "time"

// Level is the population level of a snapshot refresh
type Level string

const (
	// LevelReturns refreshes return/risk fields only
	LevelReturns Level = "returns-only"

	// LevelFull additionally populates overview fields
	LevelFull Level = "full"
)

// YearlyReturn is one calendar year's compounded return
type YearlyReturn struct {
	Year   int     `json:"year"`
	Return float64 `json:"return"`
}

// MetricsSnapshot is the per-ticker computed result served to callers.
// Metric fields are pointers; nil means "unknown", never "zero".
type MetricsSnapshot struct {
	SchemaVersion int    `json:"schema_version"`
	Ticker        string `json:"ticker"`

	// Overview fields (populated on a full refresh only)
	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	Sector        string   `json:"sector,omitempty"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	PERatio       *float64 `json:"pe_ratio,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`

	// Price fields
	LastPrice *float64  `json:"last_price,omitempty"`
	AsOf      time.Time `json:"as_of"`

	// Return/risk fields
	AnnualReturn     *float64 `json:"annual_return,omitempty"`
	OneYearReturn    *float64 `json:"one_year_return,omitempty"`
	AnnualVolatility *float64 `json:"annual_volatility,omitempty"`
	Beta             *float64 `json:"beta,omitempty"`
	Alpha            *float64 `json:"alpha,omitempty"`
	Sharpe           *float64 `json:"sharpe,omitempty"`

	YearlyReturns []YearlyReturn `json:"yearly_returns,omitempty"`

	// MonthlyReturns is keyed by "YYYY-MM"
	MonthlyReturns map[string]float64 `json:"monthly_returns,omitempty"`
}

// CacheEntry is a durable snapshot row, mirrored in the memory tier
type CacheEntry struct {
	Snapshot    MetricsSnapshot `json:"snapshot"`
	UpdatedAt   time.Time       `json:"updated_at"`
	HasOverview bool            `json:"has_overview"`
}

// WarmState coordinates incremental background refresh across restarts
// and horizontally scaled instances. Durable singleton, owned by the
// warm scheduler.
type WarmState struct {
	Cursor             int       `json:"cursor"`
	UniverseSnapshotID string    `json:"universe_snapshot_id"`
	LastRunAt          time.Time `json:"last_run_at"`
}
