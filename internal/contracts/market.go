package contracts

import "time"

// SeriesKind identifies a provider series shape
type SeriesKind string

const (
	// SeriesMonthlyAdjusted is the monthly adjusted series used for
	// returns and explicit split extraction
	SeriesMonthlyAdjusted SeriesKind = "monthly-adjusted"

	// SeriesDaily is the compact daily series used for trailing-return
	// precision and split inference
	SeriesDaily SeriesKind = "daily"
)

// PricePoint is one provider-reported trading bar. Immutable once fetched.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`

	// Open is zero when the provider did not report it
	Open float64 `json:"open,omitempty"`

	// SplitCoefficient is the provider-reported split coefficient for the
	// bar (1 when no split), only present on adjusted series
	SplitCoefficient float64 `json:"split_coefficient,omitempty"`
}

// RawSeries is a chronological (ascending) series of provider bars
type RawSeries struct {
	Ticker string       `json:"ticker"`
	Kind   SeriesKind   `json:"kind"`
	Points []PricePoint `json:"points"`
}

// SplitSource records where a split event came from
type SplitSource string

const (
	SplitExplicit SplitSource = "explicit"
	SplitInferred SplitSource = "inferred"
)

// SplitEvent is a corporate split. Factor > 1 means one pre-split share
// became Factor post-split shares. Explicit events win over inferred
// events on the same date.
type SplitEvent struct {
	Date   time.Time   `json:"date"`
	Factor float64     `json:"factor"`
	Source SplitSource `json:"source"`
}

// AdjustedPoint is a raw close rescaled into current share-count terms.
// Series of these are ordered ascending by date.
type AdjustedPoint struct {
	Date          time.Time `json:"date"`
	RawClose      float64   `json:"raw_close"`
	AdjustedClose float64   `json:"adjusted_close"`
}

// Overview holds company-level fields merged into a snapshot on a full
// refresh. All pointer fields; nil means unknown.
type Overview struct {
	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	Sector        string   `json:"sector,omitempty"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	PERatio       *float64 `json:"pe_ratio,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`
}

// Universe is the set of tickers currently eligible for tracking,
// identified by a stable snapshot id
type Universe struct {
	SnapshotID string   `json:"snapshot_id"`
	Tickers    []string `json:"tickers"`
}
