package contracts

import "context"

// SeriesFetcher is the rate-limited provider boundary
type SeriesFetcher interface {
	// Fetch returns a chronological raw series for the ticker.
	// Returns provider.ErrRateLimited when the local budget refuses the
	// call or the provider signalled a limit.
	Fetch(ctx context.Context, ticker string, kind SeriesKind) (*RawSeries, error)

	// FetchOverview returns best-effort company-level fields
	FetchOverview(ctx context.Context, ticker string) (*Overview, error)
}

// SnapshotStore is the durable tier of the metrics cache
type SnapshotStore interface {
	Upsert(ctx context.Context, entry CacheEntry) error
	GetMany(ctx context.Context, tickers []string) (map[string]CacheEntry, error)
}

// StateStore persists singleton application state (WarmState)
type StateStore interface {
	// GetSingleton unmarshals the payload for key into dest; found is
	// false when no row exists
	GetSingleton(ctx context.Context, key string, dest interface{}) (bool, error)
	UpsertSingleton(ctx context.Context, key string, payload interface{}) error
}

// WeeklyPriceStore persists settlement prices
type WeeklyPriceStore interface {
	UpsertWeeklyPrice(ctx context.Context, price WeeklyPrice) error
}

// UniverseLoader loads the investable ticker universe
type UniverseLoader interface {
	Load(ctx context.Context) (*Universe, error)
}
