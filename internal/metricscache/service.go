package metricscache

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/internal/provider"
	"github.com/wonny/stockleague/backend/internal/returns"
	"github.com/wonny/stockleague/backend/internal/splits"
	"github.com/wonny/stockleague/backend/pkg/logger"
)

// SchemaVersion invalidates every durable snapshot when the snapshot
// shape or the derivation math changes. Bump on incompatible changes.
const SchemaVersion = 3

// ErrSyncing is the per-ticker error string reported for uncached
// tickers on cache-only lookups; the entry arrives on a later request
// once the warm path has filled it.
const ErrSyncing = "syncing"

const benchmarkTTL = 6 * time.Hour

// WarmTrigger schedules a background warm pass. Trigger must never block.
type WarmTrigger interface {
	Trigger()
}

// LookupRequest is the inbound metrics-lookup contract
type LookupRequest struct {
	Tickers      []string `json:"tickers"`
	WantOverview bool     `json:"wantOverview"`
	WantDaily    bool     `json:"wantDaily"`
	CacheOnly    bool     `json:"cacheOnly"`
}

// LookupResponse maps tickers to snapshots, with per-ticker error
// strings for the ones that could not be served
type LookupResponse struct {
	Data   map[string]contracts.MetricsSnapshot `json:"data"`
	Errors map[string]string                    `json:"errors"`
}

// Service owns the MetricsSnapshot/CacheEntry lifecycle: created on
// first successful fetch, refreshed on staleness or version mismatch,
// never deleted.
// ⭐ SSOT: every snapshot read and write goes through this service.
type Service struct {
	memory     *MemoryCache
	store      contracts.SnapshotStore
	fetcher    contracts.SeriesFetcher
	warm       WarmTrigger // optional
	logger     *logger.Logger
	durableTTL time.Duration
	splitOpts  splits.Options
	benchmark  string

	// benchmark monthly returns, cached in-process
	benchState benchCache

	now func() time.Time
}

// NewService creates the metrics cache service. benchmark is the ticker
// beta/alpha are computed against.
func NewService(
	memory *MemoryCache,
	store contracts.SnapshotStore,
	fetcher contracts.SeriesFetcher,
	benchmark string,
	durableTTL time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		memory:     memory,
		store:      store,
		fetcher:    fetcher,
		logger:     log,
		durableTTL: durableTTL,
		splitOpts:  splits.DefaultOptions(),
		benchmark:  benchmark,
		now:        time.Now,
	}
}

// WithWarmTrigger attaches the background warm dispatcher
func (s *Service) WithWarmTrigger(w WarmTrigger) *Service {
	s.warm = w
	return s
}

// Lookup serves the inbound metrics interface. No single ticker's
// failure aborts the request; a stale cached value is always preferred
// over an error.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) *LookupResponse {
	resp := &LookupResponse{
		Data:   make(map[string]contracts.MetricsSnapshot),
		Errors: make(map[string]string),
	}

	level := contracts.LevelReturns
	if req.WantOverview {
		level = contracts.LevelFull
	}

	for _, ticker := range req.Tickers {
		entry, found := s.getCached(ctx, ticker)

		if found && s.IsFresh(entry, level) {
			resp.Data[ticker] = entry.Snapshot
			continue
		}

		if req.CacheOnly {
			// Never a synchronous provider call on this path
			if found {
				resp.Data[ticker] = entry.Snapshot
			} else {
				resp.Errors[ticker] = ErrSyncing
			}
			continue
		}

		refreshed, err := s.Refresh(ctx, ticker, level, req.WantDaily)
		if err != nil {
			if found {
				// Stale beats error
				resp.Data[ticker] = entry.Snapshot
			} else if provider.IsRateLimited(err) {
				resp.Errors[ticker] = ErrSyncing
			} else {
				resp.Errors[ticker] = err.Error()
			}
			continue
		}

		resp.Data[ticker] = refreshed.Snapshot
	}

	// Opportunistic warming rides on read traffic; the dispatcher
	// self-throttles and never blocks this request
	if s.warm != nil {
		s.warm.Trigger()
	}

	return resp
}

// IsFresh reports whether a cached entry can be served as-is for the
// requested level
func (s *Service) IsFresh(entry contracts.CacheEntry, level contracts.Level) bool {
	if s.now().Sub(entry.UpdatedAt) >= s.durableTTL {
		return false
	}
	if entry.Snapshot.SchemaVersion != SchemaVersion {
		return false
	}
	if level == contracts.LevelFull && !entry.HasOverview {
		return false
	}
	return true
}

// HasFresh reports whether ticker is served fresh at the returns level;
// the warm scheduler uses this for its skip-if-fresh check
func (s *Service) HasFresh(ctx context.Context, ticker string) bool {
	entry, found := s.getCached(ctx, ticker)
	return found && s.IsFresh(entry, contracts.LevelReturns)
}

// getCached consults the memory tier, then the durable tier, promoting
// durable hits into memory
func (s *Service) getCached(ctx context.Context, ticker string) (contracts.CacheEntry, bool) {
	if entry, ok := s.memory.Get(ticker); ok {
		return entry, true
	}

	found, err := s.store.GetMany(ctx, []string{ticker})
	if err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("Durable cache read failed")
		return contracts.CacheEntry{}, false
	}

	entry, ok := found[ticker]
	if ok {
		s.memory.Set(ticker, entry)
	}
	return entry, ok
}

// Refresh fetches, adjusts, derives and stores one ticker's snapshot.
// A cancelled fetch writes nothing; merge preserves previously
// populated fields the new refresh did not produce.
func (s *Service) Refresh(ctx context.Context, ticker string, level contracts.Level, wantDaily bool) (contracts.CacheEntry, error) {
	prev, hasPrev := s.getCached(ctx, ticker)

	monthlySeries, err := s.fetcher.Fetch(ctx, ticker, contracts.SeriesMonthlyAdjusted)
	if err != nil {
		return contracts.CacheEntry{}, err
	}
	adjustedMonthly := splits.Adjust(monthlySeries.Points, s.splitOpts)

	// Daily precision is best-effort: exhausting the budget here must
	// not discard the monthly result we already paid for
	adjustedDaily := adjustedMonthly
	if wantDaily {
		if dailySeries, dailyErr := s.fetcher.Fetch(ctx, ticker, contracts.SeriesDaily); dailyErr == nil {
			adjustedDaily = splits.Adjust(dailySeries.Points, s.splitOpts)
		} else {
			s.logger.WithError(dailyErr).WithField("ticker", ticker).Debug("Daily series unavailable, using monthly")
		}
	}

	metrics := returns.Compute(adjustedMonthly, adjustedDaily, s.benchmarkReturns(ctx))

	snapshot := contracts.MetricsSnapshot{
		SchemaVersion:    SchemaVersion,
		Ticker:           ticker,
		AnnualReturn:     metrics.AnnualReturn,
		OneYearReturn:    metrics.OneYearReturn,
		AnnualVolatility: metrics.AnnualVolatility,
		Beta:             metrics.Beta,
		Alpha:            metrics.Alpha,
		Sharpe:           metrics.Sharpe,
		YearlyReturns:    metrics.YearlyReturns,
		MonthlyReturns:   metrics.MonthlyReturns,
	}
	if n := len(adjustedMonthly); n > 0 {
		last := adjustedMonthly[n-1]
		lastPrice := last.AdjustedClose
		snapshot.LastPrice = &lastPrice
		snapshot.AsOf = last.Date
	}

	hasOverview := hasPrev && prev.HasOverview
	if level == contracts.LevelFull {
		if overview, ovErr := s.fetcher.FetchOverview(ctx, ticker); ovErr == nil {
			snapshot.Name = overview.Name
			snapshot.Description = overview.Description
			snapshot.Sector = overview.Sector
			snapshot.MarketCap = overview.MarketCap
			snapshot.PERatio = overview.PERatio
			snapshot.DividendYield = overview.DividendYield
			hasOverview = true
		} else {
			// Overview is best-effort; the returns-only snapshot still lands
			s.logger.WithError(ovErr).WithField("ticker", ticker).Debug("Overview unavailable")
		}
	}

	if hasPrev {
		snapshot = Merge(snapshot, prev.Snapshot)
	}

	// A cancelled refresh must not write a partial snapshot
	if err := ctx.Err(); err != nil {
		return contracts.CacheEntry{}, err
	}

	entry := contracts.CacheEntry{
		Snapshot:    snapshot,
		UpdatedAt:   s.now(),
		HasOverview: hasOverview,
	}

	s.memory.Set(ticker, entry)
	if err := s.store.Upsert(ctx, entry); err != nil {
		// The memory tier already serves this process; the durable write
		// is retried on the next natural refresh
		s.logger.WithError(err).WithField("ticker", ticker).Error("Durable cache write failed")
	}

	s.logger.WithFields(map[string]interface{}{
		"ticker":       ticker,
		"level":        string(level),
		"has_overview": hasOverview,
	}).Debug("Refreshed snapshot")

	return entry, nil
}

// benchCache holds the benchmark's monthly returns between refreshes
type benchCache struct {
	mu        sync.Mutex
	returns   []returns.MonthlyReturn
	fetchedAt time.Time
}

// benchmarkReturns returns the benchmark's monthly return series,
// refreshed at most every benchmarkTTL. Failures degrade beta/alpha to
// nil rather than failing the caller's refresh.
func (s *Service) benchmarkReturns(ctx context.Context) []returns.MonthlyReturn {
	if s.benchmark == "" {
		return nil
	}

	s.benchState.mu.Lock()
	defer s.benchState.mu.Unlock()

	if s.benchState.returns != nil && s.now().Sub(s.benchState.fetchedAt) < benchmarkTTL {
		return s.benchState.returns
	}

	series, err := s.fetcher.Fetch(ctx, s.benchmark, contracts.SeriesMonthlyAdjusted)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", s.benchmark).Debug("Benchmark series unavailable")
		return s.benchState.returns // possibly stale, still better than nothing
	}

	s.benchState.returns = returns.Monthly(splits.Adjust(series.Points, s.splitOpts))
	s.benchState.fetchedAt = s.now()
	return s.benchState.returns
}
