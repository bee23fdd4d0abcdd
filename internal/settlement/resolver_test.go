package settlement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/pkg/logger"
)

type fakeFetcher struct {
	series map[string][]contracts.PricePoint
	errOn  map[string]error
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, ticker string, kind contracts.SeriesKind) (*contracts.RawSeries, error) {
	f.calls = append(f.calls, ticker)
	if err := f.errOn[ticker]; err != nil {
		return nil, err
	}
	return &contracts.RawSeries{Ticker: ticker, Kind: kind, Points: f.series[ticker]}, nil
}

func (f *fakeFetcher) FetchOverview(_ context.Context, _ string) (*contracts.Overview, error) {
	return nil, fmt.Errorf("not used")
}

type fakeStore struct {
	prices []contracts.WeeklyPrice
	err    error
}

func (s *fakeStore) UpsertWeeklyPrice(_ context.Context, price contracts.WeeklyPrice) error {
	if s.err != nil {
		return s.err
	}
	s.prices = append(s.prices, price)
	return nil
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

// Monday March 2 through Friday March 6, 2026
func testWeek() contracts.SettlementWeek {
	return contracts.SettlementWeek{ID: "2026-W10", Start: day(2), End: day(6)}
}

func bars(dates []int, opens, closes []float64) []contracts.PricePoint {
	out := make([]contracts.PricePoint, len(dates))
	for i, d := range dates {
		out[i] = contracts.PricePoint{Date: day(d), Open: opens[i], Close: closes[i]}
	}
	return out
}

func newTestResolver(f *fakeFetcher, s *fakeStore) *Resolver {
	return NewResolver(f, s, time.Nanosecond, logger.NewNop())
}

func TestResolveWeekPlainWeek(t *testing.T) {
	fetcher := &fakeFetcher{series: map[string][]contracts.PricePoint{
		"AAPL": bars(
			[]int{26, 27, 2, 3, 4, 5, 6, 9},
			[]float64{98, 99, 100, 101, 102, 103, 104, 105},
			[]float64{99, 100, 101, 102, 103, 104, 105, 106},
		),
	}}
	store := &fakeStore{}
	r := newTestResolver(fetcher, store)

	result, err := r.ResolveWeek(context.Background(), testWeek(), []string{"AAPL"})
	require.NoError(t, err)

	require.Len(t, result.Prices, 1)
	assert.Empty(t, result.Missing)

	p := result.Prices[0]
	assert.Equal(t, "2026-W10", p.WeekID)
	assert.Equal(t, "AAPL", p.Ticker)
	// Monday's open, Friday's close; days outside the window ignored
	assert.InDelta(t, 100.0, p.OpenPrice, 1e-9)
	assert.InDelta(t, 105.0, p.ClosePrice, 1e-9)
	assert.False(t, p.ResolvedAt.IsZero())
	assert.Equal(t, store.prices, result.Prices)
}

func TestResolveWeekMidWeekSplitHalvesOpenOnly(t *testing.T) {
	// 2:1 split effective Wednesday: the raw Monday open must be brought
	// into post-split terms, the Friday close is already there
	fetcher := &fakeFetcher{series: map[string][]contracts.PricePoint{
		"NVDA": bars(
			[]int{2, 3, 4, 5, 6},
			[]float64{200, 201, 101, 102, 103},
			[]float64{201, 202, 102, 103, 104},
		),
	}}
	store := &fakeStore{}
	r := newTestResolver(fetcher, store)

	result, err := r.ResolveWeek(context.Background(), testWeek(), []string{"NVDA"})
	require.NoError(t, err)

	require.Len(t, result.Prices, 1)
	p := result.Prices[0]
	assert.InDelta(t, 100.0, p.OpenPrice, 1e-9)
	assert.InDelta(t, 104.0, p.ClosePrice, 1e-9)
}

func TestResolveWeekSplitBeforeOpenNotApplied(t *testing.T) {
	// Split lands on Monday itself: Monday's open is already post-split
	fetcher := &fakeFetcher{series: map[string][]contracts.PricePoint{
		"TSLA": bars(
			[]int{26, 27, 2, 3, 4, 5, 6},
			[]float64{400, 402, 101, 102, 103, 104, 105},
			[]float64{402, 404, 102, 103, 104, 105, 106},
		),
	}}
	store := &fakeStore{}
	r := newTestResolver(fetcher, store)

	result, err := r.ResolveWeek(context.Background(), testWeek(), []string{"TSLA"})
	require.NoError(t, err)

	require.Len(t, result.Prices, 1)
	assert.InDelta(t, 101.0, result.Prices[0].OpenPrice, 1e-9)
	assert.InDelta(t, 106.0, result.Prices[0].ClosePrice, 1e-9)
}

func TestResolveWeekNoTradingDaysIsMissing(t *testing.T) {
	fetcher := &fakeFetcher{series: map[string][]contracts.PricePoint{
		"DLST": bars([]int{23, 24, 25}, []float64{10, 10, 10}, []float64{10, 10, 10}),
	}}
	store := &fakeStore{}
	r := newTestResolver(fetcher, store)

	result, err := r.ResolveWeek(context.Background(), testWeek(), []string{"DLST"})
	require.NoError(t, err)

	assert.Empty(t, result.Prices)
	assert.Equal(t, []string{"DLST"}, result.Missing)
	assert.Empty(t, store.prices)
}

func TestResolveWeekFetchFailureDoesNotAbort(t *testing.T) {
	fetcher := &fakeFetcher{
		series: map[string][]contracts.PricePoint{
			"AAPL": bars([]int{2, 6}, []float64{100, 104}, []float64{101, 105}),
		},
		errOn: map[string]error{"BAD": fmt.Errorf("provider unavailable")},
	}
	store := &fakeStore{}
	r := newTestResolver(fetcher, store)

	result, err := r.ResolveWeek(context.Background(), testWeek(), []string{"BAD", "AAPL"})
	require.NoError(t, err)

	require.Len(t, result.Prices, 1)
	assert.Equal(t, "AAPL", result.Prices[0].Ticker)
	assert.Equal(t, []string{"BAD"}, result.Missing)
	assert.Equal(t, []string{"BAD", "AAPL"}, fetcher.calls)
}

func TestResolveWeekStoreFailureAborts(t *testing.T) {
	fetcher := &fakeFetcher{series: map[string][]contracts.PricePoint{
		"AAPL": bars([]int{2, 6}, []float64{100, 104}, []float64{101, 105}),
	}}
	store := &fakeStore{err: fmt.Errorf("db down")}
	r := newTestResolver(fetcher, store)

	_, err := r.ResolveWeek(context.Background(), testWeek(), []string{"AAPL"})
	assert.Error(t, err)
}

func TestResolveWeekCancelledContext(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := &fakeStore{}
	r := newTestResolver(fetcher, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ResolveWeek(ctx, testWeek(), []string{"AAPL", "MSFT"})
	assert.Error(t, err)
}

func TestResolveWeekMissingOpenFallsBackToClose(t *testing.T) {
	fetcher := &fakeFetcher{series: map[string][]contracts.PricePoint{
		"SPY": {
			{Date: day(2), Close: 500},
			{Date: day(6), Close: 505},
		},
	}}
	store := &fakeStore{}
	r := newTestResolver(fetcher, store)

	result, err := r.ResolveWeek(context.Background(), testWeek(), []string{"SPY"})
	require.NoError(t, err)

	require.Len(t, result.Prices, 1)
	assert.InDelta(t, 500.0, result.Prices[0].OpenPrice, 1e-9)
}
