package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/internal/metricscache"
	"github.com/wonny/stockleague/backend/internal/settlement"
	"github.com/wonny/stockleague/backend/pkg/logger"
)

// cachedStore serves pre-seeded fresh entries and rejects writes, so
// handler tests never exercise the refresh path
type cachedStore struct {
	entries map[string]contracts.CacheEntry
}

func (s *cachedStore) Upsert(_ context.Context, entry contracts.CacheEntry) error {
	s.entries[entry.Snapshot.Ticker] = entry
	return nil
}

func (s *cachedStore) GetMany(_ context.Context, tickers []string) (map[string]contracts.CacheEntry, error) {
	out := make(map[string]contracts.CacheEntry)
	for _, t := range tickers {
		if e, ok := s.entries[t]; ok {
			out[t] = e
		}
	}
	return out, nil
}

type noFetcher struct{ calls int }

func (f *noFetcher) Fetch(_ context.Context, _ string, _ contracts.SeriesKind) (*contracts.RawSeries, error) {
	f.calls++
	return nil, fmt.Errorf("provider unavailable")
}

func (f *noFetcher) FetchOverview(_ context.Context, _ string) (*contracts.Overview, error) {
	return nil, fmt.Errorf("provider unavailable")
}

func seededMetricsService(tickers ...string) *metricscache.Service {
	store := &cachedStore{entries: make(map[string]contracts.CacheEntry)}
	for _, t := range tickers {
		store.entries[t] = contracts.CacheEntry{
			Snapshot: contracts.MetricsSnapshot{
				Ticker:        t,
				SchemaVersion: metricscache.SchemaVersion,
			},
			UpdatedAt: time.Now(),
		}
	}
	return metricscache.NewService(
		metricscache.NewMemoryCache(10*time.Minute),
		store,
		&noFetcher{},
		"SPY",
		24*time.Hour,
		logger.NewNop(),
	)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// --- metrics lookup ---

func TestLookupServesCachedSnapshots(t *testing.T) {
	h := NewMetricsHandler(seededMetricsService("AAPL", "MSFT"), logger.NewNop())

	rec := postJSON(t, h.Lookup, map[string]interface{}{
		"tickers": []string{"AAPL", "MSFT"},
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp metricscache.LookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Empty(t, resp.Errors)
}

func TestLookupRejectsEmptyTickers(t *testing.T) {
	h := NewMetricsHandler(seededMetricsService(), logger.NewNop())

	rec := postJSON(t, h.Lookup, map[string]interface{}{"tickers": []string{}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupRejectsOversizedBatch(t *testing.T) {
	h := NewMetricsHandler(seededMetricsService(), logger.NewNop())

	tickers := make([]string, maxLookupTickers+1)
	for i := range tickers {
		tickers[i] = fmt.Sprintf("T%d", i)
	}
	rec := postJSON(t, h.Lookup, map[string]interface{}{"tickers": tickers}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupRejectsMalformedBody(t *testing.T) {
	h := NewMetricsHandler(seededMetricsService(), logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- settlement resolve ---

type weeklyStore struct {
	prices []contracts.WeeklyPrice
}

func (s *weeklyStore) UpsertWeeklyPrice(_ context.Context, price contracts.WeeklyPrice) error {
	s.prices = append(s.prices, price)
	return nil
}

type weekFetcher struct {
	points []contracts.PricePoint
}

func (f *weekFetcher) Fetch(_ context.Context, ticker string, kind contracts.SeriesKind) (*contracts.RawSeries, error) {
	return &contracts.RawSeries{Ticker: ticker, Kind: kind, Points: f.points}, nil
}

func (f *weekFetcher) FetchOverview(_ context.Context, _ string) (*contracts.Overview, error) {
	return nil, fmt.Errorf("not used")
}

func newSettlementHandler(secret string) (*SettlementHandler, *weeklyStore) {
	store := &weeklyStore{}
	fetcher := &weekFetcher{points: []contracts.PricePoint{
		{Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Open: 100, Close: 101},
		{Date: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), Open: 104, Close: 105},
	}}
	resolver := settlement.NewResolver(fetcher, store, time.Nanosecond, logger.NewNop())
	return NewSettlementHandler(resolver, secret, logger.NewNop()), store
}

func resolveBody() map[string]interface{} {
	return map[string]interface{}{
		"weekId":    "2026-W10",
		"weekStart": "2026-03-02T00:00:00Z",
		"weekEnd":   "2026-03-06T00:00:00Z",
		"tickers":   []string{"AAPL"},
	}
}

func TestResolveRequiresSecret(t *testing.T) {
	h, store := newSettlementHandler("hunter2")

	rec := postJSON(t, h.Resolve, resolveBody(), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h.Resolve, resolveBody(), map[string]string{"X-Settle-Secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, store.prices)
}

func TestResolveUnconfiguredSecretRefusesAll(t *testing.T) {
	h, _ := newSettlementHandler("")

	rec := postJSON(t, h.Resolve, resolveBody(), map[string]string{"X-Settle-Secret": ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolveHappyPath(t *testing.T) {
	h, store := newSettlementHandler("hunter2")

	rec := postJSON(t, h.Resolve, resolveBody(), map[string]string{"X-Settle-Secret": "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ResolvedCount)
	assert.Empty(t, resp.Missing)
	require.Len(t, store.prices, 1)
	assert.Equal(t, "2026-W10", store.prices[0].WeekID)
}

func TestResolveValidatesWindow(t *testing.T) {
	h, _ := newSettlementHandler("hunter2")

	body := resolveBody()
	body["weekStart"], body["weekEnd"] = body["weekEnd"], body["weekStart"]
	rec := postJSON(t, h.Resolve, body, map[string]string{"X-Settle-Secret": "hunter2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = resolveBody()
	body["tickers"] = []string{}
	rec = postJSON(t, h.Resolve, body, map[string]string{"X-Settle-Secret": "hunter2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
