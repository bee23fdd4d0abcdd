package warm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/internal/provider"
	"github.com/wonny/stockleague/backend/pkg/logger"
)

// --- fakes ---

type fakeStates struct {
	mu      sync.Mutex
	state   contracts.WarmState
	found   bool
	upserts int
}

func (s *fakeStates) GetSingleton(_ context.Context, _ string, dest interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.found {
		return false, nil
	}
	*dest.(*contracts.WarmState) = s.state
	return true, nil
}

func (s *fakeStates) UpsertSingleton(_ context.Context, _ string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = payload.(contracts.WarmState)
	s.found = true
	s.upserts++
	return nil
}

type fakeUniverse struct {
	universe contracts.Universe
	err      error
}

func (u *fakeUniverse) Load(_ context.Context) (*contracts.Universe, error) {
	if u.err != nil {
		return nil, u.err
	}
	return &u.universe, u.err
}

type fakeRefresher struct {
	mu        sync.Mutex
	fresh     map[string]bool
	errOn     map[string]error
	refreshed []string
	checks    []string
}

func (r *fakeRefresher) HasFresh(_ context.Context, ticker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, ticker)
	return r.fresh[ticker]
}

func (r *fakeRefresher) Refresh(_ context.Context, ticker string, _ contracts.Level, _ bool) (contracts.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn[ticker]; err != nil {
		return contracts.CacheEntry{}, err
	}
	r.refreshed = append(r.refreshed, ticker)
	return contracts.CacheEntry{}, nil
}

func newTestWarmer(states *fakeStates, uni *fakeUniverse, ref *fakeRefresher, interval time.Duration, batch int) *Warmer {
	w := New(states, uni, ref, interval, batch, logger.NewNop())
	return w
}

func tickers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("TK%03d", i)
	}
	return out
}

// --- scatter ---

func TestScatterOrderIsPermutation(t *testing.T) {
	in := tickers(37)
	out := ScatterOrder(in)

	require.Len(t, out, len(in))
	seen := make(map[string]int)
	for _, tk := range out {
		seen[tk]++
	}
	for _, tk := range in {
		assert.Equal(t, 1, seen[tk], "ticker %s should appear exactly once", tk)
	}
}

func TestScatterOrderIsStable(t *testing.T) {
	in := tickers(50)
	first := ScatterOrder(in)

	// Input order must not matter
	shuffled := append([]string(nil), in...)
	sort.Sort(sort.Reverse(sort.StringSlice(shuffled)))
	second := ScatterOrder(shuffled)

	assert.Equal(t, first, second)
}

func TestScatterOrderBreaksAlphabeticalRuns(t *testing.T) {
	in := tickers(100)
	out := ScatterOrder(in)

	// A scatter order should not look like a sorted walk
	assert.False(t, sort.StringsAreSorted(out))
}

func TestScatterOrderEmpty(t *testing.T) {
	assert.Nil(t, ScatterOrder(nil))
}

// --- warm pass ---

func TestRunRefreshesBatchAndAdvancesCursor(t *testing.T) {
	states := &fakeStates{}
	uni := &fakeUniverse{universe: contracts.Universe{SnapshotID: "snap-1", Tickers: tickers(30)}}
	ref := &fakeRefresher{}
	w := newTestWarmer(states, uni, ref, time.Minute, 10)

	require.NoError(t, w.Run(context.Background()))

	assert.Len(t, ref.refreshed, 10)
	assert.Equal(t, 10, states.state.Cursor)
	assert.Equal(t, "snap-1", states.state.UniverseSnapshotID)
	assert.False(t, states.state.LastRunAt.IsZero())
}

func TestRunSkipsInsideInterval(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	states := &fakeStates{
		found: true,
		state: contracts.WarmState{Cursor: 5, UniverseSnapshotID: "snap-1", LastRunAt: now.Add(-30 * time.Second)},
	}
	uni := &fakeUniverse{universe: contracts.Universe{SnapshotID: "snap-1", Tickers: tickers(30)}}
	ref := &fakeRefresher{}
	w := newTestWarmer(states, uni, ref, time.Minute, 10)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Run(context.Background()))

	assert.Empty(t, ref.refreshed)
	assert.Zero(t, states.upserts)
}

func TestRunAbortsOnUniverseError(t *testing.T) {
	states := &fakeStates{}
	uni := &fakeUniverse{err: fmt.Errorf("universe down")}
	ref := &fakeRefresher{}
	w := newTestWarmer(states, uni, ref, time.Minute, 10)

	assert.Error(t, w.Run(context.Background()))
	assert.Empty(t, ref.refreshed)
	assert.Zero(t, states.upserts)
}

func TestRunResetsCursorOnNewSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	states := &fakeStates{
		found: true,
		state: contracts.WarmState{Cursor: 17, UniverseSnapshotID: "snap-old", LastRunAt: now.Add(-2 * time.Minute)},
	}
	all := tickers(30)
	uni := &fakeUniverse{universe: contracts.Universe{SnapshotID: "snap-new", Tickers: all}}
	ref := &fakeRefresher{}
	w := newTestWarmer(states, uni, ref, time.Minute, 10)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Run(context.Background()))

	// First 10 of the scatter order, not the 10 after the stale cursor
	assert.Equal(t, ScatterOrder(all)[:10], ref.refreshed)
	assert.Equal(t, 10, states.state.Cursor)
	assert.Equal(t, "snap-new", states.state.UniverseSnapshotID)
}

func TestRunSkipsFreshEntries(t *testing.T) {
	all := tickers(10)
	order := ScatterOrder(all)
	states := &fakeStates{}
	uni := &fakeUniverse{universe: contracts.Universe{SnapshotID: "snap-1", Tickers: all}}
	ref := &fakeRefresher{fresh: map[string]bool{order[0]: true, order[2]: true}}
	w := newTestWarmer(states, uni, ref, time.Minute, 5)

	require.NoError(t, w.Run(context.Background()))

	assert.Len(t, ref.refreshed, 3)
	assert.NotContains(t, ref.refreshed, order[0])
	assert.NotContains(t, ref.refreshed, order[2])
	// Fresh entries still advance the cursor
	assert.Equal(t, 5, states.state.Cursor)
}

func TestRunStopsEarlyOnBudgetRefusal(t *testing.T) {
	all := tickers(20)
	order := ScatterOrder(all)
	states := &fakeStates{}
	uni := &fakeUniverse{universe: contracts.Universe{SnapshotID: "snap-1", Tickers: all}}
	ref := &fakeRefresher{errOn: map[string]error{order[3]: provider.ErrRateLimited}}
	w := newTestWarmer(states, uni, ref, time.Minute, 10)

	require.NoError(t, w.Run(context.Background()))

	// Three succeeded, the fourth hit the budget and ended the batch
	assert.Equal(t, order[:3], ref.refreshed)
	assert.Equal(t, 3, states.state.Cursor)
}

func TestRunCountsOtherFailuresAsProcessed(t *testing.T) {
	all := tickers(10)
	order := ScatterOrder(all)
	states := &fakeStates{}
	uni := &fakeUniverse{universe: contracts.Universe{SnapshotID: "snap-1", Tickers: all}}
	ref := &fakeRefresher{errOn: map[string]error{order[1]: fmt.Errorf("parse error")}}
	w := newTestWarmer(states, uni, ref, time.Minute, 5)

	require.NoError(t, w.Run(context.Background()))

	assert.Len(t, ref.refreshed, 4)
	assert.Equal(t, 5, states.state.Cursor)
}

func TestRunCursorWrapsAround(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	states := &fakeStates{
		found: true,
		state: contracts.WarmState{Cursor: 8, UniverseSnapshotID: "snap-1", LastRunAt: now.Add(-2 * time.Minute)},
	}
	uni := &fakeUniverse{universe: contracts.Universe{SnapshotID: "snap-1", Tickers: tickers(10)}}
	ref := &fakeRefresher{}
	w := newTestWarmer(states, uni, ref, time.Minute, 5)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 3, states.state.Cursor)
}

// Repeated passes over an unchanged universe must visit every ticker
// exactly once per full cycle.
func TestRunRepeatedPassesCoverUniverse(t *testing.T) {
	const n, batch = 37, 10
	all := tickers(n)
	states := &fakeStates{}
	uni := &fakeUniverse{universe: contracts.Universe{SnapshotID: "snap-1", Tickers: all}}
	ref := &fakeRefresher{}

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	w := newTestWarmer(states, uni, ref, time.Minute, batch)
	w.now = func() time.Time { return now }

	passes := (n + batch - 1) / batch
	visited := make(map[string]int)
	for p := 0; p < passes; p++ {
		require.NoError(t, w.Run(context.Background()))
		now = now.Add(2 * time.Minute)
	}
	for _, tk := range ref.refreshed {
		visited[tk]++
	}

	// 4 passes of 10 over 37 tickers: 3 wrap-around repeats at most
	assert.GreaterOrEqual(t, len(visited), n)
	for _, tk := range all {
		assert.GreaterOrEqual(t, visited[tk], 1, "ticker %s never warmed", tk)
	}
	assert.Equal(t, (passes*batch)%n, states.state.Cursor)
}

func TestRunSingleFlight(t *testing.T) {
	states := &fakeStates{}
	uni := &fakeUniverse{universe: contracts.Universe{SnapshotID: "snap-1", Tickers: tickers(5)}}
	ref := &fakeRefresher{}
	w := newTestWarmer(states, uni, ref, time.Minute, 5)

	w.inFlight.Store(true)
	require.NoError(t, w.Run(context.Background()))
	assert.Empty(t, ref.refreshed)

	w.inFlight.Store(false)
	require.NoError(t, w.Run(context.Background()))
	assert.Len(t, ref.refreshed, 5)
}
