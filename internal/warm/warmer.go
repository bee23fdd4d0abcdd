package warm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/internal/provider"
	"github.com/wonny/stockleague/backend/pkg/logger"
)

// stateKey is the singleton row the warm cursor lives under
const stateKey = "warm_state"

// Refresher is the slice of the metrics service the warmer needs
type Refresher interface {
	HasFresh(ctx context.Context, ticker string) bool
	Refresh(ctx context.Context, ticker string, level contracts.Level, wantDaily bool) (contracts.CacheEntry, error)
}

// Warmer incrementally refreshes the ticker universe in the background.
// It owns WarmState exclusively. Safe to run redundantly across
// instances: skip-if-fresh is idempotent and the cursor wraps, trading
// perfect fairness for simplicity.
type Warmer struct {
	states    contracts.StateStore
	universe  contracts.UniverseLoader
	refresher Refresher
	interval  time.Duration
	batchSize int
	logger    *logger.Logger

	// at most one warm pass per process
	inFlight atomic.Bool

	now func() time.Time
}

// New creates a warmer
func New(
	states contracts.StateStore,
	universe contracts.UniverseLoader,
	refresher Refresher,
	interval time.Duration,
	batchSize int,
	log *logger.Logger,
) *Warmer {
	return &Warmer{
		states:    states,
		universe:  universe,
		refresher: refresher,
		interval:  interval,
		batchSize: batchSize,
		logger:    log,
		now:       time.Now,
	}
}

// Trigger schedules a warm pass without blocking the caller. Read paths
// call this opportunistically; the pass throttles itself.
func (w *Warmer) Trigger() {
	go func() {
		if err := w.Run(context.Background()); err != nil {
			w.logger.WithError(err).Warn("Warm pass failed")
		}
	}()
}

// Run executes one warm pass. Returns nil when the pass was skipped
// (already in flight, or inside the warm interval).
func (w *Warmer) Run(ctx context.Context) error {
	if !w.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer w.inFlight.Store(false)

	now := w.now()

	var state contracts.WarmState
	found, err := w.states.GetSingleton(ctx, stateKey, &state)
	if err != nil {
		return err
	}
	if found && now.Sub(state.LastRunAt) < w.interval {
		return nil
	}

	u, err := w.universe.Load(ctx)
	if err != nil {
		// UniverseUnavailable: abort the pass, retry on the next trigger
		return err
	}

	// A new universe snapshot restarts coverage from the top
	if state.UniverseSnapshotID != u.SnapshotID {
		state.Cursor = 0
	}

	ordered := ScatterOrder(u.Tickers)
	n := len(ordered)
	if n == 0 {
		return nil
	}
	batch := w.batchSize
	if batch > n {
		batch = n
	}

	processed := 0
	refreshed := 0
	for i := 0; i < batch; i++ {
		ticker := ordered[(state.Cursor+i)%n]

		// Fresh entries cost nothing
		if w.refresher.HasFresh(ctx, ticker) {
			processed++
			continue
		}

		if _, err := w.refresher.Refresh(ctx, ticker, contracts.LevelReturns, false); err != nil {
			if provider.IsRateLimited(err) {
				// Budget exhausted: stop early, the cursor stays behind so
				// the remainder leads the next pass
				w.logger.WithField("ticker", ticker).Debug("Warm pass stopped on budget")
				break
			}
			// Any other failure is swallowed and retried on a later pass
			w.logger.WithError(err).WithField("ticker", ticker).Debug("Warm refresh failed")
			processed++
			continue
		}
		processed++
		refreshed++
	}

	state.Cursor = (state.Cursor + processed) % n
	state.UniverseSnapshotID = u.SnapshotID
	state.LastRunAt = now

	if err := w.states.UpsertSingleton(ctx, stateKey, state); err != nil {
		return err
	}

	w.logger.WithFields(map[string]interface{}{
		"processed":   processed,
		"refreshed":   refreshed,
		"cursor":      state.Cursor,
		"snapshot_id": state.UniverseSnapshotID,
	}).Info("Warm pass completed")

	return nil
}
