package settlement

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/internal/splits"
	"github.com/wonny/stockleague/backend/pkg/logger"
)

// Resolver produces settlement-grade open/close prices for one scoring
// week. It reuses the budgeted provider client but paces its own calls
// with a fixed delay: settlement runs in a separate invocation context,
// so it cannot rely on the shared budget's local counters.
type Resolver struct {
	fetcher   contracts.SeriesFetcher
	store     contracts.WeeklyPriceStore
	limiter   *rate.Limiter
	splitOpts splits.Options
	logger    *logger.Logger

	now func() time.Time
}

// NewResolver creates a resolver pacing provider calls at one per
// callDelay
func NewResolver(fetcher contracts.SeriesFetcher, store contracts.WeeklyPriceStore, callDelay time.Duration, log *logger.Logger) *Resolver {
	return &Resolver{
		fetcher:   fetcher,
		store:     store,
		limiter:   rate.NewLimiter(rate.Every(callDelay), 1),
		splitOpts: splits.DefaultOptions(),
		logger:    log,
		now:       time.Now,
	}
}

// ResolveWeek resolves split-adjusted open/close pairs for every ticker
// in the week. Tickers without a trading day inside the window, or
// whose series could not be fetched, come back in Missing; no single
// ticker aborts the run. Results are upserted by (week, ticker).
func (r *Resolver) ResolveWeek(ctx context.Context, week contracts.SettlementWeek, tickers []string) (*contracts.ResolveResult, error) {
	result := &contracts.ResolveResult{
		Prices:  make([]contracts.WeeklyPrice, 0, len(tickers)),
		Missing: make([]string, 0),
	}

	for _, ticker := range tickers {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		series, err := r.fetcher.Fetch(ctx, ticker, contracts.SeriesDaily)
		if err != nil {
			r.logger.WithError(err).WithField("ticker", ticker).Warn("Settlement fetch failed")
			result.Missing = append(result.Missing, ticker)
			continue
		}

		price, ok := r.resolveTicker(week, ticker, series.Points)
		if !ok {
			result.Missing = append(result.Missing, ticker)
			continue
		}

		if err := r.store.UpsertWeeklyPrice(ctx, price); err != nil {
			return nil, err
		}
		result.Prices = append(result.Prices, price)
	}

	r.logger.WithFields(map[string]interface{}{
		"week_id":  week.ID,
		"resolved": len(result.Prices),
		"missing":  len(result.Missing),
	}).Info("Settlement week resolved")

	return result, nil
}

// resolveTicker locates the week's first and last trading bars and
// rescales the open into the close's share-count terms. Splits are
// inferred from the fetched window only; the close, being most recent,
// needs no adjustment.
func (r *Resolver) resolveTicker(week contracts.SettlementWeek, ticker string, points []contracts.PricePoint) (contracts.WeeklyPrice, bool) {
	openIdx, closeIdx := -1, -1
	for i, p := range points {
		if openIdx < 0 && !p.Date.Before(week.Start) {
			openIdx = i
		}
		if !p.Date.After(week.End) {
			closeIdx = i
		}
	}
	if openIdx < 0 || closeIdx < 0 || closeIdx < openIdx {
		return contracts.WeeklyPrice{}, false
	}

	openBar, closeBar := points[openIdx], points[closeIdx]

	openPrice := openBar.Open
	if openPrice == 0 {
		openPrice = openBar.Close
	}

	// Every inferred split after the open and up to the close divides
	// the open into post-split terms
	factor := 1.0
	for _, ev := range splits.Infer(points, r.splitOpts) {
		if ev.Date.After(openBar.Date) && !ev.Date.After(closeBar.Date) {
			factor *= ev.Factor
		}
	}

	return contracts.WeeklyPrice{
		WeekID:     week.ID,
		Ticker:     ticker,
		OpenPrice:  openPrice / factor,
		ClosePrice: closeBar.Close,
		ResolvedAt: r.now(),
	}, true
}
