package splits

import (
	"math"
	"sort"

	"github.com/wonny/stockleague/backend/internal/contracts"
)

// Options holds the tunable thresholds for split inference. The
// functions here are pure so they are testable without network I/O.
type Options struct {
	// DiscontinuityRatio is the prev/next close ratio at which a drop
	// becomes a split candidate
	DiscontinuityRatio float64

	// CandidateFactors are the split ratios considered during inference
	CandidateFactors []float64

	// MaxRelativeError is the acceptance threshold for the best
	// candidate's relative error
	MaxRelativeError float64
}

// DefaultOptions returns the production inference thresholds
func DefaultOptions() Options {
	return Options{
		DiscontinuityRatio: 1.4,
		CandidateFactors:   []float64{2, 3, 4, 5, 6, 7, 8, 9, 10, 12, 15, 20, 25},
		MaxRelativeError:   0.25,
	}
}

// ExtractExplicit extracts split events from provider-reported split
// coefficients. A coefficient != 1 on a bar yields factor = 1/coefficient.
func ExtractExplicit(points []contracts.PricePoint) []contracts.SplitEvent {
	var events []contracts.SplitEvent
	for _, p := range points {
		if p.SplitCoefficient > 0 && p.SplitCoefficient != 1 {
			events = append(events, contracts.SplitEvent{
				Date:   p.Date,
				Factor: 1 / p.SplitCoefficient,
				Source: contracts.SplitExplicit,
			})
		}
	}
	return events
}

// Infer detects splits from close-price discontinuities. Used when
// explicit split metadata is absent, e.g. a plain daily series.
//
// Known limitation: a genuine one-day crash past the discontinuity
// ratio can misfire as a split; the series carries no volume or
// corporate-action signal to disambiguate.
func Infer(points []contracts.PricePoint, opts Options) []contracts.SplitEvent {
	var events []contracts.SplitEvent

	sorted := sortedAscending(points)
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		if prev.Close <= 0 || next.Close <= 0 {
			continue
		}

		ratio := prev.Close / next.Close
		if ratio < opts.DiscontinuityRatio {
			continue
		}

		factor, relErr := bestCandidate(ratio, opts.CandidateFactors)
		if relErr >= opts.MaxRelativeError {
			continue
		}

		events = append(events, contracts.SplitEvent{
			Date:   next.Date,
			Factor: factor,
			Source: contracts.SplitInferred,
		})
	}

	return events
}

// bestCandidate picks the candidate factor minimizing relative error
// against the observed ratio
func bestCandidate(ratio float64, candidates []float64) (factor, relErr float64) {
	relErr = math.Inf(1)
	for _, c := range candidates {
		e := math.Abs(ratio-c) / c
		if e < relErr {
			factor, relErr = c, e
		}
	}
	return factor, relErr
}

// Merge combines explicit and inferred events. Explicit events take
// precedence on conflicting dates; the merged set is deduplicated by
// date and sorted ascending.
func Merge(explicit, inferred []contracts.SplitEvent) []contracts.SplitEvent {
	byDate := make(map[string]contracts.SplitEvent)
	for _, e := range inferred {
		byDate[e.Date.Format("2006-01-02")] = e
	}
	for _, e := range explicit {
		byDate[e.Date.Format("2006-01-02")] = e
	}

	merged := make([]contracts.SplitEvent, 0, len(byDate))
	for _, e := range byDate {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})
	return merged
}

// Apply rescales historical closes into current share-count terms.
// Walking from the most recent point backwards, every split event dated
// strictly after a point multiplies into that point's cumulative
// factor; adjusted = raw / cumulative. The result is sorted ascending.
//
// With zero events, adjusted == raw for every point.
func Apply(points []contracts.PricePoint, events []contracts.SplitEvent) []contracts.AdjustedPoint {
	descending := sortedAscending(points)
	for i, j := 0, len(descending)-1; i < j; i, j = i+1, j-1 {
		descending[i], descending[j] = descending[j], descending[i]
	}

	// Events most recent first, consumed once each as the walk passes them
	pending := append([]contracts.SplitEvent(nil), events...)
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Date.After(pending[j].Date)
	})

	adjusted := make([]contracts.AdjustedPoint, 0, len(descending))
	cumulative := 1.0
	next := 0
	for _, p := range descending {
		for next < len(pending) && pending[next].Date.After(p.Date) {
			cumulative *= pending[next].Factor
			next++
		}

		adjusted = append(adjusted, contracts.AdjustedPoint{
			Date:          p.Date,
			RawClose:      p.Close,
			AdjustedClose: p.Close / cumulative,
		})
	}

	sort.Slice(adjusted, func(i, j int) bool {
		return adjusted[i].Date.Before(adjusted[j].Date)
	})
	return adjusted
}

// Adjust runs the full pipeline: explicit extraction, inference when no
// explicit data exists, merge, apply.
func Adjust(points []contracts.PricePoint, opts Options) []contracts.AdjustedPoint {
	explicit := ExtractExplicit(points)

	var inferred []contracts.SplitEvent
	if len(explicit) == 0 {
		inferred = Infer(points, opts)
	}

	return Apply(points, Merge(explicit, inferred))
}

// sortedAscending returns a date-ascending copy of points
func sortedAscending(points []contracts.PricePoint) []contracts.PricePoint {
	out := append([]contracts.PricePoint(nil), points...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
