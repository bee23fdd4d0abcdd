package warm

import (
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// ScatterOrder produces a stable, spread-out visiting order for the
// universe: tickers are sorted by hash (stable across processes, so
// redundant instances agree on the ordering) and then interleaved with
// a stride of round(sqrt(n)). Alphabetical walks starve late-alphabet
// tickers whenever a pass stops early; this does not.
func ScatterOrder(tickers []string) []string {
	n := len(tickers)
	if n == 0 {
		return nil
	}

	sorted := append([]string(nil), tickers...)
	sort.Slice(sorted, func(i, j int) bool {
		hi, hj := xxhash.Sum64String(sorted[i]), xxhash.Sum64String(sorted[j])
		if hi != hj {
			return hi < hj
		}
		return sorted[i] < sorted[j]
	})

	stride := int(math.Round(math.Sqrt(float64(n))))
	if stride < 1 {
		stride = 1
	}

	out := make([]string, 0, n)
	for start := 0; start < stride; start++ {
		for i := start; i < n; i += stride {
			out = append(out, sorted[i])
		}
	}
	return out
}
