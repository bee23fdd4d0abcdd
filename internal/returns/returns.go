package returns

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/stockleague/backend/internal/contracts"
)

// All outputs here are nil (not zero, not an error) when insufficient
// data exists. Callers must treat nil as "unknown", never "zero".

const (
	monthsPerYear = 12

	// minPairedMonths is the floor of paired observations for beta/alpha
	minPairedMonths = 6
)

// MonthlyReturn is one month-over-month return keyed "YYYY-MM"
type MonthlyReturn struct {
	Key   string
	Value float64
}

// Metrics bundles the derived return/risk fields for one ticker
type Metrics struct {
	AnnualReturn     *float64
	OneYearReturn    *float64
	AnnualVolatility *float64
	Beta             *float64
	Alpha            *float64
	Sharpe           *float64
	YearlyReturns    []contracts.YearlyReturn
	MonthlyReturns   map[string]float64
}

// Monthly derives month-over-month returns from an adjusted series,
// using the last close of each month. value = close[t]/close[t-1] - 1.
func Monthly(adjusted []contracts.AdjustedPoint) []MonthlyReturn {
	if len(adjusted) < 2 {
		return nil
	}

	// Last adjusted close per month, in series (ascending) order
	type monthEnd struct {
		key   string
		close float64
	}
	var ends []monthEnd
	for _, p := range adjusted {
		key := p.Date.Format("2006-01")
		if len(ends) > 0 && ends[len(ends)-1].key == key {
			ends[len(ends)-1].close = p.AdjustedClose
			continue
		}
		ends = append(ends, monthEnd{key: key, close: p.AdjustedClose})
	}

	var out []MonthlyReturn
	for i := 1; i < len(ends); i++ {
		if ends[i-1].close == 0 {
			continue
		}
		out = append(out, MonthlyReturn{
			Key:   ends[i].key,
			Value: ends[i].close/ends[i-1].close - 1,
		})
	}
	return out
}

// AnnualizedReturn compounds a monthly return sequence to a yearly
// rate: (Π(1+r))^(12/n) - 1
func AnnualizedReturn(monthly []float64) *float64 {
	n := len(monthly)
	if n == 0 {
		return nil
	}

	compound := 1.0
	for _, r := range monthly {
		compound *= 1 + r
	}
	if compound <= 0 {
		return nil
	}

	annual := math.Pow(compound, monthsPerYear/float64(n)) - 1
	if !isFinite(annual) {
		return nil
	}
	return &annual
}

// AnnualizedVolatility scales the population standard deviation of
// monthly returns by sqrt(12)
func AnnualizedVolatility(monthly []float64) *float64 {
	if len(monthly) < 2 {
		return nil
	}

	vol := popStdDev(monthly) * math.Sqrt(monthsPerYear)
	if !isFinite(vol) {
		return nil
	}
	return &vol
}

// TrailingOneYear computes the return from the nearest daily point at
// or before latest-1y to the latest point
func TrailingOneYear(daily []contracts.AdjustedPoint) *float64 {
	if len(daily) < 2 {
		return nil
	}

	sorted := append([]contracts.AdjustedPoint(nil), daily...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	latest := sorted[len(sorted)-1]
	cutoff := latest.Date.AddDate(-1, 0, 0)

	var base *contracts.AdjustedPoint
	for i := range sorted {
		if sorted[i].Date.After(cutoff) {
			break
		}
		base = &sorted[i]
	}
	if base == nil || base.AdjustedClose == 0 {
		return nil
	}

	r := latest.AdjustedClose/base.AdjustedClose - 1
	if !isFinite(r) {
		return nil
	}
	return &r
}

// BetaAlpha regresses stock monthly returns against a benchmark's,
// pairing observations by shared month key. Requires at least
// minPairedMonths pairs; both values are nil when the benchmark
// variance is zero or non-finite.
func BetaAlpha(stock, benchmark []MonthlyReturn) (beta, alpha *float64) {
	benchByKey := make(map[string]float64, len(benchmark))
	for _, r := range benchmark {
		benchByKey[r.Key] = r.Value
	}

	var stockVals, benchVals []float64
	for _, r := range stock {
		if b, ok := benchByKey[r.Key]; ok {
			stockVals = append(stockVals, r.Value)
			benchVals = append(benchVals, b)
		}
	}

	if len(stockVals) < minPairedMonths {
		return nil, nil
	}

	benchVar := stat.Variance(benchVals, nil)
	if benchVar == 0 || !isFinite(benchVar) {
		return nil, nil
	}

	// Same (n-1) denominator in covariance and variance, so the ratio is
	// the population beta as well
	b := stat.Covariance(stockVals, benchVals, nil) / benchVar
	a := stat.Mean(stockVals, nil) - b*stat.Mean(benchVals, nil)
	if !isFinite(b) || !isFinite(a) {
		return nil, nil
	}
	return &b, &a
}

// Sharpe is annual return over annual volatility, nil when volatility
// is zero or either input is unknown
func Sharpe(annualReturn, annualVolatility *float64) *float64 {
	if annualReturn == nil || annualVolatility == nil || *annualVolatility == 0 {
		return nil
	}
	s := *annualReturn / *annualVolatility
	if !isFinite(s) {
		return nil
	}
	return &s
}

// Yearly compounds monthly returns into calendar-year returns, ascending
func Yearly(monthly []MonthlyReturn) []contracts.YearlyReturn {
	byYear := make(map[int]float64)
	for _, r := range monthly {
		year := 0
		if len(r.Key) >= 4 {
			for _, ch := range r.Key[:4] {
				year = year*10 + int(ch-'0')
			}
		}
		if year == 0 {
			continue
		}
		if _, ok := byYear[year]; !ok {
			byYear[year] = 1
		}
		byYear[year] *= 1 + r.Value
	}

	out := make([]contracts.YearlyReturn, 0, len(byYear))
	for year, compound := range byYear {
		out = append(out, contracts.YearlyReturn{Year: year, Return: compound - 1})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// Compute derives the full metric set for one ticker from its adjusted
// monthly and daily series and the benchmark's monthly returns
func Compute(monthlyAdj, dailyAdj []contracts.AdjustedPoint, benchmark []MonthlyReturn) Metrics {
	monthly := Monthly(monthlyAdj)

	values := make([]float64, len(monthly))
	byKey := make(map[string]float64, len(monthly))
	for i, r := range monthly {
		values[i] = r.Value
		byKey[r.Key] = r.Value
	}

	annualReturn := AnnualizedReturn(values)
	annualVol := AnnualizedVolatility(values)
	beta, alpha := BetaAlpha(monthly, benchmark)

	m := Metrics{
		AnnualReturn:     annualReturn,
		OneYearReturn:    TrailingOneYear(dailyAdj),
		AnnualVolatility: annualVol,
		Beta:             beta,
		Alpha:            alpha,
		Sharpe:           Sharpe(annualReturn, annualVol),
		YearlyReturns:    Yearly(monthly),
	}
	if len(byKey) > 0 {
		m.MonthlyReturns = byKey
	}
	return m
}

// popStdDev is the population standard deviation (divide by n, not n-1)
func popStdDev(values []float64) float64 {
	mean := stat.Mean(values, nil)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
