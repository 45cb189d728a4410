// Package metrics computes descriptive statistics over response-time
// samples, grounded on the teacher repo's use of gonum/stat for trade
// metrics (tools/metrics/metrics.go, tools/metrics/bootstrap.go) but
// retargeted from trading payoff ratios to connection diagnostics.
package metrics

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Percentile returns the p-th percentile (0..1) of values using linear
// interpolation. values need not be pre-sorted; a sorted copy is used.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// Summary is a compact description of a bounded sample set.
type Summary struct {
	Count int
	Mean  float64
	P50   float64
	P95   float64
}

// Summarize computes a Summary over values.
func Summarize(values []float64) Summary {
	return Summary{
		Count: len(values),
		Mean:  Mean(values),
		P50:   Percentile(values, 0.5),
		P95:   Percentile(values, 0.95),
	}
}
