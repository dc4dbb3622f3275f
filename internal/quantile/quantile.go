// Package quantile computes sample quantiles with linear interpolation between
// closest ranks, the estimator used for the price-tier edges and describe stats.
package quantile

import "sort"

// Linear returns the q-quantile (0 <= q <= 1) of sorted. sorted must be in
// ascending order and non-empty.
func Linear(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 || q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	frac := pos - float64(lo)
	if lo+1 >= n {
		return sorted[n-1]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	return out
}
