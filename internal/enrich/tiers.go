package enrich

import (
	"math"

	"actpipe/internal/quantile"
)

// Engagement levels, ascending.
const (
	EngagementVeryLow = "Very Low"
	EngagementLow     = "Low"
	EngagementMedium  = "Medium"
	EngagementHigh    = "High"
)

// Price tiers, ascending.
const (
	TierBudget   = "Budget"
	TierStandard = "Standard"
	TierPremium  = "Premium"
	TierLuxury   = "Luxury"
)

// FallbackTier is assigned to every record when quartile edges cannot be formed.
const FallbackTier = TierStandard

var tierOrder = map[string]int{TierBudget: 0, TierStandard: 1, TierPremium: 2, TierLuxury: 3}

// TierOrdinal returns the position of a tier label, or -1.
func TierOrdinal(tier string) int {
	if o, ok := tierOrder[tier]; ok {
		return o
	}
	return -1
}

// Engagement buckets a session duration in minutes: [0,30) Very Low, [30,60) Low,
// [60,120) Medium, [120,inf) High. A nil duration counts as 0.
func Engagement(minutes *float64) string {
	m := 0.0
	if minutes != nil && !math.IsNaN(*minutes) {
		m = *minutes
	}
	switch {
	case m < 30:
		return EngagementVeryLow
	case m < 60:
		return EngagementLow
	case m < 120:
		return EngagementMedium
	default:
		return EngagementHigh
	}
}

// PriceTiers computes batch quartile edges over prices and returns the labeler for
// one price. ok is false when the batch has fewer than four distinct prices or the
// edges are not strictly increasing; the labeler then returns FallbackTier.
func PriceTiers(prices []float64) (label func(float64) string, ok bool) {
	fallback := func(float64) string { return FallbackTier }
	if len(prices) == 0 {
		return fallback, false
	}
	sorted := quantile.Sorted(prices)
	distinct := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			distinct++
		}
	}
	if distinct < 4 {
		return fallback, false
	}
	edges := [5]float64{}
	for i := range edges {
		edges[i] = quantile.Linear(sorted, float64(i)/4)
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return fallback, false
		}
	}
	return func(p float64) string {
		switch {
		case p <= edges[1]:
			return TierBudget
		case p <= edges[2]:
			return TierStandard
		case p <= edges[3]:
			return TierPremium
		default:
			return TierLuxury
		}
	}, true
}
