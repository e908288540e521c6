// This file defines the tier policy table: daily request quota, historical
// data depth, and indicator access per subscription tier. The table is the
// single place to touch when a tier is added or its limits change.
package domain

import "time"

// TierPolicy holds the access limits attached to a subscription tier.
type TierPolicy struct {
	DailyQuota        int64
	MaxHistoryDays    int
	AllowedIndicators map[IndicatorKind]bool
}

// tierPolicies maps subscription tiers to their limits. Every field is
// monotonically non-decreasing in the order free < pro < premium.
var tierPolicies = map[SubscriptionTier]TierPolicy{
	TierFree: {
		DailyQuota:     50,
		MaxHistoryDays: 90,
		AllowedIndicators: map[IndicatorKind]bool{
			IndicatorSMA: true,
			IndicatorEMA: true,
		},
	},
	TierPro: {
		DailyQuota:     500,
		MaxHistoryDays: 365,
		AllowedIndicators: map[IndicatorKind]bool{
			IndicatorSMA:  true,
			IndicatorEMA:  true,
			IndicatorRSI:  true,
			IndicatorMACD: true,
		},
	},
	TierPremium: {
		DailyQuota:     10000,
		MaxHistoryDays: 1095,
		AllowedIndicators: map[IndicatorKind]bool{
			IndicatorSMA:            true,
			IndicatorEMA:            true,
			IndicatorRSI:            true,
			IndicatorMACD:           true,
			IndicatorBollingerBands: true,
		},
	},
}

// PolicyFor returns the policy for a tier. Unknown tiers fall back to the
// free policy; the caller is expected to log the anomaly rather than fail
// the request.
func PolicyFor(tier SubscriptionTier) TierPolicy {
	if p, ok := tierPolicies[tier]; ok {
		return p
	}
	return tierPolicies[TierFree]
}

// IsIndicatorAllowed reports whether the tier may request the given indicator.
func IsIndicatorAllowed(tier SubscriptionTier, kind IndicatorKind) bool {
	return PolicyFor(tier).AllowedIndicators[kind]
}

// EarliestAllowedDate returns the oldest start date the tier may query,
// relative to today.
func EarliestAllowedDate(tier SubscriptionTier, today time.Time) time.Time {
	return today.AddDate(0, 0, -PolicyFor(tier).MaxHistoryDays)
}

// IsHistoryWindowAllowed reports whether a request starting at start is within
// the tier's historical window. The boundary is inclusive: a start date equal
// to today minus MaxHistoryDays is allowed.
func IsHistoryWindowAllowed(tier SubscriptionTier, start, today time.Time) bool {
	return !start.Before(EarliestAllowedDate(tier, today))
}
