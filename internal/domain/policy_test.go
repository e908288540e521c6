package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyFor_Monotonicity(t *testing.T) {
	order := []SubscriptionTier{TierFree, TierPro, TierPremium}

	for i := 1; i < len(order); i++ {
		lower := PolicyFor(order[i-1])
		higher := PolicyFor(order[i])

		assert.GreaterOrEqual(t, higher.DailyQuota, lower.DailyQuota,
			"daily quota must not decrease from %s to %s", order[i-1], order[i])
		assert.GreaterOrEqual(t, higher.MaxHistoryDays, lower.MaxHistoryDays,
			"history window must not decrease from %s to %s", order[i-1], order[i])

		// Indicator set inclusion: everything the lower tier can do, the
		// higher tier can do too.
		for kind := range lower.AllowedIndicators {
			assert.True(t, higher.AllowedIndicators[kind],
				"%s allows %s but %s does not", order[i-1], kind, order[i])
		}
	}
}

func TestPolicyFor_UnknownTierDefaultsToFree(t *testing.T) {
	p := PolicyFor(SubscriptionTier("enterprise"))
	assert.Equal(t, PolicyFor(TierFree), p)
}

func TestIsIndicatorAllowed(t *testing.T) {
	tests := []struct {
		name string
		tier SubscriptionTier
		kind IndicatorKind
		want bool
	}{
		{"free sma", TierFree, IndicatorSMA, true},
		{"free ema", TierFree, IndicatorEMA, true},
		{"free rsi denied", TierFree, IndicatorRSI, false},
		{"free macd denied", TierFree, IndicatorMACD, false},
		{"pro rsi", TierPro, IndicatorRSI, true},
		{"pro macd", TierPro, IndicatorMACD, true},
		{"pro bollinger denied", TierPro, IndicatorBollingerBands, false},
		{"premium bollinger", TierPremium, IndicatorBollingerBands, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIndicatorAllowed(tt.tier, tt.kind))
		})
	}
}

func TestIsHistoryWindowAllowed_Boundary(t *testing.T) {
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	// Exactly at the boundary is allowed.
	atBoundary := today.AddDate(0, 0, -90)
	assert.True(t, IsHistoryWindowAllowed(TierFree, atBoundary, today))

	// One day past the boundary is not.
	pastBoundary := today.AddDate(0, 0, -91)
	assert.False(t, IsHistoryWindowAllowed(TierFree, pastBoundary, today))
}

func TestIsHistoryWindowAllowed_TierDepth(t *testing.T) {
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -1000)

	// 1000 days back: within premium's 1095-day window, outside free's 90.
	assert.True(t, IsHistoryWindowAllowed(TierPremium, start, today))
	assert.False(t, IsHistoryWindowAllowed(TierFree, start, today))
}

func TestCanUpgradeTo(t *testing.T) {
	tests := []struct {
		name string
		from SubscriptionTier
		to   SubscriptionTier
		want bool
	}{
		{"free to pro", TierFree, TierPro, true},
		{"free to premium", TierFree, TierPremium, true},
		{"pro to premium", TierPro, TierPremium, true},
		{"pro to free rejected", TierPro, TierFree, false},
		{"premium to pro rejected", TierPremium, TierPro, false},
		{"lateral rejected", TierPro, TierPro, false},
		{"unknown target rejected", TierFree, SubscriptionTier("gold"), false},
		{"unknown source rejected", SubscriptionTier("gold"), TierPremium, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanUpgradeTo(tt.to))
		})
	}
}
