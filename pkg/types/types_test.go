package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTierForDuration(t *testing.T) {
	tests := []struct {
		days int
		want PlanTier
	}{
		{0, PlanTierFree},
		{-1, PlanTierFree},
		{7, PlanTierWeekly},
		{8, PlanTierMonthly},
		{30, PlanTierMonthly},
		{31, PlanTierMonthly},
		{90, PlanTierQuarterly},
		{92, PlanTierQuarterly},
		{365, PlanTierYearly},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, TierForDuration(tt.days), "days=%d", tt.days)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	require.True(t, OrderStatusPending.CanTransitionTo(OrderStatusPaid))
	require.True(t, OrderStatusPending.CanTransitionTo(OrderStatusClosed))
	require.True(t, OrderStatusPending.CanTransitionTo(OrderStatusFailed))
	require.True(t, OrderStatusPaid.CanTransitionTo(OrderStatusRefunded))

	require.False(t, OrderStatusPaid.CanTransitionTo(OrderStatusPending))
	require.False(t, OrderStatusClosed.CanTransitionTo(OrderStatusPaid))
	require.False(t, OrderStatusRefunded.CanTransitionTo(OrderStatusPaid))
	require.False(t, OrderStatusFailed.CanTransitionTo(OrderStatusPaid))
}

func TestUsageKindValid(t *testing.T) {
	require.True(t, UsageKindAnalysis.Valid())
	require.True(t, UsageKindWatchlist.Valid())
	require.False(t, UsageKind("export").Valid())
}
