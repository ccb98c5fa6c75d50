package types

type MembershipStatus string

const (
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusExpired   MembershipStatus = "expired"
	MembershipStatusCancelled MembershipStatus = "cancelled"
)

// PlanTier classifies a plan by its duration. Referral subscription rewards
// are keyed by tier.
type PlanTier string

const (
	PlanTierFree      PlanTier = "free"
	PlanTierWeekly    PlanTier = "weekly"
	PlanTierMonthly   PlanTier = "monthly"
	PlanTierQuarterly PlanTier = "quarterly"
	PlanTierYearly    PlanTier = "yearly"
)

// TierForDuration maps a plan duration to its tier bucket.
func TierForDuration(durationDays int) PlanTier {
	switch {
	case durationDays <= 0:
		return PlanTierFree
	case durationDays <= 7:
		return PlanTierWeekly
	case durationDays <= 31:
		return PlanTierMonthly
	case durationDays <= 92:
		return PlanTierQuarterly
	default:
		return PlanTierYearly
	}
}

// UnlimitedDailyLimit marks a plan with no per-day analysis cap.
const UnlimitedDailyLimit = -1

type UsageKind string

const (
	UsageKindAnalysis  UsageKind = "analysis"
	UsageKindWatchlist UsageKind = "watchlist"
)

func (k UsageKind) Valid() bool {
	return k == UsageKindAnalysis || k == UsageKindWatchlist
}
