package entitlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/internal/store"
	cfgpkg "github.com/astocklabs/memberd/pkg/config"
	"github.com/astocklabs/memberd/pkg/tool"
	"github.com/astocklabs/memberd/pkg/types"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	cfg := &cfgpkg.Config{
		Entitlement: cfgpkg.EntitlementConfig{
			FreeDailyLimit:     5,
			FreeWatchlistLimit: 10,
			UseBonusBalance:    true,
		},
	}
	st := store.NewMemoryStore()
	return NewService(cfg, st, zap.NewNop().Sugar()), st
}

func seedUser(t *testing.T, st *store.MemoryStore, bonus int) *models.User {
	t.Helper()
	u := &models.User{
		ID:                   tool.GenerateUUIDV7(),
		Status:               types.UserStatusActive,
		MembershipLevel:      types.PlanTierFree,
		ReferralBonusBalance: bonus,
	}
	require.NoError(t, st.Users().Create(context.Background(), u))
	return u
}

func seedPlan(t *testing.T, st *store.MemoryStore, days, dailyLimit, watchlistLimit int) *models.MembershipPlan {
	t.Helper()
	p := &models.MembershipPlan{
		ID:                 tool.GenerateUUIDV7(),
		Name:               "测试套餐",
		PriceCents:         2990,
		DurationDays:       days,
		DailyAnalysisLimit: dailyLimit,
		WatchlistLimit:     watchlistLimit,
		IsActive:           true,
	}
	require.NoError(t, st.Plans().Create(context.Background(), p))
	return p
}

func TestEffectiveLimits_FreeTierDefaults(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)

	limits, err := svc.EffectiveLimits(context.Background(), u.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.PlanTierFree, limits.Level)
	require.Equal(t, 5, limits.DailyLimit)
	require.Equal(t, 10, limits.WatchlistLimit)
	require.Nil(t, limits.ExpireAt)
}

func TestEffectiveLimits_ConfigOverridesDefaults(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)
	st.SetConfigInt(ConfigKeyFreeDailyLimit, 8)
	st.SetConfigInt(ConfigKeyFreeWatchlistLimit, 3)

	limits, err := svc.EffectiveLimits(context.Background(), u.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, 8, limits.DailyLimit)
	require.Equal(t, 3, limits.WatchlistLimit)
}

func TestEffectiveLimits_ActiveMembershipWins(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)
	plan := seedPlan(t, st, 30, types.UnlimitedDailyLimit, 50)
	now := time.Now()

	_, err := svc.GrantMembershipTx(context.Background(), st, u.ID, plan, nil, now)
	require.NoError(t, err)

	limits, err := svc.EffectiveLimits(context.Background(), u.ID, now)
	require.NoError(t, err)
	require.Equal(t, types.PlanTierMonthly, limits.Level)
	require.Equal(t, types.UnlimitedDailyLimit, limits.DailyLimit)
	require.Equal(t, 50, limits.WatchlistLimit)
	require.NotNil(t, limits.ExpireAt)
	require.GreaterOrEqual(t, limits.DaysRemaining, 29)
}

func TestGrantMembership_SequentialStacking(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)
	plan := seedPlan(t, st, 30, 100, 50)
	now := time.Now()

	first, err := svc.GrantMembershipTx(context.Background(), st, u.ID, plan, nil, now)
	require.NoError(t, err)
	require.WithinDuration(t, now, first.StartAt, time.Second)
	require.WithinDuration(t, now.AddDate(0, 0, 30), first.ExpireAt, time.Second)

	// Paying again while covered starts the new window at the old expiry.
	second, err := svc.GrantMembershipTx(context.Background(), st, u.ID, plan, nil, now)
	require.NoError(t, err)
	require.Equal(t, first.ExpireAt, second.StartAt)
	require.WithinDuration(t, now.AddDate(0, 0, 60), second.ExpireAt, time.Second)

	user, err := st.Users().Get(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, types.PlanTierMonthly, user.MembershipLevel)
	require.NotNil(t, user.MembershipExpire)
	require.Equal(t, second.ExpireAt, *user.MembershipExpire)
}

func TestGrantMembership_ExpiredCoverageDoesNotStack(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)
	plan := seedPlan(t, st, 30, 100, 50)
	past := time.Now().AddDate(0, 0, -90)

	_, err := svc.GrantMembershipTx(context.Background(), st, u.ID, plan, nil, past)
	require.NoError(t, err)

	now := time.Now()
	m, err := svc.GrantMembershipTx(context.Background(), st, u.ID, plan, nil, now)
	require.NoError(t, err)
	require.WithinDuration(t, now, m.StartAt, time.Second)
}

func TestConsumeQuota_LimitThenBonusThenReject(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 1)
	st.SetConfigInt(ConfigKeyFreeDailyLimit, 2)
	now := time.Now()

	for i := 1; i <= 2; i++ {
		res, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
		require.NoError(t, err)
		require.Equal(t, i, res.Count)
		require.False(t, res.UsedBonus)
	}

	// Limit exhausted, one bonus unit left.
	res, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
	require.NoError(t, err)
	require.True(t, res.UsedBonus)

	_, err = svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	user, err := st.Users().Get(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, 0, user.ReferralBonusBalance)
	require.Equal(t, int64(3), user.TotalAnalysisCount)
}

func TestConsumeQuota_BonusDisabled(t *testing.T) {
	svc, st := newTestService(t)
	svc.cfg.Entitlement.UseBonusBalance = false
	u := seedUser(t, st, 10)
	st.SetConfigInt(ConfigKeyFreeDailyLimit, 1)
	now := time.Now()

	_, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
	require.NoError(t, err)
	_, err = svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	user, err := st.Users().Get(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, 10, user.ReferralBonusBalance)
}

func TestConsumeQuota_WatchlistNeverUsesBonus(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 5)
	st.SetConfigInt(ConfigKeyFreeWatchlistLimit, 1)
	now := time.Now()

	_, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindWatchlist)
	require.NoError(t, err)
	_, err = svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindWatchlist)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	user, err := st.Users().Get(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, 5, user.ReferralBonusBalance)
}

func TestConsumeQuota_UnlimitedPlan(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)
	plan := seedPlan(t, st, 30, types.UnlimitedDailyLimit, 50)
	now := time.Now()

	_, err := svc.GrantMembershipTx(context.Background(), st, u.ID, plan, nil, now)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
		require.NoError(t, err)
	}
}

func TestConsumeQuota_ResetsAcrossDays(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)
	st.SetConfigInt(ConfigKeyFreeDailyLimit, 1)
	today := time.Now()

	_, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, today, types.UsageKindAnalysis)
	require.NoError(t, err)
	_, err = svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, today, types.UsageKindAnalysis)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	tomorrow := today.AddDate(0, 0, 1)
	res, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, tomorrow, types.UsageKindAnalysis)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
}

func TestConsumeQuota_Concurrent(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)
	st.SetConfigInt(ConfigKeyFreeDailyLimit, 5)
	now := time.Now()

	const workers = 20
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var granted, rejected int
	for err := range results {
		switch {
		case err == nil:
			granted++
		case errors.Is(err, ErrQuotaExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 5, granted)
	require.Equal(t, workers-5, rejected)
}

func TestConsumeQuota_PurchaseLiftsLimit(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)
	plan := seedPlan(t, st, 7, 50, 50)
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
		require.NoError(t, err)
	}
	_, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	// Buying a plan mid-day lifts the limit; today's counter carries over.
	_, err = svc.GrantMembershipTx(context.Background(), st, u.ID, plan, nil, now)
	require.NoError(t, err)

	res, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, now, types.UsageKindAnalysis)
	require.NoError(t, err)
	require.Equal(t, 6, res.Count)
}

func TestConsumeQuota_UnknownKind(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st, 0)

	_, err := svc.CheckAndConsumeDailyQuota(context.Background(), u.ID, time.Now(), types.UsageKind("export"))
	require.Error(t, err)
}

func TestExpireStaleMemberships(t *testing.T) {
	svc, st := newTestService(t)
	stale := seedUser(t, st, 0)
	covered := seedUser(t, st, 0)
	plan := seedPlan(t, st, 30, 100, 50)

	past := time.Now().AddDate(0, 0, -60)
	_, err := svc.GrantMembershipTx(context.Background(), st, stale.ID, plan, nil, past)
	require.NoError(t, err)
	_, err = svc.GrantMembershipTx(context.Background(), st, covered.ID, plan, nil, time.Now())
	require.NoError(t, err)

	count, err := svc.ExpireStaleMemberships(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	u, err := st.Users().Get(context.Background(), stale.ID)
	require.NoError(t, err)
	require.Equal(t, types.PlanTierFree, u.MembershipLevel)
	require.Nil(t, u.MembershipExpire)

	limits, err := svc.EffectiveLimits(context.Background(), stale.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.PlanTierFree, limits.Level)

	// The covered user keeps full entitlement.
	limits, err = svc.EffectiveLimits(context.Background(), covered.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, types.PlanTierMonthly, limits.Level)
}
