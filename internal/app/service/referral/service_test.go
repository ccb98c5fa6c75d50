package referral

import (
	"context"
	"strings"
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
		Referral: cfgpkg.ReferralConfig{
			RegistrationReward: 10,
			RewardWeekly:       30,
			RewardMonthly:      100,
			RewardQuarterly:    300,
		},
	}
	st := store.NewMemoryStore()
	return NewService(cfg, st, zap.NewNop().Sugar()), st
}

func seedUser(t *testing.T, st *store.MemoryStore) *models.User {
	t.Helper()
	u := &models.User{
		ID:              tool.GenerateUUIDV7(),
		Status:          types.UserStatusActive,
		MembershipLevel: types.PlanTierFree,
	}
	require.NoError(t, st.Users().Create(context.Background(), u))
	return u
}

func TestGetOrCreateShareCode(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st)

	code, err := svc.GetOrCreateShareCode(context.Background(), u.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(code, "R"))
	require.Len(t, code, 13)

	// Codes never change once assigned.
	again, err := svc.GetOrCreateShareCode(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, code, again)
}

func TestResolveShareCode_Unknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ResolveShareCode(context.Background(), "RNOSUCHCODE99")
	require.ErrorIs(t, err, ErrUnknownReferrer)
}

func TestResolveShareCode_DisabledReferrer(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st)

	code, err := svc.GetOrCreateShareCode(context.Background(), u.ID)
	require.NoError(t, err)

	u.Status = types.UserStatusDisabled
	require.NoError(t, st.Users().Save(context.Background(), u))

	_, err = svc.ResolveShareCode(context.Background(), code)
	require.ErrorIs(t, err, ErrUnknownReferrer)
}

func TestGrantRegistrationReward_Idempotent(t *testing.T) {
	svc, st := newTestService(t)
	referrer := seedUser(t, st)
	referred := seedUser(t, st)

	code, err := svc.GetOrCreateShareCode(context.Background(), referrer.ID)
	require.NoError(t, err)
	_, err = svc.RecordReferral(context.Background(), referred.ID, code)
	require.NoError(t, err)

	// RecordReferral already granted; the standalone retry is a no-op.
	granted, err := svc.GrantRegistrationReward(context.Background(), referrer.ID, referred.ID)
	require.NoError(t, err)
	require.Equal(t, 0, granted)

	got, err := st.Users().Get(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.ReferralBonusBalance)
}

func TestGrantRegistrationReward_Backfill(t *testing.T) {
	svc, st := newTestService(t)
	referrer := seedUser(t, st)
	referred := seedUser(t, st)

	// A record created without the reward, as by a data backfill.
	require.NoError(t, st.Referrals().Create(context.Background(), &models.ReferralRecord{
		ID:             tool.GenerateUUIDV7(),
		ReferrerID:     referrer.ID,
		ReferredUserID: referred.ID,
	}))

	granted, err := svc.GrantRegistrationReward(context.Background(), referrer.ID, referred.ID)
	require.NoError(t, err)
	require.Equal(t, 10, granted)

	got, err := st.Users().Get(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.ReferralBonusBalance)
}

func TestRecordReferral_GrantsRegistrationReward(t *testing.T) {
	svc, st := newTestService(t)
	referrer := seedUser(t, st)
	referred := seedUser(t, st)

	code, err := svc.GetOrCreateShareCode(context.Background(), referrer.ID)
	require.NoError(t, err)

	record, err := svc.RecordReferral(context.Background(), referred.ID, code)
	require.NoError(t, err)
	require.Equal(t, referrer.ID, record.ReferrerID)
	require.True(t, record.RegistrationRewardGiven)
	require.False(t, record.SubscriptionRewardGiven)

	got, err := st.Users().Get(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.ReferralBonusBalance)

	got, err = st.Users().Get(context.Background(), referred.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReferrerID)
	require.Equal(t, referrer.ID, *got.ReferrerID)
}

func TestRecordReferral_SelfReferral(t *testing.T) {
	svc, st := newTestService(t)
	u := seedUser(t, st)

	code, err := svc.GetOrCreateShareCode(context.Background(), u.ID)
	require.NoError(t, err)

	_, err = svc.RecordReferral(context.Background(), u.ID, code)
	require.ErrorIs(t, err, ErrSelfReferral)
}

func TestRecordReferral_Duplicate(t *testing.T) {
	svc, st := newTestService(t)
	referrer := seedUser(t, st)
	other := seedUser(t, st)
	referred := seedUser(t, st)

	code, err := svc.GetOrCreateShareCode(context.Background(), referrer.ID)
	require.NoError(t, err)
	otherCode, err := svc.GetOrCreateShareCode(context.Background(), other.ID)
	require.NoError(t, err)

	_, err = svc.RecordReferral(context.Background(), referred.ID, code)
	require.NoError(t, err)

	// Same code and a different code both fail: the bind is one-shot.
	_, err = svc.RecordReferral(context.Background(), referred.ID, code)
	require.ErrorIs(t, err, ErrDuplicateReferral)
	_, err = svc.RecordReferral(context.Background(), referred.ID, otherCode)
	require.ErrorIs(t, err, ErrDuplicateReferral)

	got, err := st.Users().Get(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.ReferralBonusBalance)
}

func TestRecordReferral_ConfigOverride(t *testing.T) {
	svc, st := newTestService(t)
	referrer := seedUser(t, st)
	referred := seedUser(t, st)
	st.SetConfigInt(ConfigKeyRegistrationReward, 25)

	code, err := svc.GetOrCreateShareCode(context.Background(), referrer.ID)
	require.NoError(t, err)
	_, err = svc.RecordReferral(context.Background(), referred.ID, code)
	require.NoError(t, err)

	got, err := st.Users().Get(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, 25, got.ReferralBonusBalance)
}

func bindPair(t *testing.T, svc *Service, st *store.MemoryStore) (referrer, referred *models.User) {
	t.Helper()
	referrer = seedUser(t, st)
	referred = seedUser(t, st)
	code, err := svc.GetOrCreateShareCode(context.Background(), referrer.ID)
	require.NoError(t, err)
	_, err = svc.RecordReferral(context.Background(), referred.ID, code)
	require.NoError(t, err)
	return referrer, referred
}

func TestGrantSubscriptionReward_TierAmounts(t *testing.T) {
	tests := []struct {
		tier   types.PlanTier
		reward int
	}{
		{types.PlanTierWeekly, 30},
		{types.PlanTierMonthly, 100},
		{types.PlanTierQuarterly, 300},
		// Yearly tops out at the quarterly bucket.
		{types.PlanTierYearly, 300},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			svc, st := newTestService(t)
			referrer, referred := bindPair(t, svc, st)

			var granted int
			err := st.InTx(context.Background(), func(ctx context.Context, tx store.Store) error {
				var err error
				granted, err = svc.GrantSubscriptionRewardTx(ctx, tx, referred.ID, tt.tier, time.Now())
				return err
			})
			require.NoError(t, err)
			require.Equal(t, tt.reward, granted)

			got, err := st.Users().Get(context.Background(), referrer.ID)
			require.NoError(t, err)
			require.Equal(t, 10+tt.reward, got.ReferralBonusBalance)

			record, err := st.Referrals().ByReferred(context.Background(), referred.ID, false)
			require.NoError(t, err)
			require.True(t, record.SubscriptionRewardGiven)
			require.NotNil(t, record.SubscriptionPlanType)
			require.Equal(t, tt.tier, *record.SubscriptionPlanType)
		})
	}
}

func TestGrantSubscriptionReward_OnlyOnce(t *testing.T) {
	svc, st := newTestService(t)
	referrer, referred := bindPair(t, svc, st)

	grant := func() int {
		var granted int
		err := st.InTx(context.Background(), func(ctx context.Context, tx store.Store) error {
			var err error
			granted, err = svc.GrantSubscriptionRewardTx(ctx, tx, referred.ID, types.PlanTierMonthly, time.Now())
			return err
		})
		require.NoError(t, err)
		return granted
	}

	require.Equal(t, 100, grant())
	require.Equal(t, 0, grant())

	got, err := st.Users().Get(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, 110, got.ReferralBonusBalance)
}

func TestGrantSubscriptionReward_NoReferrer(t *testing.T) {
	svc, st := newTestService(t)
	loner := seedUser(t, st)

	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Store) error {
		granted, err := svc.GrantSubscriptionRewardTx(ctx, tx, loner.ID, types.PlanTierMonthly, time.Now())
		require.Equal(t, 0, granted)
		return err
	})
	require.NoError(t, err)
}

func TestRecordReferral_ConcurrentBinds(t *testing.T) {
	svc, st := newTestService(t)
	referrer := seedUser(t, st)
	referred := seedUser(t, st)

	code, err := svc.GetOrCreateShareCode(context.Background(), referrer.ID)
	require.NoError(t, err)

	const workers = 10
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.RecordReferral(context.Background(), referred.ID, code)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var bound int
	for err := range results {
		if err == nil {
			bound++
		} else {
			require.ErrorIs(t, err, ErrDuplicateReferral)
		}
	}
	require.Equal(t, 1, bound)

	// The registration reward landed exactly once.
	got, err := st.Users().Get(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.ReferralBonusBalance)
}

func TestGrantSubscriptionReward_ConcurrentSettlements(t *testing.T) {
	svc, st := newTestService(t)
	referrer, referred := bindPair(t, svc, st)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = st.InTx(context.Background(), func(ctx context.Context, tx store.Store) error {
				_, err := svc.GrantSubscriptionRewardTx(ctx, tx, referred.ID, types.PlanTierMonthly, time.Now())
				return err
			})
		}()
	}
	wg.Wait()

	got, err := st.Users().Get(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, 110, got.ReferralBonusBalance)
}
