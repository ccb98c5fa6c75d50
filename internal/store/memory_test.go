package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/pkg/tool"
	"github.com/astocklabs/memberd/pkg/types"
)

func TestInTx_RollbackOnError(t *testing.T) {
	st := NewMemoryStore()
	boom := errors.New("boom")

	id := tool.GenerateUUIDV7()
	err := st.InTx(context.Background(), func(ctx context.Context, tx Store) error {
		if err := tx.Users().Create(ctx, &models.User{ID: id, Status: types.UserStatusActive}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.Users().Get(context.Background(), id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	st := NewMemoryStore()

	id := tool.GenerateUUIDV7()
	err := st.InTx(context.Background(), func(ctx context.Context, tx Store) error {
		return tx.Users().Create(ctx, &models.User{ID: id, Status: types.UserStatusActive})
	})
	require.NoError(t, err)

	u, err := st.Users().Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, types.UserStatusActive, u.Status)
}

func TestAdjustBonus_NeverNegative(t *testing.T) {
	st := NewMemoryStore()
	u := &models.User{ID: tool.GenerateUUIDV7(), ReferralBonusBalance: 1}
	require.NoError(t, st.Users().Create(context.Background(), u))

	ok, err := st.Users().AdjustBonus(context.Background(), u.ID, -1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.Users().AdjustBonus(context.Background(), u.ID, -1)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := st.Users().Get(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.ReferralBonusBalance)
}

func TestIncrementWithLimit(t *testing.T) {
	st := NewMemoryStore()
	userID := tool.GenerateUUIDV7()
	day := time.Now()

	applied, count, err := st.Usage().IncrementWithLimit(context.Background(), userID, day, types.UsageKindAnalysis, 2)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 1, count)

	applied, count, err = st.Usage().IncrementWithLimit(context.Background(), userID, day, types.UsageKindAnalysis, 2)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 2, count)

	applied, count, err = st.Usage().IncrementWithLimit(context.Background(), userID, day, types.UsageKindAnalysis, 2)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, 2, count)

	// Kinds have independent counters.
	applied, _, err = st.Usage().IncrementWithLimit(context.Background(), userID, day, types.UsageKindWatchlist, 2)
	require.NoError(t, err)
	require.True(t, applied)
}

func TestIncrementWithLimit_Unlimited(t *testing.T) {
	st := NewMemoryStore()
	userID := tool.GenerateUUIDV7()
	day := time.Now()

	for i := 1; i <= 100; i++ {
		applied, count, err := st.Usage().IncrementWithLimit(context.Background(), userID, day, types.UsageKindAnalysis, types.UnlimitedDailyLimit)
		require.NoError(t, err)
		require.True(t, applied)
		require.Equal(t, i, count)
	}
}

func TestOrderTransition_CAS(t *testing.T) {
	st := NewMemoryStore()
	o := &models.Order{
		ID:            tool.GenerateUUIDV7(),
		OrderNo:       tool.GenerateOrderNo(time.Now()),
		UserID:        tool.GenerateUUIDV7(),
		PaymentStatus: types.OrderStatusPending,
	}
	require.NoError(t, st.Orders().Create(context.Background(), o))

	o.PaymentStatus = types.OrderStatusPaid
	ok, err := st.Orders().Transition(context.Background(), o, types.OrderStatusPending)
	require.NoError(t, err)
	require.True(t, ok)

	// Second writer raced and lost: stored status is no longer pending.
	ok, err = st.Orders().Transition(context.Background(), o, types.OrderStatusPending)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOrderCreate_DuplicateOrderNo(t *testing.T) {
	st := NewMemoryStore()
	orderNo := tool.GenerateOrderNo(time.Now())

	require.NoError(t, st.Orders().Create(context.Background(), &models.Order{
		ID: tool.GenerateUUIDV7(), OrderNo: orderNo, PaymentStatus: types.OrderStatusPending,
	}))
	err := st.Orders().Create(context.Background(), &models.Order{
		ID: tool.GenerateUUIDV7(), OrderNo: orderNo, PaymentStatus: types.OrderStatusPending,
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestCountPaidByUser_SkipsManualGrants(t *testing.T) {
	st := NewMemoryStore()
	userID := tool.GenerateUUIDV7()

	mk := func(no string, method types.PaymentMethod, status types.OrderStatus) {
		require.NoError(t, st.Orders().Create(context.Background(), &models.Order{
			ID: tool.GenerateUUIDV7(), OrderNo: no, UserID: userID,
			PaymentMethod: method, PaymentStatus: status,
		}))
	}
	mk("M1", types.PaymentMethodManual, types.OrderStatusPaid)
	mk("M2", types.PaymentMethodWechat, types.OrderStatusPending)

	// A comp order alone: the user has not paid yet.
	n, err := st.Orders().CountPaidByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	mk("M3", types.PaymentMethodWechat, types.OrderStatusPaid)
	n, err = st.Orders().CountPaidByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestCloseExpired(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := &models.Order{ID: tool.GenerateUUIDV7(), OrderNo: "M1", PaymentStatus: types.OrderStatusPending, ExpireAt: &past}
	live := &models.Order{ID: tool.GenerateUUIDV7(), OrderNo: "M2", PaymentStatus: types.OrderStatusPending, ExpireAt: &future}
	require.NoError(t, st.Orders().Create(context.Background(), expired))
	require.NoError(t, st.Orders().Create(context.Background(), live))

	n, err := st.Orders().CloseExpired(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := st.Orders().ByOrderNo(context.Background(), "M1", false)
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusClosed, got.PaymentStatus)
	got, err = st.Orders().ByOrderNo(context.Background(), "M2", false)
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusPending, got.PaymentStatus)
}

func TestReferralCreate_PairUnique(t *testing.T) {
	st := NewMemoryStore()
	referrer := tool.GenerateUUIDV7()
	referred := tool.GenerateUUIDV7()

	require.NoError(t, st.Referrals().Create(context.Background(), &models.ReferralRecord{
		ReferrerID: referrer, ReferredUserID: referred,
	}))
	err := st.Referrals().Create(context.Background(), &models.ReferralRecord{
		ReferrerID: referrer, ReferredUserID: referred,
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestBestActive_PicksLatestExpiry(t *testing.T) {
	st := NewMemoryStore()
	userID := tool.GenerateUUIDV7()
	now := time.Now()

	mk := func(expire time.Time, status types.MembershipStatus) {
		require.NoError(t, st.Memberships().Create(context.Background(), &models.UserMembership{
			ID: tool.GenerateUUIDV7(), UserID: userID, StartAt: now.AddDate(0, 0, -1), ExpireAt: expire, Status: status,
		}))
	}
	mk(now.AddDate(0, 0, 10), types.MembershipStatusActive)
	mk(now.AddDate(0, 0, 40), types.MembershipStatusActive)
	mk(now.AddDate(0, 0, 90), types.MembershipStatusCancelled)

	best, err := st.Memberships().BestActive(context.Background(), userID, now, false)
	require.NoError(t, err)
	require.WithinDuration(t, now.AddDate(0, 0, 40), best.ExpireAt, time.Second)
}

func TestConfigGetInt(t *testing.T) {
	st := NewMemoryStore()

	v, err := st.Configs().GetInt(context.Background(), "free_daily_limit", 5)
	require.NoError(t, err)
	require.Equal(t, 5, v)

	st.SetConfigInt("free_daily_limit", 9)
	v, err = st.Configs().GetInt(context.Background(), "free_daily_limit", 5)
	require.NoError(t, err)
	require.Equal(t, 9, v)
}
