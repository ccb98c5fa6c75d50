package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/internal/store"
	"github.com/astocklabs/memberd/pkg/tool"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st, zap.NewNop().Sugar()), st
}

func seedPlan(t *testing.T, st *store.MemoryStore, name string, sortOrder int, active bool) *models.MembershipPlan {
	t.Helper()
	p := &models.MembershipPlan{
		ID:           tool.GenerateUUIDV7(),
		Name:         name,
		PriceCents:   2990,
		DurationDays: 30,
		SortOrder:    sortOrder,
		IsActive:     active,
	}
	require.NoError(t, st.Plans().Create(context.Background(), p))
	return p
}

func TestActivePlans_FiltersAndSorts(t *testing.T) {
	svc, st := newTestService(t)
	seedPlan(t, st, "季度会员", 2, true)
	seedPlan(t, st, "月度会员", 1, true)
	seedPlan(t, st, "下架套餐", 0, false)

	plans, err := svc.ActivePlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, "月度会员", plans[0].Name)
	require.Equal(t, "季度会员", plans[1].Name)
}

func TestPurchasablePlan(t *testing.T) {
	svc, st := newTestService(t)
	active := seedPlan(t, st, "月度会员", 1, true)
	inactive := seedPlan(t, st, "下架套餐", 2, false)

	got, err := svc.PurchasablePlan(context.Background(), active.ID)
	require.NoError(t, err)
	require.Equal(t, active.ID, got.ID)

	_, err = svc.PurchasablePlan(context.Background(), inactive.ID)
	require.ErrorIs(t, err, ErrInvalidPlan)

	_, err = svc.PurchasablePlan(context.Background(), tool.GenerateUUIDV7())
	require.ErrorIs(t, err, ErrInvalidPlan)
}
