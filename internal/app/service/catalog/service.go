package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/internal/store"
)

// ErrInvalidPlan means the plan does not exist or is not purchasable.
var ErrInvalidPlan = errors.New("plan not found or inactive")

// Service is the read-only view of the membership plan catalog. Plans are
// maintained by the admin side; the purchase path only ever reads them.
type Service struct {
	st  store.Store
	log *zap.SugaredLogger
}

func NewService(st store.Store, log *zap.SugaredLogger) *Service {
	return &Service{st: st, log: log}
}

func (s *Service) ActivePlans(ctx context.Context) ([]*models.MembershipPlan, error) {
	plans, err := s.st.Plans().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// PurchasablePlan resolves a plan for a new order. The returned plan is the
// price authority; client-supplied amounts are never trusted.
func (s *Service) PurchasablePlan(ctx context.Context, planID string) (*models.MembershipPlan, error) {
	return s.purchasable(ctx, s.st, planID)
}

// PurchasablePlanTx is the in-transaction variant used by order settlement.
func (s *Service) PurchasablePlanTx(ctx context.Context, tx store.Store, planID string) (*models.MembershipPlan, error) {
	return s.purchasable(ctx, tx, planID)
}

func (s *Service) purchasable(ctx context.Context, st store.Store, planID string) (*models.MembershipPlan, error) {
	plan, err := st.Plans().Get(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidPlan
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if !plan.IsActive {
		return nil, ErrInvalidPlan
	}
	return plan, nil
}
