package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/astocklabs/memberd/internal/app/service/catalog"
	"github.com/astocklabs/memberd/internal/app/service/entitlement"
	"github.com/astocklabs/memberd/internal/app/service/referral"
	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/internal/platform/payment"
	"github.com/astocklabs/memberd/internal/store"
	cfgpkg "github.com/astocklabs/memberd/pkg/config"
	"github.com/astocklabs/memberd/pkg/logctx"
	"github.com/astocklabs/memberd/pkg/metrics"
	"github.com/astocklabs/memberd/pkg/tool"
	"github.com/astocklabs/memberd/pkg/types"
)

// SettlementOutcome classifies what one settlement attempt did.
type SettlementOutcome string

const (
	// OutcomeApplied means this attempt moved the order to paid and granted
	// the membership.
	OutcomeApplied SettlementOutcome = "applied"
	// OutcomeDuplicate means the order was already settled; nothing changed.
	OutcomeDuplicate SettlementOutcome = "duplicate"
	// OutcomeFailed means the provider reported a failed payment and the
	// order moved to failed.
	OutcomeFailed SettlementOutcome = "failed"
)

// SettleResult is the result of one SettlePayment call.
type SettleResult struct {
	Order      *models.Order          `json:"order"`
	Outcome    SettlementOutcome      `json:"outcome"`
	Membership *models.UserMembership `json:"membership,omitempty"`
	// RewardGranted is the first-subscription bonus credited to the
	// referrer by this settlement, 0 when none applied.
	RewardGranted int `json:"reward_granted,omitempty"`
}

// Service owns the order ledger: creation, idempotent settlement, refunds and
// housekeeping. Every status change goes through the pending→paid/closed/
// failed, paid→refunded machine; nothing else writes payment_status.
type Service struct {
	cfg         *cfgpkg.Config
	st          store.Store
	catalog     *catalog.Service
	entitlement *entitlement.Service
	referral    *referral.Service
	provider    payment.Provider
	log         *zap.SugaredLogger
}

func NewService(
	cfg *cfgpkg.Config,
	st store.Store,
	cat *catalog.Service,
	ent *entitlement.Service,
	ref *referral.Service,
	provider payment.Provider,
	log *zap.SugaredLogger,
) *Service {
	return &Service{
		cfg:         cfg,
		st:          st,
		catalog:     cat,
		entitlement: ent,
		referral:    ref,
		provider:    provider,
		log:         log,
	}
}

// CreateOrder opens a pending order for the plan at the catalog price and
// asks the payment provider for a prepay QR code. The plan is snapshotted
// into the order so later settlement grants what the user saw at checkout,
// even if the plan changes in between.
func (s *Service) CreateOrder(ctx context.Context, userID, planID string) (*models.Order, error) {
	user, err := s.st.Users().Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive() {
		return nil, fmt.Errorf("user %s is not active", userID)
	}

	plan, err := s.catalog.PurchasablePlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expireAt := now.Add(time.Duration(s.cfg.Order.PendingExpireHours) * time.Hour)
	o := &models.Order{
		ID:            tool.GenerateUUIDV7(),
		OrderNo:       tool.GenerateOrderNo(now),
		UserID:        userID,
		PlanID:        plan.ID,
		PlanName:      plan.Name,
		AmountCents:   plan.PriceCents,
		PaymentMethod: s.provider.Method(),
		PaymentStatus: types.OrderStatusPending,
		ExpireAt:      &expireAt,
		Extra:         datatypes.NewJSONType(&models.OrderExtra{PlanSnapshot: plan}),
	}

	prepay, err := s.provider.CreateNativeOrder(ctx, o.OrderNo, plan.Name, o.AmountCents)
	if err != nil {
		return nil, fmt.Errorf("failed to create prepay order: %w", err)
	}
	o.QRCodeURL = &prepay.QRCodeURL
	if prepay.PrepayID != "" {
		o.PrepayID = &prepay.PrepayID
	}

	if err := s.st.Orders().Create(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("order created",
		"order_no", o.OrderNo, "user_id", userID, "plan_id", plan.ID, "amount_cents", o.AmountCents)
	return o, nil
}

// GetOrder returns the order for status polling. Only the owner's orders are
// visible through the API layer; the service itself does not filter.
func (s *Service) GetOrder(ctx context.Context, orderNo string) (*models.Order, error) {
	o, err := s.st.Orders().ByOrderNo(ctx, orderNo, false)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return o, nil
}

// ListUserOrders returns the user's most recent orders, optionally filtered
// by status. Status "" means all.
func (s *Service) ListUserOrders(ctx context.Context, userID string, status types.OrderStatus, limit int) ([]*models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	orders, err := s.st.Orders().ListByUser(ctx, userID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// SettlePayment applies one verified payment notification to the ledger.
// The whole settlement is one transaction: order status, membership grant and
// referral reward commit together or not at all. Replays of an already-applied
// notification return OutcomeDuplicate and change nothing, so providers may
// retry freely.
func (s *Service) SettlePayment(ctx context.Context, notif *payment.Notification) (*SettleResult, error) {
	now := time.Now()
	var result *SettleResult

	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		o, err := tx.Orders().ByOrderNo(ctx, notif.OrderNo, true)
		if errors.Is(err, store.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}

		if o.PaymentStatus == types.OrderStatusPaid {
			// Replayed notification for a settled order. Same transaction is
			// a clean duplicate; a different one is flagged for review but
			// still acknowledged so the provider stops retrying.
			if o.TransactionID == nil || *o.TransactionID != notif.TransactionID {
				logctx.FromCtx(ctx, s.log).Warnw("paid order notified with different transaction",
					"order_no", o.OrderNo, "transaction_id", notif.TransactionID)
			}
			result = &SettleResult{Order: o, Outcome: OutcomeDuplicate}
			return nil
		}

		if !notif.Success {
			ok, err := tx.Orders().Transition(ctx, markFailed(o, notif), types.OrderStatusPending)
			if err != nil {
				return fmt.Errorf("failed to mark order failed: %w", err)
			}
			if !ok {
				return ErrInvalidTransition
			}
			result = &SettleResult{Order: o, Outcome: OutcomeFailed}
			return nil
		}

		if !o.CanPay(now) {
			return ErrInvalidTransition
		}
		// A transaction settles at most one order.
		if existing, err := tx.Orders().ByTransactionID(ctx, notif.TransactionID); err == nil && existing.ID != o.ID {
			return fmt.Errorf("%w: transaction %s already settled order %s",
				ErrInvalidTransition, notif.TransactionID, existing.OrderNo)
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check transaction: %w", err)
		}
		if notif.AmountCents != o.AmountCents {
			// Leave the order pending; operators resolve mismatches by hand.
			return fmt.Errorf("%w: order %s expects %d, got %d",
				ErrAmountMismatch, o.OrderNo, o.AmountCents, notif.AmountCents)
		}

		firstPaid, err := tx.Orders().CountPaidByUser(ctx, o.UserID)
		if err != nil {
			return fmt.Errorf("failed to count paid orders: %w", err)
		}

		o.PaymentStatus = types.OrderStatusPaid
		o.TransactionID = &notif.TransactionID
		o.PaidAt = &now
		ok, err := tx.Orders().Transition(ctx, o, types.OrderStatusPending)
		if err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		if !ok {
			return ErrInvalidTransition
		}

		plan := o.GetPlanSnapshot()
		if plan == nil {
			plan, err = s.catalog.PurchasablePlanTx(ctx, tx, o.PlanID)
			if err != nil {
				return fmt.Errorf("order %s has no usable plan: %w", o.OrderNo, err)
			}
		}
		membership, err := s.entitlement.GrantMembershipTx(ctx, tx, o.UserID, plan, &o.ID, now)
		if err != nil {
			return err
		}

		reward := 0
		if firstPaid == 0 {
			reward, err = s.referral.GrantSubscriptionRewardTx(ctx, tx, o.UserID, plan.Tier(), now)
			if err != nil {
				return err
			}
		}

		result = &SettleResult{
			Order:         o,
			Outcome:       OutcomeApplied,
			Membership:    membership,
			RewardGranted: reward,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersSettled.WithLabelValues(string(s.provider.Method()), string(result.Outcome)).Inc()
	logctx.FromCtx(ctx, s.log).Infow("payment settled",
		"order_no", notif.OrderNo, "transaction_id", notif.TransactionID, "outcome", result.Outcome)
	return result, nil
}

// MockPay settles an order as if the provider had confirmed it. Only
// available when the mock provider is active, i.e. never in production.
func (s *Service) MockPay(ctx context.Context, orderNo string) (*SettleResult, error) {
	if s.provider.Method() != types.PaymentMethodMock {
		return nil, fmt.Errorf("mock payment disabled")
	}
	o, err := s.GetOrder(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	return s.SettlePayment(ctx, &payment.Notification{
		OrderNo:       o.OrderNo,
		TransactionID: "MOCK-" + o.OrderNo,
		AmountCents:   o.AmountCents,
		Success:       true,
	})
}

// Refund marks a paid order refunded. The refund is a ledger operation only:
// any membership granted by the order is left for the operator to adjust,
// since partial consumption makes automatic clawback ambiguous.
func (s *Service) Refund(ctx context.Context, orderNo, operatorID, remark string) (*models.Order, error) {
	now := time.Now()
	var refunded *models.Order

	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		o, err := tx.Orders().ByOrderNo(ctx, orderNo, true)
		if errors.Is(err, store.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if !o.PaymentStatus.CanTransitionTo(types.OrderStatusRefunded) {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, orderNo, o.PaymentStatus)
		}

		extra := o.Extra.Data()
		if extra == nil {
			extra = &models.OrderExtra{}
		}
		extra.OperatorID = operatorID
		extra.Remark = remark

		o.PaymentStatus = types.OrderStatusRefunded
		o.RefundAt = &now
		o.Extra = datatypes.NewJSONType(extra)
		ok, err := tx.Orders().Transition(ctx, o, types.OrderStatusPaid)
		if err != nil {
			return fmt.Errorf("failed to refund order: %w", err)
		}
		if !ok {
			return ErrInvalidTransition
		}
		refunded = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("order refunded",
		"order_no", orderNo, "operator_id", operatorID)
	return refunded, nil
}

// ManualActivate grants a plan without payment, recording a zero-amount paid
// order so the grant shows up in the ledger. Referral rewards only follow
// real payments, so none is granted here.
func (s *Service) ManualActivate(ctx context.Context, userID, planID, operatorID, remark string) (*SettleResult, error) {
	plan, err := s.catalog.PurchasablePlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var result *SettleResult
	err = s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		user, err := tx.Users().Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if !user.IsActive() {
			return fmt.Errorf("user %s is not active", userID)
		}

		o := &models.Order{
			ID:            tool.GenerateUUIDV7(),
			OrderNo:       tool.GenerateOrderNo(now),
			UserID:        userID,
			PlanID:        plan.ID,
			PlanName:      plan.Name,
			AmountCents:   0,
			PaymentMethod: types.PaymentMethodManual,
			PaymentStatus: types.OrderStatusPaid,
			PaidAt:        &now,
			Extra: datatypes.NewJSONType(&models.OrderExtra{
				PlanSnapshot: plan,
				OperatorID:   operatorID,
				Remark:       remark,
			}),
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return fmt.Errorf("failed to create manual order: %w", err)
		}

		membership, err := s.entitlement.GrantMembershipTx(ctx, tx, userID, plan, &o.ID, now)
		if err != nil {
			return err
		}
		result = &SettleResult{Order: o, Outcome: OutcomeApplied, Membership: membership}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersSettled.WithLabelValues(string(types.PaymentMethodManual), string(OutcomeApplied)).Inc()
	logctx.FromCtx(ctx, s.log).Infow("membership manually activated",
		"user_id", userID, "plan_id", planID, "operator_id", operatorID)
	return result, nil
}

// ExpirePendingOrders closes pending orders past their expire_at.
func (s *Service) ExpirePendingOrders(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.st.Orders().CloseExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to close expired orders: %w", err)
	}
	if n > 0 {
		s.log.Infow("closed expired orders", "count", n)
	}
	return n, nil
}

func markFailed(o *models.Order, notif *payment.Notification) *models.Order {
	o.PaymentStatus = types.OrderStatusFailed
	if notif.TransactionID != "" {
		o.TransactionID = &notif.TransactionID
	}
	return o
}
