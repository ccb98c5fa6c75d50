package store

import (
	"context"
	"errors"
	"time"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/pkg/types"
)

var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict means a unique constraint rejected the write.
	ErrConflict = errors.New("store: conflict")
	// ErrUnavailable wraps transient backend failures; callers may retry.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the ledger behind the engines: one narrow repository per
// aggregate plus an atomic unit of work. Engines never see gorm types.
type Store interface {
	// InTx runs fn inside one atomic unit of work. The Store passed to fn
	// must be used for every access inside the transaction; either all
	// writes commit or none do.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	Users() UserRepo
	Plans() PlanRepo
	Orders() OrderRepo
	Memberships() MembershipRepo
	Usage() UsageRepo
	Referrals() ReferralRepo
	Configs() ConfigRepo
}

type UserRepo interface {
	Get(ctx context.Context, id string) (*models.User, error)
	// GetForUpdate locks the row for the remainder of the transaction.
	GetForUpdate(ctx context.Context, id string) (*models.User, error)
	GetByShareCode(ctx context.Context, code string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	Save(ctx context.Context, u *models.User) error
	// AdjustBonus atomically applies delta to referral_bonus_balance,
	// refusing any change that would take the balance below zero.
	AdjustBonus(ctx context.Context, id string, delta int) (bool, error)
}

type PlanRepo interface {
	Get(ctx context.Context, id string) (*models.MembershipPlan, error)
	ListActive(ctx context.Context) ([]*models.MembershipPlan, error)
	Create(ctx context.Context, p *models.MembershipPlan) error
}

type OrderRepo interface {
	Create(ctx context.Context, o *models.Order) error
	ByOrderNo(ctx context.Context, orderNo string, forUpdate bool) (*models.Order, error)
	ByTransactionID(ctx context.Context, txID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, status types.OrderStatus, limit int) ([]*models.Order, error)
	// CountPaidByUser counts the user's paid orders, excluding manual
	// activations: those are grants, not payments.
	CountPaidByUser(ctx context.Context, userID string) (int64, error)
	// Transition saves the order only if its stored payment_status still
	// equals from; returns false when another writer got there first.
	Transition(ctx context.Context, o *models.Order, from types.OrderStatus) (bool, error)
	// CloseExpired moves pending orders past their expire_at to closed.
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

type MembershipRepo interface {
	// BestActive returns the active membership with expire_at > now and the
	// greatest expire_at, or ErrNotFound.
	BestActive(ctx context.Context, userID string, now time.Time, forUpdate bool) (*models.UserMembership, error)
	Create(ctx context.Context, m *models.UserMembership) error
	Save(ctx context.Context, m *models.UserMembership) error
	// StaleActive lists active rows whose expire_at has passed.
	StaleActive(ctx context.Context, now time.Time) ([]*models.UserMembership, error)
}

type UsageRepo interface {
	// Get returns the day's counters, or ErrNotFound when the row does not
	// exist yet.
	Get(ctx context.Context, userID string, day time.Time) (*models.DailyUsage, error)
	// IncrementWithLimit creates the day row if absent and increments the
	// counter for kind, unless limit >= 0 and the counter already reached
	// it. Returns the post-increment count and whether the increment was
	// applied. The check and the increment are one atomic step.
	IncrementWithLimit(ctx context.Context, userID string, day time.Time, kind types.UsageKind, limit int) (applied bool, count int, err error)
}

type ReferralRepo interface {
	// Create inserts the pair row; ErrConflict when the pair already exists.
	Create(ctx context.Context, r *models.ReferralRecord) error
	ByPair(ctx context.Context, referrerID, referredUserID string, forUpdate bool) (*models.ReferralRecord, error)
	ByReferred(ctx context.Context, referredUserID string, forUpdate bool) (*models.ReferralRecord, error)
	Save(ctx context.Context, r *models.ReferralRecord) error
}

type ConfigRepo interface {
	// GetInt reads an integer config value, returning def when the key is
	// absent or unparsable.
	GetInt(ctx context.Context, key string, def int) (int, error)
}
