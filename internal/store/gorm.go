package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/pkg/tool"
	"github.com/astocklabs/memberd/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of a gorm connection. The DB must be
// opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormStore{db: tx})
	})
}

func (s *GormStore) Users() UserRepo             { return gormUsers{s.db} }
func (s *GormStore) Plans() PlanRepo             { return gormPlans{s.db} }
func (s *GormStore) Orders() OrderRepo           { return gormOrders{s.db} }
func (s *GormStore) Memberships() MembershipRepo { return gormMemberships{s.db} }
func (s *GormStore) Usage() UsageRepo            { return gormUsage{s.db} }
func (s *GormStore) Referrals() ReferralRepo     { return gormReferrals{s.db} }
func (s *GormStore) Configs() ConfigRepo         { return gormConfigs{s.db} }

// wrapErr normalizes gorm/driver errors into the store sentinels.
func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

var forUpdateClause = clause.Locking{Strength: "UPDATE"}

type gormUsers struct{ db *gorm.DB }

func (r gormUsers) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &u, nil
}

func (r gormUsers) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Clauses(forUpdateClause).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &u, nil
}

func (r gormUsers) GetByShareCode(ctx context.Context, code string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("share_code = ?", code).First(&u).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &u, nil
}

func (r gormUsers) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = tool.GenerateUUIDV7()
	}
	return wrapErr(r.db.WithContext(ctx).Create(u).Error)
}

func (r gormUsers) Save(ctx context.Context, u *models.User) error {
	return wrapErr(r.db.WithContext(ctx).Save(u).Error)
}

func (r gormUsers) AdjustBonus(ctx context.Context, id string, delta int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND referral_bonus_balance + ? >= 0", id, delta).
		UpdateColumn("referral_bonus_balance", gorm.Expr("referral_bonus_balance + ?", delta))
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

type gormPlans struct{ db *gorm.DB }

func (r gormPlans) Get(ctx context.Context, id string) (*models.MembershipPlan, error) {
	var p models.MembershipPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (r gormPlans) ListActive(ctx context.Context) ([]*models.MembershipPlan, error) {
	var plans []*models.MembershipPlan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order asc").
		Find(&plans).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return plans, nil
}

func (r gormPlans) Create(ctx context.Context, p *models.MembershipPlan) error {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	return wrapErr(r.db.WithContext(ctx).Create(p).Error)
}

type gormOrders struct{ db *gorm.DB }

func (r gormOrders) Create(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = tool.GenerateUUIDV7()
	}
	return wrapErr(r.db.WithContext(ctx).Create(o).Error)
}

func (r gormOrders) ByOrderNo(ctx context.Context, orderNo string, forUpdate bool) (*models.Order, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(forUpdateClause)
	}
	var o models.Order
	if err := q.Where("order_no = ?", orderNo).First(&o).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &o, nil
}

func (r gormOrders) ByTransactionID(ctx context.Context, txID string) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", txID).First(&o).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &o, nil
}

func (r gormOrders) ListByUser(ctx context.Context, userID string, status types.OrderStatus, limit int) ([]*models.Order, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("payment_status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var orders []*models.Order
	if err := q.Order("created_at desc").Find(&orders).Error; err != nil {
		return nil, wrapErr(err)
	}
	return orders, nil
}

func (r gormOrders) CountPaidByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("user_id = ? AND payment_status = ? AND payment_method <> ?",
			userID, types.OrderStatusPaid, types.PaymentMethodManual).
		Count(&count).Error
	if err != nil {
		return 0, wrapErr(err)
	}
	return count, nil
}

func (r gormOrders) Transition(ctx context.Context, o *models.Order, from types.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", o.ID, from).
		Updates(map[string]any{
			"payment_status": o.PaymentStatus,
			"payment_method": o.PaymentMethod,
			"transaction_id": o.TransactionID,
			"paid_at":        o.PaidAt,
			"refund_at":      o.RefundAt,
			"extra":          o.Extra,
		})
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r gormOrders) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("payment_status = ? AND expire_at IS NOT NULL AND expire_at <= ?", types.OrderStatusPending, now).
		UpdateColumn("payment_status", types.OrderStatusClosed)
	if res.Error != nil {
		return 0, wrapErr(res.Error)
	}
	return res.RowsAffected, nil
}

type gormMemberships struct{ db *gorm.DB }

func (r gormMemberships) BestActive(ctx context.Context, userID string, now time.Time, forUpdate bool) (*models.UserMembership, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(forUpdateClause)
	}
	var m models.UserMembership
	err := q.Where("user_id = ? AND status = ? AND expire_at > ?", userID, types.MembershipStatusActive, now).
		Order("expire_at desc").
		First(&m).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &m, nil
}

func (r gormMemberships) Create(ctx context.Context, m *models.UserMembership) error {
	if m.ID == "" {
		m.ID = tool.GenerateUUIDV7()
	}
	return wrapErr(r.db.WithContext(ctx).Create(m).Error)
}

func (r gormMemberships) Save(ctx context.Context, m *models.UserMembership) error {
	return wrapErr(r.db.WithContext(ctx).Save(m).Error)
}

func (r gormMemberships) StaleActive(ctx context.Context, now time.Time) ([]*models.UserMembership, error) {
	var rows []*models.UserMembership
	err := r.db.WithContext(ctx).
		Where("status = ? AND expire_at <= ?", types.MembershipStatusActive, now).
		Find(&rows).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return rows, nil
}

type gormUsage struct{ db *gorm.DB }

func (r gormUsage) Get(ctx context.Context, userID string, day time.Time) (*models.DailyUsage, error) {
	var u models.DailyUsage
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND usage_date = ?", userID, models.DayOf(day)).
		First(&u).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &u, nil
}

// IncrementWithLimit relies on the caller running inside InTx: the row lock
// taken here must live until the surrounding transaction commits.
func (r gormUsage) IncrementWithLimit(ctx context.Context, userID string, day time.Time, kind types.UsageKind, limit int) (bool, int, error) {
	day = models.DayOf(day)

	seed := models.DailyUsage{ID: tool.GenerateUUIDV7(), UserID: userID, UsageDate: day}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "usage_date"}},
			DoNothing: true,
		}).
		Create(&seed).Error
	if err != nil {
		return false, 0, wrapErr(err)
	}

	var row models.DailyUsage
	err = r.db.WithContext(ctx).Clauses(forUpdateClause).
		Where("user_id = ? AND usage_date = ?", userID, day).
		First(&row).Error
	if err != nil {
		return false, 0, wrapErr(err)
	}

	count := row.Count(kind)
	if limit != types.UnlimitedDailyLimit && count >= limit {
		return false, count, nil
	}

	row.Increment(kind)
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return false, count, wrapErr(err)
	}
	return true, row.Count(kind), nil
}

type gormReferrals struct{ db *gorm.DB }

func (r gormReferrals) Create(ctx context.Context, rec *models.ReferralRecord) error {
	if rec.ID == "" {
		rec.ID = tool.GenerateUUIDV7()
	}
	return wrapErr(r.db.WithContext(ctx).Create(rec).Error)
}

func (r gormReferrals) ByPair(ctx context.Context, referrerID, referredUserID string, forUpdate bool) (*models.ReferralRecord, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(forUpdateClause)
	}
	var rec models.ReferralRecord
	err := q.Where("referrer_id = ? AND referred_user_id = ?", referrerID, referredUserID).First(&rec).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &rec, nil
}

func (r gormReferrals) ByReferred(ctx context.Context, referredUserID string, forUpdate bool) (*models.ReferralRecord, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(forUpdateClause)
	}
	var rec models.ReferralRecord
	err := q.Where("referred_user_id = ?", referredUserID).First(&rec).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &rec, nil
}

func (r gormReferrals) Save(ctx context.Context, rec *models.ReferralRecord) error {
	return wrapErr(r.db.WithContext(ctx).Save(rec).Error)
}

type gormConfigs struct{ db *gorm.DB }

func (r gormConfigs) GetInt(ctx context.Context, key string, def int) (int, error) {
	var c models.SystemConfig
	err := r.db.WithContext(ctx).Where("config_key = ?", key).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return def, wrapErr(err)
	}
	return c.GetIntValue(def), nil
}
