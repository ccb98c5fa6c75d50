package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/pkg/tool"
	"github.com/astocklabs/memberd/pkg/types"
)

// MemoryStore is an in-process Store used by the dev/mock profile and by
// tests. A single mutex serializes transactions, which gives the same
// isolation the gorm store gets from row locks. Writes inside InTx are
// rolled back by restoring a snapshot when fn fails.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
	// inTx marks a transactional view; repo calls then skip locking because
	// the root store already holds the mutex.
	inTx bool
}

type memData struct {
	users       map[string]models.User
	plans       map[string]models.MembershipPlan
	orders      map[string]models.Order
	memberships map[string]models.UserMembership
	usage       map[string]models.DailyUsage
	referrals   map[string]models.ReferralRecord
	configs     map[string]models.SystemConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		users:       map[string]models.User{},
		plans:       map[string]models.MembershipPlan{},
		orders:      map[string]models.Order{},
		memberships: map[string]models.UserMembership{},
		usage:       map[string]models.DailyUsage{},
		referrals:   map[string]models.ReferralRecord{},
		configs:     map[string]models.SystemConfig{},
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		users:       make(map[string]models.User, len(d.users)),
		plans:       make(map[string]models.MembershipPlan, len(d.plans)),
		orders:      make(map[string]models.Order, len(d.orders)),
		memberships: make(map[string]models.UserMembership, len(d.memberships)),
		usage:       make(map[string]models.DailyUsage, len(d.usage)),
		referrals:   make(map[string]models.ReferralRecord, len(d.referrals)),
		configs:     make(map[string]models.SystemConfig, len(d.configs)),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.plans {
		c.plans[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.memberships {
		c.memberships[k] = v
	}
	for k, v := range d.usage {
		c.usage[k] = v
	}
	for k, v := range d.referrals {
		c.referrals[k] = v
	}
	for k, v := range d.configs {
		c.configs[k] = v
	}
	return c
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &MemoryStore{data: s.data, inTx: true}
	if err := fn(ctx, tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

// locked serializes a single repo call issued outside a transaction.
func (s *MemoryStore) locked(fn func()) {
	if s.inTx {
		fn()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *MemoryStore) Users() UserRepo             { return memUsers{s} }
func (s *MemoryStore) Plans() PlanRepo             { return memPlans{s} }
func (s *MemoryStore) Orders() OrderRepo           { return memOrders{s} }
func (s *MemoryStore) Memberships() MembershipRepo { return memMemberships{s} }
func (s *MemoryStore) Usage() UsageRepo            { return memUsage{s} }
func (s *MemoryStore) Referrals() ReferralRepo     { return memReferrals{s} }
func (s *MemoryStore) Configs() ConfigRepo         { return memConfigs{s} }

// SetConfigInt seeds a system_configs row (test/dev helper).
func (s *MemoryStore) SetConfigInt(key string, value int) {
	s.locked(func() {
		s.data.configs[key] = models.SystemConfig{ConfigKey: key, ConfigValue: strconv.Itoa(value)}
	})
}

func usageKey(userID string, day time.Time) string {
	return userID + "|" + models.DayOf(day).Format("2006-01-02")
}

func pairKey(referrerID, referredUserID string) string {
	return referrerID + "|" + referredUserID
}

type memUsers struct{ s *MemoryStore }

func (r memUsers) Get(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	r.s.locked(func() {
		if u, ok := r.s.data.users[id]; ok {
			cp := u
			out = &cp
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memUsers) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	return r.Get(ctx, id)
}

func (r memUsers) GetByShareCode(ctx context.Context, code string) (*models.User, error) {
	var out *models.User
	r.s.locked(func() {
		for _, u := range r.s.data.users {
			if u.ShareCode != nil && *u.ShareCode == code {
				cp := u
				out = &cp
				break
			}
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memUsers) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = tool.GenerateUUIDV7()
	}
	var err error
	r.s.locked(func() {
		if _, ok := r.s.data.users[u.ID]; ok {
			err = ErrConflict
			return
		}
		r.s.data.users[u.ID] = *u
	})
	return err
}

func (r memUsers) Save(ctx context.Context, u *models.User) error {
	r.s.locked(func() {
		r.s.data.users[u.ID] = *u
	})
	return nil
}

func (r memUsers) AdjustBonus(ctx context.Context, id string, delta int) (bool, error) {
	var ok bool
	var err error
	r.s.locked(func() {
		u, found := r.s.data.users[id]
		if !found {
			err = ErrNotFound
			return
		}
		if u.ReferralBonusBalance+delta < 0 {
			return
		}
		u.ReferralBonusBalance += delta
		r.s.data.users[id] = u
		ok = true
	})
	return ok, err
}

type memPlans struct{ s *MemoryStore }

func (r memPlans) Get(ctx context.Context, id string) (*models.MembershipPlan, error) {
	var out *models.MembershipPlan
	r.s.locked(func() {
		if p, ok := r.s.data.plans[id]; ok {
			cp := p
			out = &cp
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memPlans) ListActive(ctx context.Context) ([]*models.MembershipPlan, error) {
	var out []*models.MembershipPlan
	r.s.locked(func() {
		for _, p := range r.s.data.plans {
			if p.IsActive {
				cp := p
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r memPlans) Create(ctx context.Context, p *models.MembershipPlan) error {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	r.s.locked(func() {
		r.s.data.plans[p.ID] = *p
	})
	return nil
}

type memOrders struct{ s *MemoryStore }

func (r memOrders) Create(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = tool.GenerateUUIDV7()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	var err error
	r.s.locked(func() {
		for _, existing := range r.s.data.orders {
			if existing.OrderNo == o.OrderNo {
				err = ErrConflict
				return
			}
		}
		r.s.data.orders[o.ID] = *o
	})
	return err
}

func (r memOrders) ByOrderNo(ctx context.Context, orderNo string, forUpdate bool) (*models.Order, error) {
	var out *models.Order
	r.s.locked(func() {
		for _, o := range r.s.data.orders {
			if o.OrderNo == orderNo {
				cp := o
				out = &cp
				break
			}
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memOrders) ByTransactionID(ctx context.Context, txID string) (*models.Order, error) {
	var out *models.Order
	r.s.locked(func() {
		for _, o := range r.s.data.orders {
			if o.TransactionID != nil && *o.TransactionID == txID {
				cp := o
				out = &cp
				break
			}
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memOrders) ListByUser(ctx context.Context, userID string, status types.OrderStatus, limit int) ([]*models.Order, error) {
	var out []*models.Order
	r.s.locked(func() {
		for _, o := range r.s.data.orders {
			if o.UserID != userID {
				continue
			}
			if status != "" && o.PaymentStatus != status {
				continue
			}
			cp := o
			out = append(out, &cp)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memOrders) CountPaidByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	r.s.locked(func() {
		for _, o := range r.s.data.orders {
			if o.UserID == userID && o.PaymentStatus == types.OrderStatusPaid &&
				o.PaymentMethod != types.PaymentMethodManual {
				count++
			}
		}
	})
	return count, nil
}

func (r memOrders) Transition(ctx context.Context, o *models.Order, from types.OrderStatus) (bool, error) {
	var ok bool
	r.s.locked(func() {
		existing, found := r.s.data.orders[o.ID]
		if !found || existing.PaymentStatus != from {
			return
		}
		existing.PaymentStatus = o.PaymentStatus
		existing.PaymentMethod = o.PaymentMethod
		existing.TransactionID = o.TransactionID
		existing.PaidAt = o.PaidAt
		existing.RefundAt = o.RefundAt
		existing.Extra = o.Extra
		r.s.data.orders[o.ID] = existing
		ok = true
	})
	return ok, nil
}

func (r memOrders) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	r.s.locked(func() {
		for id, o := range r.s.data.orders {
			if o.PaymentStatus == types.OrderStatusPending && o.ExpireAt != nil && !o.ExpireAt.After(now) {
				o.PaymentStatus = types.OrderStatusClosed
				r.s.data.orders[id] = o
				count++
			}
		}
	})
	return count, nil
}

type memMemberships struct{ s *MemoryStore }

func (r memMemberships) BestActive(ctx context.Context, userID string, now time.Time, forUpdate bool) (*models.UserMembership, error) {
	var out *models.UserMembership
	r.s.locked(func() {
		for _, m := range r.s.data.memberships {
			if m.UserID != userID || m.Status != types.MembershipStatusActive || !m.ExpireAt.After(now) {
				continue
			}
			if out == nil || m.ExpireAt.After(out.ExpireAt) {
				cp := m
				out = &cp
			}
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memMemberships) Create(ctx context.Context, m *models.UserMembership) error {
	if m.ID == "" {
		m.ID = tool.GenerateUUIDV7()
	}
	r.s.locked(func() {
		r.s.data.memberships[m.ID] = *m
	})
	return nil
}

func (r memMemberships) Save(ctx context.Context, m *models.UserMembership) error {
	r.s.locked(func() {
		r.s.data.memberships[m.ID] = *m
	})
	return nil
}

func (r memMemberships) StaleActive(ctx context.Context, now time.Time) ([]*models.UserMembership, error) {
	var out []*models.UserMembership
	r.s.locked(func() {
		for _, m := range r.s.data.memberships {
			if m.Status == types.MembershipStatusActive && !m.ExpireAt.After(now) {
				cp := m
				out = append(out, &cp)
			}
		}
	})
	return out, nil
}

type memUsage struct{ s *MemoryStore }

func (r memUsage) Get(ctx context.Context, userID string, day time.Time) (*models.DailyUsage, error) {
	var out *models.DailyUsage
	r.s.locked(func() {
		if u, ok := r.s.data.usage[usageKey(userID, day)]; ok {
			cp := u
			out = &cp
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memUsage) IncrementWithLimit(ctx context.Context, userID string, day time.Time, kind types.UsageKind, limit int) (bool, int, error) {
	var applied bool
	var count int
	r.s.locked(func() {
		key := usageKey(userID, day)
		row, ok := r.s.data.usage[key]
		if !ok {
			row = models.DailyUsage{ID: tool.GenerateUUIDV7(), UserID: userID, UsageDate: models.DayOf(day)}
		}
		count = row.Count(kind)
		if limit != types.UnlimitedDailyLimit && count >= limit {
			return
		}
		row.Increment(kind)
		r.s.data.usage[key] = row
		applied = true
		count = row.Count(kind)
	})
	return applied, count, nil
}

type memReferrals struct{ s *MemoryStore }

func (r memReferrals) Create(ctx context.Context, rec *models.ReferralRecord) error {
	if rec.ID == "" {
		rec.ID = tool.GenerateUUIDV7()
	}
	var err error
	r.s.locked(func() {
		key := pairKey(rec.ReferrerID, rec.ReferredUserID)
		if _, ok := r.s.data.referrals[key]; ok {
			err = ErrConflict
			return
		}
		r.s.data.referrals[key] = *rec
	})
	return err
}

func (r memReferrals) ByPair(ctx context.Context, referrerID, referredUserID string, forUpdate bool) (*models.ReferralRecord, error) {
	var out *models.ReferralRecord
	r.s.locked(func() {
		if rec, ok := r.s.data.referrals[pairKey(referrerID, referredUserID)]; ok {
			cp := rec
			out = &cp
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memReferrals) ByReferred(ctx context.Context, referredUserID string, forUpdate bool) (*models.ReferralRecord, error) {
	var out *models.ReferralRecord
	r.s.locked(func() {
		for _, rec := range r.s.data.referrals {
			if rec.ReferredUserID == referredUserID {
				cp := rec
				out = &cp
				break
			}
		}
	})
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r memReferrals) Save(ctx context.Context, rec *models.ReferralRecord) error {
	r.s.locked(func() {
		r.s.data.referrals[pairKey(rec.ReferrerID, rec.ReferredUserID)] = *rec
	})
	return nil
}

type memConfigs struct{ s *MemoryStore }

func (r memConfigs) GetInt(ctx context.Context, key string, def int) (int, error) {
	var out int = def
	r.s.locked(func() {
		if c, ok := r.s.data.configs[key]; ok {
			out = c.GetIntValue(def)
		}
	})
	return out, nil
}
