package models

import (
	"time"

	"github.com/astocklabs/memberd/pkg/types"
)

// UserMembership 用户会员关系表。一次授予对应一个权益窗口。
// 限额在授予时从套餐快照，目录后续调整不影响已授予的权益。
type UserMembership struct {
	ID      string  `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID  string  `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	PlanID  string  `gorm:"column:plan_id;type:uuid;not null" json:"plan_id"`
	OrderID *string `gorm:"column:order_id;type:uuid" json:"order_id"`

	StartAt  time.Time `gorm:"column:start_at;not null" json:"start_at"`
	ExpireAt time.Time `gorm:"column:expire_at;not null;index" json:"expire_at"`

	Status types.MembershipStatus `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`

	// 授予时的套餐限额快照
	DailyAnalysisLimit int `gorm:"column:daily_analysis_limit;not null" json:"daily_analysis_limit"`
	WatchlistLimit     int `gorm:"column:watchlist_limit;not null" json:"watchlist_limit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserMembership) TableName() string { return "user_memberships" }

func (m *UserMembership) IsValid(now time.Time) bool {
	return m != nil && m.Status == types.MembershipStatusActive && m.ExpireAt.After(now)
}

func (m *UserMembership) DaysRemaining(now time.Time) int {
	if m == nil || !m.ExpireAt.After(now) {
		return 0
	}
	return int(m.ExpireAt.Sub(now).Hours() / 24)
}
