package models

import (
	"time"

	"github.com/astocklabs/memberd/pkg/types"
)

// User 用户表。注册/登录由上游服务负责，这里只维护会员与邀请相关字段。
type User struct {
	ID       string  `gorm:"column:id;primary_key;type:uuid" json:"id"`
	Phone    *string `gorm:"column:phone;type:varchar(20);uniqueIndex" json:"phone"`
	Email    *string `gorm:"column:email;type:varchar(100);uniqueIndex" json:"email"`
	Nickname string  `gorm:"column:nickname;type:varchar(50)" json:"nickname"`

	Status types.UserStatus `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`

	// MembershipLevel/MembershipExpire 冗余字段，便于快速查询。
	// 权威数据在 user_memberships 表。
	MembershipLevel  types.PlanTier `gorm:"column:membership_level;type:varchar(20);not null;default:'free'" json:"membership_level"`
	MembershipExpire *time.Time     `gorm:"column:membership_expire;default:null" json:"membership_expire"`

	TotalAnalysisCount int64 `gorm:"column:total_analysis_count;not null;default:0" json:"total_analysis_count"`

	// ReferrerID 邀请人用户ID，注册时设置，最多设置一次，不可指向自己。
	ReferrerID *string `gorm:"column:referrer_id;type:uuid;index" json:"referrer_id"`
	// ReferralBonusBalance 邀请奖励的免费使用次数余额，永不为负。
	ReferralBonusBalance int `gorm:"column:referral_bonus_balance;not null;default:0" json:"referral_bonus_balance"`
	// ShareCode 分享码，用于生成邀请链接，一旦分配不再变更。
	ShareCode *string `gorm:"column:share_code;type:varchar(32);uniqueIndex" json:"share_code"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) IsActive() bool {
	return u != nil && u.Status == types.UserStatusActive
}

// IsMembershipValid reports whether the redundant level fields mark the user
// as a paying member at the given instant. A nil expire time with a non-free
// level counts as valid (open-ended grants).
func (u *User) IsMembershipValid(now time.Time) bool {
	if u == nil || u.MembershipLevel == types.PlanTierFree || u.MembershipLevel == "" {
		return false
	}
	if u.MembershipExpire == nil {
		return true
	}
	return u.MembershipExpire.After(now)
}
