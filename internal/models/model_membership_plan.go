package models

import (
	"time"

	"github.com/astocklabs/memberd/pkg/types"

	"gorm.io/datatypes"
)

// MembershipPlan 会员套餐表。目录由管理端维护，本服务只读。
type MembershipPlan struct {
	ID          string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	Name        string `gorm:"column:name;type:varchar(50);not null" json:"name"`
	Description string `gorm:"column:description;type:varchar(255)" json:"description"`

	// PriceCents 当前价格，单位：分。微信支付金额以分计。
	PriceCents         int64  `gorm:"column:price_cents;type:bigint;not null" json:"price_cents"`
	OriginalPriceCents *int64 `gorm:"column:original_price_cents;type:bigint" json:"original_price_cents"`

	DurationDays int `gorm:"column:duration_days;not null" json:"duration_days"`

	// DailyAnalysisLimit 每日分析次数限制，-1 表示不限。
	DailyAnalysisLimit int `gorm:"column:daily_analysis_limit;not null;default:-1" json:"daily_analysis_limit"`
	WatchlistLimit     int `gorm:"column:watchlist_limit;not null;default:10" json:"watchlist_limit"`

	Features datatypes.JSONType[[]string] `gorm:"column:features;type:jsonb;default:'[]'" json:"features"`

	SortOrder     int  `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	IsActive      bool `gorm:"column:is_active;not null;default:true" json:"is_active"`
	IsRecommended bool `gorm:"column:is_recommended;not null;default:false" json:"is_recommended"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MembershipPlan) TableName() string { return "membership_plans" }

func (p *MembershipPlan) HasUnlimitedAnalysis() bool {
	return p != nil && p.DailyAnalysisLimit == types.UnlimitedDailyLimit
}

// Tier buckets the plan by duration for referral reward lookup.
func (p *MembershipPlan) Tier() types.PlanTier {
	if p == nil {
		return types.PlanTierFree
	}
	return types.TierForDuration(p.DurationDays)
}
