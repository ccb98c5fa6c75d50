package models

import (
	"time"

	"github.com/astocklabs/memberd/pkg/types"
)

// ReferralRecord 邀请记录，一行对应一对 (referrer_id, referred_user_id)。
// 两个奖励标记都是一次性的：false→true 之后不再复位。
type ReferralRecord struct {
	ID             string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	ReferrerID     string `gorm:"column:referrer_id;type:uuid;not null;uniqueIndex:unique_referrer_referred,priority:1" json:"referrer_id"`
	ReferredUserID string `gorm:"column:referred_user_id;type:uuid;not null;uniqueIndex:unique_referrer_referred,priority:2" json:"referred_user_id"`

	RegistrationRewardGiven bool `gorm:"column:registration_reward_given;not null;default:false" json:"registration_reward_given"`
	SubscriptionRewardGiven bool `gorm:"column:subscription_reward_given;not null;default:false" json:"subscription_reward_given"`
	// SubscriptionPlanType 发放充值奖励时的套餐档位
	SubscriptionPlanType *types.PlanTier `gorm:"column:subscription_plan_type;type:varchar(20)" json:"subscription_plan_type"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ReferralRecord) TableName() string { return "referral_records" }
