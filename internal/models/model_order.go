package models

import (
	"time"

	"github.com/astocklabs/memberd/pkg/types"

	"gorm.io/datatypes"
)

// OrderExtra 订单扩展信息，含下单时的套餐快照。
type OrderExtra struct {
	// PlanSnapshot 下单时的套餐快照，结算时按快照授予权益。
	PlanSnapshot *MembershipPlan `json:"plan_snapshot"`
	// OperatorID 管理员手动开通时的操作员ID
	OperatorID string `json:"operator_id,omitempty"`
	Remark     string `json:"remark,omitempty"`
}

// Order 会员购买订单。
type Order struct {
	ID      string `gorm:"column:id;primary_key;type:uuid;index:idx_order_user_id_id,priority:2,sort:desc" json:"id"`
	OrderNo string `gorm:"column:order_no;type:varchar(50);not null;uniqueIndex" json:"order_no"`
	UserID  string `gorm:"column:user_id;type:uuid;not null;index:idx_order_user_id_id,priority:1" json:"user_id"`
	PlanID  string `gorm:"column:plan_id;type:uuid;not null" json:"plan_id"`
	// PlanName 套餐名称（冗余）
	PlanName string `gorm:"column:plan_name;type:varchar(50);not null" json:"plan_name"`

	// AmountCents 应付金额，单位：分。服务端按目录价计算，不信任客户端。
	AmountCents int64 `gorm:"column:amount_cents;type:bigint;not null" json:"amount_cents"`

	PaymentMethod types.PaymentMethod `gorm:"column:payment_method;type:varchar(20);not null;default:'wechat'" json:"payment_method"`
	PaymentStatus types.OrderStatus   `gorm:"column:payment_status;type:varchar(20);not null;default:'pending'" json:"payment_status"`

	// TransactionID 第三方交易号，首次结算时写入，之后不变。
	TransactionID *string `gorm:"column:transaction_id;type:varchar(100);uniqueIndex" json:"transaction_id"`
	PrepayID      *string `gorm:"column:prepay_id;type:varchar(100)" json:"prepay_id"`
	// QRCodeURL Native 支付二维码链接
	QRCodeURL *string `gorm:"column:qrcode_url;type:varchar(500)" json:"qrcode_url"`

	PaidAt *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`
	// ExpireAt 待支付订单的关单时间
	ExpireAt *time.Time `gorm:"column:expire_at;default:null" json:"expire_at"`
	RefundAt *time.Time `gorm:"column:refund_at;default:null" json:"refund_at"`

	Extra datatypes.JSONType[*OrderExtra] `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// CanPay reports whether a settlement may still be applied to this order.
func (o *Order) CanPay(now time.Time) bool {
	if o == nil || o.PaymentStatus != types.OrderStatusPending {
		return false
	}
	// The boundary matches the sweep: at exactly expire_at the order closes.
	if o.ExpireAt != nil && !now.Before(*o.ExpireAt) {
		return false
	}
	return true
}

func (o *Order) GetPlanSnapshot() *MembershipPlan {
	if o == nil || o.Extra.Data() == nil {
		return nil
	}
	return o.Extra.Data().PlanSnapshot
}
