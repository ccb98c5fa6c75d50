package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "received"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "handled"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "handle_failed"
)

// PaymentNotificationLog 支付回调原始报文留档，排查重复/丢单用。
type PaymentNotificationLog struct {
	ID            string                       `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Method        string                       `gorm:"column:method;type:varchar(20);not null" json:"method"`
	OrderNo       string                       `gorm:"column:order_no;type:varchar(50);index" json:"order_no"`
	TransactionID string                       `gorm:"column:transaction_id;type:varchar(100)" json:"transaction_id"`
	TraceID       string                       `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Data          datatypes.JSON               `gorm:"column:data;type:jsonb" json:"data"`
	Result        *datatypes.JSON              `gorm:"column:result;type:jsonb" json:"result"`
	Status        PaymentNotificationLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }
