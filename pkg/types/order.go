package types

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusRefunded OrderStatus = "refunded"
	OrderStatusClosed   OrderStatus = "closed"
)

// CanTransitionTo enforces the order state machine:
// pending→paid, pending→closed, paid→refunded. Everything else is invalid.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusPaid || next == OrderStatusClosed || next == OrderStatusFailed
	case OrderStatusPaid:
		return next == OrderStatusRefunded
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodWechat PaymentMethod = "wechat"
	PaymentMethodMock   PaymentMethod = "mock"
	PaymentMethodManual PaymentMethod = "manual"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
	UserStatusDeleted  UserStatus = "deleted"
)
