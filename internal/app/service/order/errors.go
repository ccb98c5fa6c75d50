package order

import "errors"

var (
	// ErrOrderNotFound means no order matches the given order number.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAmountMismatch means the notified amount differs from the order
	// amount. The order is left untouched for manual review.
	ErrAmountMismatch = errors.New("payment amount mismatch")
	// ErrInvalidTransition means the order's current status does not allow
	// the requested operation.
	ErrInvalidTransition = errors.New("order status does not allow this operation")
)
