package payment

import (
	"context"
	"net/http"

	"github.com/astocklabs/memberd/pkg/types"
)

// PrepayResult is what the checkout page needs to show a payment QR code.
type PrepayResult struct {
	QRCodeURL string `json:"qrcode_url"`
	PrepayID  string `json:"prepay_id,omitempty"`
}

// Notification is a verified payment notification. Signature verification
// happens inside ParseNotification; everything past it is trusted.
type Notification struct {
	OrderNo       string `json:"order_no"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Success       bool   `json:"success"`
}

// Provider creates prepay orders and parses provider callbacks.
type Provider interface {
	Method() types.PaymentMethod
	CreateNativeOrder(ctx context.Context, orderNo, description string, amountCents int64) (*PrepayResult, error)
	ParseNotification(ctx context.Context, req *http.Request) (*Notification, error)
}
