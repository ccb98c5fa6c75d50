package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/astocklabs/memberd/pkg/types"
)

// MockProvider is the dev/test payment backend: the "QR code" is an internal
// confirmation URL and notifications are plain JSON bodies.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Method() types.PaymentMethod { return types.PaymentMethodMock }

func (p *MockProvider) CreateNativeOrder(ctx context.Context, orderNo, description string, amountCents int64) (*PrepayResult, error) {
	return &PrepayResult{
		QRCodeURL: fmt.Sprintf("/api/v1/payment/mock-pay?order_no=%s&amount=%d", orderNo, amountCents),
	}, nil
}

func (p *MockProvider) ParseNotification(ctx context.Context, req *http.Request) (*Notification, error) {
	var n Notification
	if err := json.NewDecoder(req.Body).Decode(&n); err != nil {
		return nil, fmt.Errorf("failed to decode mock notification: %w", err)
	}
	n.Success = true
	return &n, nil
}
