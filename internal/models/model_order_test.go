package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/astocklabs/memberd/pkg/types"
)

func TestOrderCanPay(t *testing.T) {
	expire := time.Now()
	tests := []struct {
		name   string
		status types.OrderStatus
		now    time.Time
		want   bool
	}{
		{"pending before expiry", types.OrderStatusPending, expire.Add(-time.Second), true},
		// At exactly expire_at the sweep closes the order, so settlement
		// must refuse it too.
		{"pending at expiry", types.OrderStatusPending, expire, false},
		{"pending after expiry", types.OrderStatusPending, expire.Add(time.Second), false},
		{"already paid", types.OrderStatusPaid, expire.Add(-time.Second), false},
		{"closed", types.OrderStatusClosed, expire.Add(-time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{PaymentStatus: tt.status, ExpireAt: &expire}
			require.Equal(t, tt.want, o.CanPay(tt.now))
		})
	}

	t.Run("no expiry set", func(t *testing.T) {
		o := &Order{PaymentStatus: types.OrderStatusPending}
		require.True(t, o.CanPay(time.Now()))
	})
}
