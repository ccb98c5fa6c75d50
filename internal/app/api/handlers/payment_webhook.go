package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	nlog "github.com/astocklabs/memberd/internal/app/service/notification_log"
	ordersvc "github.com/astocklabs/memberd/internal/app/service/order"
	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/internal/platform/payment"
	"github.com/astocklabs/memberd/pkg/logctx"
	"github.com/astocklabs/memberd/pkg/response"
	"github.com/astocklabs/memberd/pkg/types"
)

// @Summary      Payment webhook
// @Description  Receives payment notifications from the active provider, verifies them and settles the order
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /api/v1/payment/notify [post]
func ApiPaymentWebhook(ord *ordersvc.Service, provider payment.Provider, logs *nlog.Service, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logctx.FromGin(c, base)

		// Keep the raw body for the archive; verification reads it again.
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))

		entry := &models.PaymentNotificationLog{
			Method:  string(provider.Method()),
			TraceID: c.GetString("trace_id"),
			Data:    datatypes.JSON(raw),
			Status:  models.PaymentNotificationLogStatusReceived,
		}

		notif, err := provider.ParseNotification(c.Request.Context(), c.Request)
		if err != nil {
			entry.Status = models.PaymentNotificationLogStatusHandleFailed
			logs.Save(c.Request.Context(), entry)
			log.Errorw("payment notification rejected", "error", err.Error())
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		entry.OrderNo = notif.OrderNo
		entry.TransactionID = notif.TransactionID

		res, err := ord.SettlePayment(c.Request.Context(), notif)
		if err != nil {
			entry.Status = models.PaymentNotificationLogStatusHandleFailed
			logs.Save(c.Request.Context(), entry)
			log.Errorw("payment settlement failed", "order_no", notif.OrderNo, "error", err.Error())
			if errors.Is(err, ordersvc.ErrOrderNotFound) || errors.Is(err, ordersvc.ErrAmountMismatch) {
				c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			// 5xx tells the provider to retry later.
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}

		entry.Status = models.PaymentNotificationLogStatusHandled
		result := datatypes.JSON([]byte(`{"outcome":"` + string(res.Outcome) + `"}`))
		entry.Result = &result
		logs.Save(c.Request.Context(), entry)
		c.JSON(http.StatusOK, response.OKT(gin.H{"outcome": res.Outcome}))
	}
}

// @Summary      Mock payment
// @Description  Settles an order as paid without a real provider; dev environments only
// @Tags         Payment
// @Produce      json
// @Param        order_no query string true "Order number"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/payment/mock-pay [post]
func ApiMockPay(ord *ordersvc.Service, provider payment.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if provider.Method() != types.PaymentMethodMock {
			c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeBadRequest, "mock payment disabled"))
			return
		}
		orderNo := c.Query("order_no")
		if orderNo == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing order_no"))
			return
		}

		res, err := ord.MockPay(c.Request.Context(), orderNo)
		if err != nil {
			if errors.Is(err, ordersvc.ErrOrderNotFound) || errors.Is(err, ordersvc.ErrInvalidTransition) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, ord *ordersvc.Service, provider payment.Provider, logs *nlog.Service, log *zap.SugaredLogger) {
	r.POST("/payment/notify", ApiPaymentWebhook(ord, provider, logs, log))
	r.POST("/payment/mock-pay", ApiMockPay(ord, provider))
}
