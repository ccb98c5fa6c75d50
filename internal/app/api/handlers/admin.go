package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/astocklabs/memberd/internal/app/service/catalog"
	ordersvc "github.com/astocklabs/memberd/internal/app/service/order"
	"github.com/astocklabs/memberd/pkg/response"
	"github.com/astocklabs/memberd/pkg/types"
)

type manualActivateReq struct {
	UserID     string `json:"user_id" binding:"required"`
	PlanID     string `json:"plan_id" binding:"required"`
	OperatorID string `json:"operator_id" binding:"required"`
	Remark     string `json:"remark"`
}

// @Summary      Manual activation
// @Description  Grants a plan to a user without payment, recorded as a zero-amount order
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body manualActivateReq true "Manual activation request"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/admin/membership/activate [post]
func ApiAdminManualActivate(ord *ordersvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req manualActivateReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := ord.ManualActivate(c.Request.Context(), req.UserID, req.PlanID, req.OperatorID, req.Remark)
		if err != nil {
			if errors.Is(err, catalog.ErrInvalidPlan) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type refundReq struct {
	OperatorID string `json:"operator_id" binding:"required"`
	Remark     string `json:"remark"`
}

// @Summary      Refund order
// @Description  Marks a paid order refunded
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        order_no path string true "Order number"
// @Param        request body refundReq true "Refund request"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/admin/orders/{order_no}/refund [post]
func ApiAdminRefund(ord *ordersvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		o, err := ord.Refund(c.Request.Context(), c.Param("order_no"), req.OperatorID, req.Remark)
		if err != nil {
			if errors.Is(err, ordersvc.ErrOrderNotFound) || errors.Is(err, ordersvc.ErrInvalidTransition) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(o))
	}
}

// @Summary      List user orders
// @Description  Returns a user's orders for support and dispute handling
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /api/v1/admin/orders [get]
func ApiAdminOrderList(ord *ordersvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			} else {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid limit"))
				return
			}
		}

		orders, err := ord.ListUserOrders(c.Request.Context(), userID, types.OrderStatus(c.Query("status")), limit)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(orders))
	}
}

func RegisterAdminRoutes(r gin.IRouter, ord *ordersvc.Service) {
	r.POST("/membership/activate", ApiAdminManualActivate(ord))
	r.POST("/orders/:order_no/refund", ApiAdminRefund(ord))
	r.GET("/orders", ApiAdminOrderList(ord))
}
