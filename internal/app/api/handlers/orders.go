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

type createOrderReq struct {
	UserID string `json:"user_id" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
}

// @Summary      Create order
// @Description  Opens a pending order for a plan and returns the payment QR code
// @Tags         Orders
// @Accept       json
// @Produce      json
// @Param        request body createOrderReq true "Order creation request"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/orders [post]
func ApiOrderCreate(ord *ordersvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		o, err := ord.CreateOrder(c.Request.Context(), req.UserID, req.PlanID)
		if err != nil {
			if errors.Is(err, catalog.ErrInvalidPlan) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(o))
	}
}

// @Summary      Order status
// @Description  Returns one order for payment status polling
// @Tags         Orders
// @Produce      json
// @Param        order_no path string true "Order number"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/orders/{order_no} [get]
func ApiOrderGet(ord *ordersvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}

		o, err := ord.GetOrder(c.Request.Context(), c.Param("order_no"))
		if errors.Is(err, ordersvc.ErrOrderNotFound) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		// Another user's order looks the same as a missing one.
		if o.UserID != userID {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, "order not found"))
			return
		}
		c.JSON(http.StatusOK, response.OKT(o))
	}
}

// @Summary      List orders
// @Description  Returns the user's most recent orders, optionally filtered by status
// @Tags         Orders
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /api/v1/orders [get]
func ApiOrderList(ord *ordersvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		limit := 20
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

func RegisterOrderRoutes(r gin.IRouter, ord *ordersvc.Service) {
	r.POST("/orders", ApiOrderCreate(ord))
	r.GET("/orders", ApiOrderList(ord))
	r.GET("/orders/:order_no", ApiOrderGet(ord))
}
