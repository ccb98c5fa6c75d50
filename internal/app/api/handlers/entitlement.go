package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	entsvc "github.com/astocklabs/memberd/internal/app/service/entitlement"
	"github.com/astocklabs/memberd/pkg/response"
	"github.com/astocklabs/memberd/pkg/types"
)

// @Summary      Effective limits
// @Description  Returns the user's current membership level and limits
// @Tags         Entitlement
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /api/v1/entitlement/limits [get]
func ApiEntitlementLimits(ent *entsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}

		limits, err := ent.EffectiveLimits(c.Request.Context(), userID, time.Now())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(limits))
	}
}

type consumeQuotaReq struct {
	UserID string          `json:"user_id" binding:"required"`
	Kind   types.UsageKind `json:"kind" binding:"required"`
}

// @Summary      Consume quota
// @Description  Consumes one unit of today's quota for the given usage kind
// @Tags         Entitlement
// @Accept       json
// @Produce      json
// @Param        request body consumeQuotaReq true "Quota consumption request"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/entitlement/consume [post]
func ApiQuotaConsume(ent *entsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req consumeQuotaReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := ent.CheckAndConsumeDailyQuota(c.Request.Context(), req.UserID, time.Now(), req.Kind)
		if err != nil {
			if errors.Is(err, entsvc.ErrQuotaExceeded) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeQuotaExceeded, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterEntitlementRoutes(r gin.IRouter, ent *entsvc.Service) {
	r.GET("/entitlement/limits", ApiEntitlementLimits(ent))
	r.POST("/entitlement/consume", ApiQuotaConsume(ent))
}
