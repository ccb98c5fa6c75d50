package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	refsvc "github.com/astocklabs/memberd/internal/app/service/referral"
	"github.com/astocklabs/memberd/pkg/response"
)

// @Summary      Share code
// @Description  Returns the user's referral share code, minting one on first use
// @Tags         Referral
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /api/v1/referral/share-code [get]
func ApiShareCode(ref *refsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}

		code, err := ref.GetOrCreateShareCode(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(gin.H{"share_code": code}))
	}
}

type bindReferralReq struct {
	UserID    string `json:"user_id" binding:"required"`
	ShareCode string `json:"share_code" binding:"required"`
}

// @Summary      Bind referrer
// @Description  Binds the share code's owner as the user's referrer and grants the registration reward
// @Tags         Referral
// @Accept       json
// @Produce      json
// @Param        request body bindReferralReq true "Referral binding request"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/referral/bind [post]
func ApiBindReferral(ref *refsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bindReferralReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		record, err := ref.RecordReferral(c.Request.Context(), req.UserID, req.ShareCode)
		if err != nil {
			if errors.Is(err, refsvc.ErrSelfReferral) ||
				errors.Is(err, refsvc.ErrDuplicateReferral) ||
				errors.Is(err, refsvc.ErrUnknownReferrer) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(record))
	}
}

func RegisterReferralRoutes(r gin.IRouter, ref *refsvc.Service) {
	r.GET("/referral/share-code", ApiShareCode(ref))
	r.POST("/referral/bind", ApiBindReferral(ref))
}
