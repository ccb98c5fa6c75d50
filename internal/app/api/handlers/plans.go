package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/astocklabs/memberd/internal/app/service/catalog"
	"github.com/astocklabs/memberd/pkg/response"
)

// @Summary      List membership plans
// @Description  Returns purchasable plans ordered for display
// @Tags         Plans
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /api/v1/plans [get]
func ApiPlanList(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := cat.ActivePlans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plans))
	}
}

func RegisterPlanRoutes(r gin.IRouter, cat *catalog.Service) {
	r.GET("/plans", ApiPlanList(cat))
}
