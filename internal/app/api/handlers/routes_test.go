package handlers

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func routeSet(r *gin.Engine) map[string]bool {
	out := map[string]bool{}
	for _, rt := range r.Routes() {
		out[rt.Method+" "+rt.Path] = true
	}
	return out
}

func TestRegisterUserFacingRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/v1")
	RegisterPlanRoutes(g, nil)
	RegisterOrderRoutes(g, nil)
	RegisterEntitlementRoutes(g, nil)
	RegisterReferralRoutes(g, nil)
	RegisterPaymentRoutes(g, nil, nil, nil, nil)

	routes := routeSet(r)
	for _, want := range []string{
		"GET /api/v1/plans",
		"POST /api/v1/orders",
		"GET /api/v1/orders",
		"GET /api/v1/orders/:order_no",
		"GET /api/v1/entitlement/limits",
		"POST /api/v1/entitlement/consume",
		"GET /api/v1/referral/share-code",
		"POST /api/v1/referral/bind",
		"POST /api/v1/payment/notify",
		"POST /api/v1/payment/mock-pay",
	} {
		require.True(t, routes[want], "missing route %s", want)
	}
}

func TestRegisterAdminRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterAdminRoutes(r.Group("/api/v1/admin"), nil)

	routes := routeSet(r)
	for _, want := range []string{
		"POST /api/v1/admin/membership/activate",
		"POST /api/v1/admin/orders/:order_no/refund",
		"GET /api/v1/admin/orders",
	} {
		require.True(t, routes[want], "missing route %s", want)
	}
}
