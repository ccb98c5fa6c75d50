package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/astocklabs/memberd/internal/app/api/handlers"
	mw "github.com/astocklabs/memberd/internal/app/api/middleware"
	"github.com/astocklabs/memberd/internal/app/service/catalog"
	"github.com/astocklabs/memberd/internal/app/service/entitlement"
	nlog "github.com/astocklabs/memberd/internal/app/service/notification_log"
	ordersvc "github.com/astocklabs/memberd/internal/app/service/order"
	"github.com/astocklabs/memberd/internal/app/service/referral"
	"github.com/astocklabs/memberd/internal/platform/payment"
	cfgpkg "github.com/astocklabs/memberd/pkg/config"
	metrics "github.com/astocklabs/memberd/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	cat *catalog.Service,
	ord *ordersvc.Service,
	ent *entitlement.Service,
	ref *referral.Service,
	provider payment.Provider,
	logs *nlog.Service,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)

	// User-facing APIs. Authentication happens at the gateway; handlers
	// trust the user_id it forwards.
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterPlanRoutes(apiV1, cat)
	handlers.RegisterOrderRoutes(apiV1, ord)
	handlers.RegisterEntitlementRoutes(apiV1, ent)
	handlers.RegisterReferralRoutes(apiV1, ref)
	handlers.RegisterPaymentRoutes(apiV1, ord, provider, logs, log)

	// Admin APIs
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), ord)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
