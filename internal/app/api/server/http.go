package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/epigram-app/entitlement-service/docs"
	"github.com/epigram-app/entitlement-service/internal/app/api/handlers"
	mw "github.com/epigram-app/entitlement-service/internal/app/api/middleware"
	"github.com/epigram-app/entitlement-service/internal/app/service/entitlement"
	"github.com/epigram-app/entitlement-service/internal/app/service/eventlog"
	"github.com/epigram-app/entitlement-service/internal/app/service/mailer"
	"github.com/epigram-app/entitlement-service/internal/app/service/stats"
	subsvc "github.com/epigram-app/entitlement-service/internal/app/service/subscription"
	wh "github.com/epigram-app/entitlement-service/internal/app/service/webhookhandler"
	"github.com/epigram-app/entitlement-service/internal/identity"
	cfgpkg "github.com/epigram-app/entitlement-service/pkg/config"
	metrics "github.com/epigram-app/entitlement-service/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeParams struct {
	fx.In

	Engine      *gin.Engine
	Log         *zap.SugaredLogger
	Cfg         *cfgpkg.Config
	Verifier    *identity.Verifier
	Entitlement entitlement.Manager
	Sub         subsvc.Coordinator
	Webhook     *wh.WebhookHandler
	Events      *eventlog.Service
	Stats       *stats.Service
	Mailer      mailer.Sender
}

func registerRoutes(p routeParams) {
	r, log, cfg := p.Engine, p.Log, p.Cfg

	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			MetricsList: metrics.DomainMetrics,
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		prom.SetListenAddress(cfg.MetricsAddr)
		prom.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Unauthenticated API surface: plan catalog, contact form and the
	// billing webhook, which is verified by its Stripe signature instead of
	// a bearer token
	apiPub := r.Group("/api/v1")
	apiPub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterPlanRoutes(apiPub, cfg)
	handlers.RegisterContactRoutes(apiPub, p.Mailer)
	handlers.RegisterBillingWebhookRoutes(apiPub.Group("/billing"), p.Webhook)

	// Authenticated user surface
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.AuthMiddleware(p.Verifier))
	handlers.RegisterEntitlementRoutes(apiV1, p.Entitlement)
	handlers.RegisterSubscriptionRoutes(apiV1, p.Sub, cfg)

	// Admin surface
	admin := apiV1.Group("/admin")
	admin.Use(mw.RequireAdmin(cfg))
	handlers.RegisterAdminRoutes(admin, p.Events, p.Stats)
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
