package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gebeyahq/gebeya/internal/catalog"
	"github.com/gebeyahq/gebeya/internal/config"
	"github.com/gebeyahq/gebeya/internal/observability"
	obsmiddleware "github.com/gebeyahq/gebeya/internal/observability/logger"
	obsmetrics "github.com/gebeyahq/gebeya/internal/observability/metrics"
	"github.com/gebeyahq/gebeya/internal/payment"
	paymentdomain "github.com/gebeyahq/gebeya/internal/payment/domain"
	paymentservice "github.com/gebeyahq/gebeya/internal/payment/service"
	"github.com/gebeyahq/gebeya/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	catalog.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	webhookSvc paymentdomain.WebhookIngestor
	limiter    rateLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	WebhookSvc paymentdomain.WebhookIngestor
	Limiter    *ratelimit.FixedWindow `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		paymentSvc: p.PaymentSvc,
		webhookSvc: p.WebhookSvc,
		obsMetrics: p.ObsMetrics,
	}
	if p.Limiter != nil {
		svc.limiter = p.Limiter
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/payments/initiate", s.RateLimitByIP(), s.HandleInitiatePayment)
	api.POST("/orders/:id/reconcile", s.RateLimitByIP(), s.HandleReconcileOrder)
	api.POST("/orders/:id/refund", s.RateLimitByIP(), s.HandleRefundOrder)

	// Provider callbacks bypass the IP limiter.
	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}
