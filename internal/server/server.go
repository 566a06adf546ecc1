package server

import (
	"context"
	"net/http"
	"time"

	"github.com/formgate/formgate/internal/clock"
	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/currency"
	"github.com/formgate/formgate/internal/feed"
	feeddomain "github.com/formgate/formgate/internal/feed/domain"
	"github.com/formgate/formgate/internal/fulfillment"
	"github.com/formgate/formgate/internal/ledger"
	"github.com/formgate/formgate/internal/observability"
	obsmiddleware "github.com/formgate/formgate/internal/observability/logger"
	obsmetrics "github.com/formgate/formgate/internal/observability/metrics"
	obstracing "github.com/formgate/formgate/internal/observability/tracing"
	"github.com/formgate/formgate/internal/order"
	"github.com/formgate/formgate/internal/payment"
	paymentdomain "github.com/formgate/formgate/internal/payment/domain"
	"github.com/formgate/formgate/internal/providers/email"
	"github.com/formgate/formgate/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	currency.Module,
	order.Module,
	ledger.Module,
	feed.Module,
	fulfillment.Module,
	email.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
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
	paymentSvc paymentdomain.Service
	feedSvc    feeddomain.Service
	limiter    *ratelimit.CallbackLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	PaymentSvc paymentdomain.Service
	FeedSvc    feeddomain.Service
	Limiter    *ratelimit.CallbackLimiter
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		paymentSvc: p.PaymentSvc,
		feedSvc:    p.FeedSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerPaymentRoutes()
	svc.registerRelayRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/payments")

	payments.POST("/webhook", s.callbackRateLimit("webhook"), s.HandlePaymentWebhook)
	payments.GET("/return", s.HandlePaymentReturn)
	payments.POST("/return", s.HandlePaymentReturn)
	payments.POST("/sessions", s.HandleCreateSession)
}

func (s *Server) registerRelayRoutes() {
	relay := s.engine.Group("/api/relay")
	relay.Use(s.callbackRateLimit("relay"), s.requireRelaySignature())

	relay.POST("/get-payment-details", s.HandleRelayGetPaymentDetails)
	relay.POST("/callback", s.HandleRelayCallback)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")

	admin.POST("/feeds", s.HandleSaveFeed)
}
