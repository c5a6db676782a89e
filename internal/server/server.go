package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/internal/billing"
	billingdomain "github.com/flowforge/flowforge/internal/billing/domain"
	"github.com/flowforge/flowforge/internal/catalog"
	"github.com/flowforge/flowforge/internal/config"
	"github.com/flowforge/flowforge/internal/conversation"
	conversationdomain "github.com/flowforge/flowforge/internal/conversation/domain"
	"github.com/flowforge/flowforge/internal/credit"
	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	"github.com/flowforge/flowforge/internal/generation"
	generationdomain "github.com/flowforge/flowforge/internal/generation/domain"
	"github.com/flowforge/flowforge/internal/observability"
	obsmiddleware "github.com/flowforge/flowforge/internal/observability/logger"
	obsmetrics "github.com/flowforge/flowforge/internal/observability/metrics"
	obstracing "github.com/flowforge/flowforge/internal/observability/tracing"
	"github.com/flowforge/flowforge/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	credit.Module,
	billing.Module,
	catalog.Module,
	conversation.Module,
	generation.Module,
	ratelimit.Module,
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	creditSvc       creditdomain.Service
	billingSvc      billingdomain.Service
	conversationSvc conversationdomain.Service
	generationSvc   generationdomain.Service
	limiter         *ratelimit.GenerateLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	CreditSvc       creditdomain.Service
	BillingSvc      billingdomain.Service
	ConversationSvc conversationdomain.Service
	GenerationSvc   generationdomain.Service
	Limiter         *ratelimit.GenerateLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		creditSvc:       p.CreditSvc,
		billingSvc:      p.BillingSvc,
		conversationSvc: p.ConversationSvc,
		generationSvc:   p.GenerationSvc,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/generate", s.UserRequired(), s.GenerateRateLimit(), s.GenerateWorkflow)

	api.GET("/credits", s.UserRequired(), s.GetCredits)
	api.GET("/credits/history", s.UserRequired(), s.ListCreditHistory)

	api.GET("/conversations", s.UserRequired(), s.ListConversations)
	api.GET("/conversations/:id", s.UserRequired(), s.GetConversation)
	api.DELETE("/conversations/:id", s.UserRequired(), s.DeleteConversation)

	api.POST("/billing/webhooks/:provider", s.HandleBillingWebhook)
}
