// Package server exposes the escrow platform over HTTP. Routes stay thin:
// they parse, call a service and translate errors; every rule about money
// or contract state lives behind the service interfaces.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rentora/escrow/internal/clock"
	"github.com/rentora/escrow/internal/config"
	contractdomain "github.com/rentora/escrow/internal/contract/domain"
	escrowdomain "github.com/rentora/escrow/internal/escrow/domain"
	"github.com/rentora/escrow/internal/observability"
	obslogger "github.com/rentora/escrow/internal/observability/logger"
	obsmetrics "github.com/rentora/escrow/internal/observability/metrics"
	obstracing "github.com/rentora/escrow/internal/observability/tracing"
	paymentdomain "github.com/rentora/escrow/internal/payment/domain"
	penaltydomain "github.com/rentora/escrow/internal/penalty/domain"
	settlementdomain "github.com/rentora/escrow/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with the observability middleware chain
// plus the health and metrics endpoints.
func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Log:   log.Named("http"),
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(obsmetrics.HTTP()))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	escrow     escrowdomain.Service
	engineSvc  penaltydomain.Engine
	settlement settlementdomain.Service
	payments   paymentdomain.Repository
	contracts  contractdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Escrow     escrowdomain.Service
	Engine     penaltydomain.Engine
	Settlement settlementdomain.Service
	Payments   paymentdomain.Repository
	Contracts  contractdomain.Repository
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		clock:      p.Clock,
		escrow:     p.Escrow,
		engineSvc:  p.Engine,
		settlement: p.Settlement,
		payments:   p.Payments,
		contracts:  p.Contracts,
	}
}

// Engine returns the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterRoutes wires the API surface onto the engine.
func RegisterRoutes(s *Server) {
	api := s.engine.Group("/api")

	// -------- Escrow ledger --------
	api.POST("/payments/deposit", s.RecordDepositPayment)
	api.GET("/contracts/:id/escrow", s.GetEscrowAccount)
	api.GET("/contracts/:id/escrow/transactions", s.ListEscrowTransactions)

	// -------- Penalties --------
	api.GET("/contracts/:id/penalties", s.ListContractPenalties)
	api.GET("/tenants/:id/penalties/total", s.GetTenantPenaltyTotal)
	api.POST("/invoices/:id/apply-overdue-penalty", s.ApplyOverduePenalty)
	api.POST("/bookings/:id/cancel-late-deposit", s.CancelLateDepositBooking)
	api.POST("/penalties/:id/status", s.ResolvePenaltyStatus)

	// -------- Settlement --------
	api.POST("/contracts/:id/terminate", s.TerminateContract)
}

func parseID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		abortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}
