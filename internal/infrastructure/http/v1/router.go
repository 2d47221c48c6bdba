// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"pestctl/internal/app"
	"pestctl/internal/infrastructure/http/v1/dto"
	"pestctl/internal/infrastructure/http/v1/handlers"
	"pestctl/internal/infrastructure/http/v1/middleware"
	"pestctl/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Engine exposes the domain services.
	Engine *app.Engine

	// Health is pinged by /health/ready. Usually the *postgres.Pool.
	Health handlers.ReadinessChecker

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Idempotency enables replay of writes carrying X-Idempotency-Key when set.
	Idempotency middleware.IdempotencyStore

	// Production turns on HTTPS redirects and release mode.
	Production bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	dto.RegisterValidators()

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.Secure(cfg.Production))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Health)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator)) // 1. Validate JWT
	v1.Use(middleware.UserContext())          // 2. Resolve the caller for the domain layer
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerMovementRoutes(v1, handlers.NewMovementHandler(base, cfg.Engine.Movements))
	registerApprovalRoutes(v1, handlers.NewApprovalHandler(base, cfg.Engine.Approvals))
	registerStockRoutes(v1, handlers.NewStockHandler(base, cfg.Engine.Batches, cfg.Engine.Ledger))
	registerItemRoutes(v1, handlers.NewItemHandler(base, cfg.Engine.Catalog))

	return router
}
