package router

import (
	"fmt"

	"acm-chatbot/backend/internal/api"
	"acm-chatbot/backend/pkg/config"
	"acm-chatbot/backend/pkg/di"
	"acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/jwt"
	"acm-chatbot/backend/pkg/logger"
	"acm-chatbot/backend/pkg/middleware"
	"acm-chatbot/backend/pkg/observability"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config

	floodGuard *middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) (*Router, error) {
	cfg := container.Config

	// Configure Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	// Request ID first so every later log line carries it
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	httpMetrics, err := observability.HTTPMetrics(container.Observability.Meter("http"))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	engine.Use(httpMetrics)

	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	engine.Use(middleware.MaxBodySize(cfg.Security.MaxBodySize))

	opts := middleware.DefaultRateLimiterOptions()
	opts.Limit = rate.Limit(cfg.Security.IPRateLimit)
	opts.Burst = cfg.Security.IPRateBurst
	floodGuard := middleware.NewRateLimiter(container.Logger, opts)
	engine.Use(floodGuard.Middleware())

	return &Router{
		Engine:     engine,
		Container:  container,
		Logger:     container.Logger,
		Config:     cfg,
		floodGuard: floodGuard,
	}, nil
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() error {
	if err := r.AddOpenAPIValidation(api.OpenAPISpec); err != nil {
		return err
	}
	r.setupHealthRoutes()

	chatHandler := api.NewChatHandler(r.Container.Chat)
	authHandler := api.NewAuthHandler(r.Config.Admin.Username, r.Config.Admin.PasswordHash, r.Container.JWTService, r.Logger)
	adminHandler := api.NewAdminHandler(r.Container.Directory, r.Container.Ingester, r.Container.Accountant, r.Logger)
	accountHandler := api.NewAccountHandler(r.Container.Accounts, r.Logger)

	v1 := r.Engine.Group("/api/v1")

	// Tenant endpoints are authenticated by API key inside the pipeline
	chatHandler.RegisterRoutes(r.Engine, v1)

	// Client operators manage their own client through a client-role token
	operator := []gin.HandlerFunc{
		middleware.JWTAuthMiddleware(r.Container.JWTService, r.Logger),
		middleware.RequireRole(jwt.RoleClient),
	}
	accountHandler.RegisterRoutes(r.Engine.Group("/auth"), operator...)
	accountHandler.RegisterRoutes(v1.Group("/auth"), operator...)

	v1.POST("/admin/login", authHandler.Login)

	admin := v1.Group("/admin")
	admin.Use(middleware.JWTAuthMiddleware(r.Container.JWTService, r.Logger))
	admin.Use(middleware.RequireRole(jwt.RoleAdmin))
	adminHandler.RegisterRoutes(admin)

	return nil
}

// Close stops background work started by the router.
func (r *Router) Close() {
	r.floodGuard.Close()
}
