package router

import (
	"os"

	"acm-chatbot/backend/internal/api"

	"github.com/gin-gonic/gin"
)

// setupHealthRoutes registers health, service info and metrics endpoints
func (r *Router) setupHealthRoutes() {
	handler := api.NewHealthHandler(r.Container.Health, os.Getenv("APP_VERSION"), r.Config.Server.Env)

	// Register both health endpoint paths for compatibility
	r.Engine.GET("/health", handler.Health)
	r.Engine.GET("/api/v1/health", handler.Health)
	r.Engine.GET("/", handler.Root)

	r.Engine.GET("/metrics", gin.WrapH(r.Container.Observability.Handler()))
}
