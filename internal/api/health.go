package api

import (
	"net/http"
	"time"

	"acm-chatbot/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports service health
type HealthHandler struct {
	checker   *health.Checker
	version   string
	env       string
	startedAt time.Time
}

// NewHealthHandler creates a health handler
func NewHealthHandler(checker *health.Checker, version, env string) *HealthHandler {
	return &HealthHandler{checker: checker, version: version, env: env, startedAt: time.Now()}
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status     string                       `json:"status"`
	Timestamp  time.Time                    `json:"timestamp"`
	Version    string                       `json:"version"`
	Uptime     string                       `json:"uptime"`
	Components map[string]*health.Component `json:"components,omitempty"`
}

// Health returns 503 while a critical component is down
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	}
	code := http.StatusOK
	if h.checker != nil {
		resp.Components = h.checker.GetStatus()
		if !h.checker.IsSystemHealthy() {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, resp)
}

// Root describes the service
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "acm-chatbot",
		"version":     h.version,
		"environment": h.env,
		"endpoints": gin.H{
			"chat":             "POST /chat",
			"template_message": "GET /template_message",
			"health":           "GET /health",
			"metrics":          "GET /metrics",
		},
	})
}
