package api

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"acm-chatbot/backend/internal/chat"
	"acm-chatbot/backend/internal/ratelimit"
	apperrors "acm-chatbot/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// OpenAPISpec describes the public and admin HTTP API.
//
//go:embed openapi.yaml
var OpenAPISpec []byte

// APIKeyHeader carries the tenant credential.
const APIKeyHeader = "X-API-Key"

// ChatService is the pipeline behind the public endpoints.
type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
	Greeting(ctx context.Context, credential string) (string, error)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ChatResponse is the reply to POST /chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ChatHandler serves the tenant-facing endpoints
type ChatHandler struct {
	service ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(service ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// Chat answers one end-user message
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(fmt.Errorf("decode chat request: %w: %v", apperrors.ErrInvalidInput, err))
		return
	}

	resp, err := h.service.Chat(c.Request.Context(), chat.Request{
		Credential: c.GetHeader(APIKeyHeader),
		Message:    req.Message,
		SessionID:  req.SessionID,
	})
	if err != nil {
		setRetryAfter(c, err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{Reply: resp.Reply})
}

// TemplateMessage returns the tenant greeting
func (h *ChatHandler) TemplateMessage(c *gin.Context) {
	greeting, err := h.service.Greeting(c.Request.Context(), c.GetHeader(APIKeyHeader))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": greeting})
}

// RegisterRoutes registers the public routes on both the legacy root and /api/v1.
func (h *ChatHandler) RegisterRoutes(root gin.IRoutes, v1 gin.IRoutes) {
	root.POST("/chat", h.Chat)
	root.GET("/template_message", h.TemplateMessage)
	v1.POST("/chat", h.Chat)
	v1.GET("/template_message", h.TemplateMessage)
}

func setRetryAfter(c *gin.Context, err error) {
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		c.Header("Retry-After", strconv.Itoa(exceeded.RetryAfterSeconds()))
	}
}
