package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"acm-chatbot/backend/internal/knowledge"
	"acm-chatbot/backend/internal/tenant"
	"acm-chatbot/backend/internal/usage"
	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// defaultUsageWindow applies when the usage query has no since parameter.
const defaultUsageWindow = 30 * 24 * time.Hour

// AdminHandler serves operator endpoints for tenants, keys, knowledge and usage
type AdminHandler struct {
	directory *tenant.Directory
	ingester  *knowledge.Ingester
	usage     *usage.Accountant
	logger    *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(directory *tenant.Directory, ingester *knowledge.Ingester, accountant *usage.Accountant, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{directory: directory, ingester: ingester, usage: accountant, logger: logger}
}

// RegisterRoutes registers admin routes on an authenticated group
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/clients", h.ListClients)
	rg.POST("/clients", h.OnboardClient)
	rg.GET("/clients/:id", h.GetClient)
	rg.PATCH("/clients/:id", h.UpdateClient)

	rg.GET("/clients/:id/keys", h.ListKeys)
	rg.POST("/clients/:id/keys", h.IssueKey)
	rg.DELETE("/clients/:id/keys/:keyID", h.RevokeKey)

	rg.GET("/clients/:id/documents", h.ListDocuments)
	rg.POST("/clients/:id/documents", h.IngestDocument)
	rg.POST("/clients/:id/documents/reprocess", h.Reprocess)

	rg.GET("/clients/:id/usage", h.Usage)
}

// ListClients returns every client
func (h *AdminHandler) ListClients(c *gin.Context) {
	clients, err := h.directory.ListClients(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

// OnboardClient creates a client and its first API key. The secret is only
// returned here.
func (h *AdminHandler) OnboardClient(c *gin.Context) {
	var req tenant.OnboardRequest
	if !bind(c, &req) {
		return
	}

	out, err := h.directory.Onboard(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// GetClient returns one client
func (h *AdminHandler) GetClient(c *gin.Context) {
	client, err := h.directory.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// UpdateClient changes plan, status, prompt or greeting
func (h *AdminHandler) UpdateClient(c *gin.Context) {
	var req tenant.ClientUpdate
	if !bind(c, &req) {
		return
	}

	client, err := h.directory.UpdateClient(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// ListKeys returns the client's keys without secrets
func (h *AdminHandler) ListKeys(c *gin.Context) {
	keys, err := h.directory.ListKeys(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// IssueKey creates another key for the client
func (h *AdminHandler) IssueKey(c *gin.Context) {
	var req tenant.KeyRequest
	if !bind(c, &req) {
		return
	}

	issued, err := h.directory.IssueKey(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

// RevokeKey deactivates a key
func (h *AdminHandler) RevokeKey(c *gin.Context) {
	if err := h.directory.RevokeKey(c.Request.Context(), c.Param("id"), c.Param("keyID")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListDocuments returns the client's documents
func (h *AdminHandler) ListDocuments(c *gin.Context) {
	docs, err := h.ingester.ListDocuments(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// IngestDocument stores and indexes a document
func (h *AdminHandler) IngestDocument(c *gin.Context) {
	var req knowledge.DocumentInput
	if !bind(c, &req) {
		return
	}

	res, err := h.ingester.Ingest(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Reprocess indexes documents without chunks; clean=true rebuilds everything
func (h *AdminHandler) Reprocess(c *gin.Context) {
	clean, _ := strconv.ParseBool(c.DefaultQuery("clean", "false"))

	res, err := h.ingester.Reprocess(c.Request.Context(), c.Param("id"), clean)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Usage summarises the client's usage since an RFC 3339 timestamp
func (h *AdminHandler) Usage(c *gin.Context) {
	since := time.Now().Add(-defaultUsageWindow)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.Error(fmt.Errorf("since must be RFC 3339: %w", apperrors.ErrInvalidInput))
			return
		}
		since = parsed
	}

	clientID := c.Param("id")
	if _, err := h.directory.GetClient(c.Request.Context(), clientID); err != nil {
		c.Error(err)
		return
	}

	summary, err := h.usage.Summarize(c.Request.Context(), clientID, since)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.Error(fmt.Errorf("decode request: %w: %v", apperrors.ErrInvalidInput, err))
		return false
	}
	return true
}
