package api

import (
	stderrors "errors"
	"net/http"

	"acm-chatbot/backend/internal/account"
	"acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"
	"acm-chatbot/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// AccountHandler serves self-service registration and login for client operators
type AccountHandler struct {
	accounts *account.Service
	logger   *logger.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts *account.Service, logger *logger.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// RegisterRoutes registers the account routes. authenticated guards /me.
func (h *AccountHandler) RegisterRoutes(rg *gin.RouterGroup, authenticated ...gin.HandlerFunc) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.GET("/me", append(authenticated, h.Me)...)
}

// Register creates an operator account with its client and first API key
func (h *AccountHandler) Register(c *gin.Context) {
	var req account.RegisterRequest
	if !bind(c, &req) {
		return
	}

	out, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Login exchanges operator credentials for a token
func (h *AccountHandler) Login(c *gin.Context) {
	var req account.LoginRequest
	if !bind(c, &req) {
		return
	}

	out, err := h.accounts.Login(c.Request.Context(), req)
	if stderrors.Is(err, account.ErrInvalidLogin) {
		h.logger.Warn("Account login failed", "ip", c.ClientIP())
		c.Error(errors.NewUnauthorizedError(errors.CodeInvalidCredential, "Invalid email or password"))
		return
	}
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Me returns the authenticated operator with its client
func (h *AccountHandler) Me(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication required"))
		return
	}

	profile, err := h.accounts.Me(c.Request.Context(), claims.Subject)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
