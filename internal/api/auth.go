package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"acm-chatbot/backend/internal/models"
	"acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/jwt"
	"acm-chatbot/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LoginRequest is the body of the operator login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the operator token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthHandler handles operator authentication
type AuthHandler struct {
	username     string
	passwordHash []byte
	jwtService   *jwt.Service
	logger       *logger.Logger
}

// NewAuthHandler creates a new auth handler for the single configured operator
func NewAuthHandler(username, passwordHash string, jwtService *jwt.Service, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		username:     username,
		passwordHash: []byte(passwordHash),
		jwtService:   jwtService,
		logger:       logger,
	}
}

// Login exchanges operator credentials for a token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError(errors.CodeInvalidInput, "Invalid request format"))
		return
	}

	if !h.verify(req.Username, req.Password) {
		h.logger.Warn("Operator login failed", "username", req.Username, "ip", c.ClientIP())
		c.Error(errors.NewUnauthorizedError(errors.CodeInvalidCredential, "Invalid username or password"))
		return
	}

	token, expires, err := h.jwtService.GenerateToken(h.username, jwt.RoleAdmin)
	if err != nil {
		h.logger.LogError(err, "Failed to sign operator token")
		c.Error(errors.NewInternalServerError(errors.CodeInternal, "An internal error occurred"))
		return
	}

	h.logger.Info("Operator logged in", "username", h.username)
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires})
}

// verify compares credentials. A missing password hash disables login.
func (h *AuthHandler) verify(username, password string) bool {
	if len(h.passwordHash) == 0 {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
	passOK := models.CheckPasswordHash(password, string(h.passwordHash))
	return userOK && passOK
}

// HashPassword returns the bcrypt hash to configure as ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	return models.HashPassword(password)
}
