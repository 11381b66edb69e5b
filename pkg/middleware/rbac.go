package middleware

import (
	"strings"

	"acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/jwt"
	"acm-chatbot/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding validated operator claims.
const ClaimsKey = "claims"

// RequireRole returns a middleware that requires the operator to have a specific role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication required"))
			c.Abort()
			return
		}

		if !claims.HasRole(role) {
			c.Error(errors.NewForbiddenError("INSUFFICIENT_ROLE", "Your role does not allow this operation"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuthMiddleware checks that the request has a valid bearer token and adds claims to the context
func JWTAuthMiddleware(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			log.Warn("Invalid JWT token", "error", err.Error(), "path", c.Request.URL.Path)
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by JWTAuthMiddleware.
func ClaimsFrom(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok
}
