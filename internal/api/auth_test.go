package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/jwt"
	"acm-chatbot/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authEngine(t *testing.T, hash string) (*gin.Engine, *jwt.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := jwt.NewService("auth-test-secret", time.Hour, "acm-chatbot")
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.POST("/login", NewAuthHandler("operator", hash, svc, logger.Nop()).Login)
	return r, svc
}

func login(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLoginIssuesAdminToken(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	r, svc := authEngine(t, hash)

	rec := login(r, `{"username":"operator","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.ExpiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(out.Token)
	require.NoError(t, err)
	assert.True(t, claims.HasRole(jwt.RoleAdmin))
	assert.Equal(t, "operator", claims.Subject)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	r, _ := authEngine(t, hash)

	assert.Equal(t, http.StatusUnauthorized, login(r, `{"username":"operator","password":"wrong"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(r, `{"username":"root","password":"s3cret"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(r, `{"username":"operator"}`).Code)
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	r, _ := authEngine(t, "")

	rec := login(r, `{"username":"operator","password":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = login(r, `{"username":"operator","password":"anything"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
