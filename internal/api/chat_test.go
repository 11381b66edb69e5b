package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"acm-chatbot/backend/internal/chat"
	"acm-chatbot/backend/internal/generation"
	"acm-chatbot/backend/internal/identity"
	"acm-chatbot/backend/internal/ratelimit"
	"acm-chatbot/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChat struct {
	reply    string
	greeting string
	err      error
	got      chat.Request
}

func (s *stubChat) Chat(_ context.Context, req chat.Request) (*chat.Response, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &chat.Response{Reply: s.reply, SessionID: "internal"}, nil
}

func (s *stubChat) Greeting(_ context.Context, credential string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.greeting, nil
}

func chatEngine(svc ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler())
	h := NewChatHandler(svc)
	h.RegisterRoutes(r, r.Group("/api/v1"))
	return r
}

func postChat(r *gin.Engine, path, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestChatReturnsReply(t *testing.T) {
	svc := &stubChat{reply: "Hi there"}
	r := chatEngine(svc)

	rec := postChat(r, "/chat", `{"message":"hello","session_id":"abc"}`, "acm_secret")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"Hi there"}`, rec.Body.String())
	assert.Equal(t, chat.Request{Credential: "acm_secret", Message: "hello", SessionID: "abc"}, svc.got)
}

func TestChatErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid credential", identity.ErrInvalidCredential, http.StatusUnauthorized, errors.CodeInvalidCredential},
		{"rate limited", &ratelimit.ExceededError{Key: "k", Limit: 2, RetryAfter: 42 * time.Second}, http.StatusTooManyRequests, errors.CodeRateLimitExceeded},
		{"generation down", generation.ErrGenerationUnavailable, http.StatusServiceUnavailable, errors.CodeUpstreamUnavailable},
		{"empty message", chat.ErrEmptyMessage, http.StatusBadRequest, errors.CodeInvalidInput},
		{"persistence", fmt.Errorf("save: %w", errors.ErrPersistence), http.StatusInternalServerError, errors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chatEngine(&stubChat{err: tt.err})

			rec := postChat(r, "/api/v1/chat", `{"message":"hello","session_id":"abc"}`, "k")

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

func TestChatSetsRetryAfter(t *testing.T) {
	r := chatEngine(&stubChat{err: &ratelimit.ExceededError{Key: "k", Limit: 2, RetryAfter: 1500 * time.Millisecond}})

	rec := postChat(r, "/chat", `{"message":"hello","session_id":"abc"}`, "k")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestChatRejectsMalformedBody(t *testing.T) {
	svc := &stubChat{reply: "unused"}
	r := chatEngine(svc)

	rec := postChat(r, "/chat", `{"message":`, "k")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.got.Credential)
}

func TestTemplateMessage(t *testing.T) {
	r := chatEngine(&stubChat{greeting: "Welcome!"})

	req := httptest.NewRequest(http.MethodGet, "/template_message", nil)
	req.Header.Set(APIKeyHeader, "k")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"template":"Welcome!"}`, rec.Body.String())
}

func TestTemplateMessageRequiresCredential(t *testing.T) {
	r := chatEngine(&stubChat{err: identity.ErrInvalidCredential})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/template_message", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
