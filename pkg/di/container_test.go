package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"acm-chatbot/backend/internal/chat"
	"acm-chatbot/backend/internal/knowledge"
	"acm-chatbot/backend/internal/ollama"
	"acm-chatbot/backend/internal/retrieval"
	"acm-chatbot/backend/internal/testdb"
	"acm-chatbot/backend/pkg/config"
	"acm-chatbot/backend/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama answers embeddings with a fixed vector and generations with a fixed reply.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/embeddings":
			json.NewEncoder(w).Encode(ollama.EmbeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
		case "/api/generate":
			json.NewEncoder(w).Encode(ollama.GenerateResponse{Response: "We open at nine.", Done: true})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(ollamaURL string) *config.Config {
	cfg := config.Load()
	cfg.Services.OllamaBaseURL = ollamaURL
	cfg.Retrieval.VectorBackend = BackendMemory
	cfg.RateLimit.Backend = BackendMemory
	cfg.JWT.Secret = "container-test-secret"
	return cfg
}

func TestContainerServesChatEndToEnd(t *testing.T) {
	db := testdb.Open(t)
	tenant := testdb.SeedTenant(t, db, "Acme", 10)
	srv := fakeOllama(t)

	c, err := New(db, testConfig(srv.URL), logger.Nop(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.Ingester.Ingest(context.Background(), tenant.Client.ID, knowledge.DocumentInput{
		Title:   "Hours",
		Content: "The office opens at nine every weekday morning.",
	})
	require.NoError(t, err)

	resp, err := c.Chat.Chat(context.Background(), chat.Request{
		Credential: tenant.Secret,
		Message:    "When do you open?",
		SessionID:  "visitor-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "We open at nine.", resp.Reply)
	assert.Equal(t, retrieval.StatusOK, resp.Retrieval)
	assert.True(t, resp.Recorded)
}

func TestContainerUsesRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	db := testdb.Open(t)
	srv := fakeOllama(t)

	cfg := testConfig(srv.URL)
	cfg.RateLimit.Backend = BackendRedis
	cfg.Redis.Addr = mr.Addr()

	c, err := New(db, cfg, logger.Nop(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NotNil(t, c.Redis)
	require.NoError(t, c.Limiter.Admit(context.Background(), "key-1", 1))
	assert.Error(t, c.Limiter.Admit(context.Background(), "key-1", 1))

	_, ok := c.Health.GetStatus()["redis"]
	assert.True(t, ok)
}

func TestContainerRejectsUnknownBackends(t *testing.T) {
	db := testdb.Open(t)

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Retrieval.VectorBackend = "chroma"
	_, err := New(db, cfg, logger.Nop(), Options{})
	assert.ErrorContains(t, err, "unknown vector backend")

	cfg = testConfig("http://127.0.0.1:1")
	cfg.RateLimit.Backend = "memcached"
	_, err = New(db, cfg, logger.Nop(), Options{})
	assert.ErrorContains(t, err, "unknown rate limit backend")
}
