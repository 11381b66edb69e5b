package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2:3b", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(GenerateResponse{Model: req.Model, Response: " hi there ", Done: true})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL+"/", nil).Generate(context.Background(), "llama3.2:3b", "hello")
	require.NoError(t, err)
	assert.Equal(t, " hi there ", resp.Response)
}

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req EmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		json.NewEncoder(w).Encode(EmbeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	vec, err := NewClient(srv.URL, nil).Embed(context.Background(), "nomic-embed-text", "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestClient_EmbedEmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Embed(context.Background(), "m", "text")
	assert.Error(t, err)
}

func TestClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Generate(context.Background(), "missing", "x")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "model not found")
}

func TestClient_InvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Generate(context.Background(), "m", "x")
	assert.Error(t, err)
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		w.Write([]byte(`{"version":"0.5.0"}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(srv.URL, nil).Ping(context.Background()))
}
