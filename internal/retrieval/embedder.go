package retrieval

import (
	"context"
	"time"

	"acm-chatbot/backend/internal/ollama"
)

// DefaultEmbeddingTimeout bounds one embedding call.
const DefaultEmbeddingTimeout = 30 * time.Second

// OllamaEmbedder embeds text with an Ollama embedding model.
type OllamaEmbedder struct {
	client  *ollama.Client
	model   string
	timeout time.Duration
}

// NewOllamaEmbedder creates an embedder for model.
func NewOllamaEmbedder(client *ollama.Client, model string, timeout time.Duration) *OllamaEmbedder {
	if timeout <= 0 {
		timeout = DefaultEmbeddingTimeout
	}
	return &OllamaEmbedder{client: client, model: model, timeout: timeout}
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.client.Embed(ctx, e.model, text)
}
