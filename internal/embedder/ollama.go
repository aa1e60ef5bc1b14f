package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Ollama implements rag.Embedder against the Ollama /api/embed endpoint.
// Ollama runs locally, so no credentials are involved.
type Ollama struct {
	host   string
	model  string
	client *http.Client
}

// NewOllama constructs an Ollama embedder. host is the server base URL
// (e.g. "http://localhost:11434") and model the embedding model name
// (e.g. "nomic-embed-text").
func NewOllama(host, model string) *Ollama {
	return &Ollama{
		host:   host,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed converts a batch of texts into their embeddings. The returned slice
// is parallel to the input slice.
func (e *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result ollamaEmbedResponse
	status, err := postJSON(ctx, e.client, e.host+"/api/embed", nil,
		ollamaEmbedRequest{Model: e.model, Input: texts}, &result)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if status < 200 || status >= 300 {
		msg := fmt.Sprintf("HTTP %d", status)
		if result.Error != "" {
			msg = result.Error
		}
		return nil, fmt.Errorf("ollama: embed failed: %s", msg)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
