// Package embedder implements the rag.Embedder interface for the embedding
// backends the engine supports: Ollama and OpenAI/Azure over plain HTTP, and
// Gemini through the genai SDK. All implementations are safe for concurrent
// use and batch whole chunk sets in a single upstream call.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/caselight/cqa-go/internal/rag"
)

// EmbedOne embeds a single text and returns its vector. Convenience wrapper
// for query-time callers that only ever embed one string.
func EmbedOne(ctx context.Context, e rag.Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// postJSON sends a JSON request and decodes the JSON response into out. The
// response body is decoded even on non-2xx status so callers can surface the
// upstream error message; the returned status code tells them whether to.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) (int, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("embedder: decode response: %w", err)
	}
	return resp.StatusCode, nil
}
