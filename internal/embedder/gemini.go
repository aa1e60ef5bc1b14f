package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini implements rag.Embedder using the Google Gemini embedding API.
type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGemini constructs a Gemini embedder. model is the embedding model name
// (e.g. "text-embedding-004"); dimensions requests a reduced output size
// (0 = model default).
func NewGemini(ctx context.Context, apiKey, model string, dimensions int) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &Gemini{client: client, model: model, dimensions: dimensions}, nil
}

// Embed converts a batch of texts into their embeddings. The returned slice
// is parallel to the input slice.
func (e *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	var cfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		dims := int32(e.dimensions) //nolint:gosec // dimensions are bounded
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	embeddings := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini: empty embedding at index %d", i)
		}
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}
