package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OpenAI implements rag.Embedder against the OpenAI (or Azure OpenAI)
// embeddings REST API.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

// OpenAIConfig holds the settings for an OpenAI embedder.
type OpenAIConfig struct {
	// BaseURL is the API base. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string

	// APIKey is the Bearer token (OpenAI) or api-key header value (Azure).
	APIKey string

	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string

	// Dimensions is the requested vector length (0 = model default).
	Dimensions int

	// Azure selects Azure-style auth and deployment-scoped URLs.
	Azure bool

	// APIVersion is the Azure api-version query param. Ignored for OpenAI.
	APIVersion string
}

// NewOpenAI constructs an OpenAI embedder from the given config.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed converts a batch of texts into their embeddings. The returned slice
// is parallel to the input slice; the API may answer out of order, so results
// are re-placed by index.
func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	url := e.cfg.BaseURL + "/embeddings"
	headers := map[string]string{"Authorization": "Bearer " + e.cfg.APIKey}
	if e.cfg.Azure {
		url = e.cfg.BaseURL + "/deployments/" + e.cfg.Model + "/embeddings?api-version=" + e.cfg.APIVersion
		headers = map[string]string{"api-key": e.cfg.APIKey}
	}

	var result openaiEmbedResponse
	status, err := postJSON(ctx, e.client, url, headers,
		openaiEmbedRequest{Input: texts, Model: e.cfg.Model, Dimensions: e.cfg.Dimensions}, &result)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if status < 200 || status >= 300 {
		msg := fmt.Sprintf("HTTP %d", status)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("openai: embed failed: %s", msg)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range [0, %d)", d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}
