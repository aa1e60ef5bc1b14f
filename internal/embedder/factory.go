package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/caselight/cqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output size of nomic-embed-text; other
	// Ollama models may differ, override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output size of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output size of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Dimensions returns the embedding vector size for the given backend, used
// to pre-size the vector index before the first embed call.
// EMBEDDING_DIMENSIONS always wins when set.
func Dimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "openai", "azure":
		return defaultOpenAIDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOllamaDimensions
	}
}

// Backend resolves the effective embedding backend name:
// EMBEDDING_PROVIDER if set, else MODEL_PROVIDER, else "ollama". Embedding
// inherits the chat provider so a single-provider setup needs one variable.
func Backend() string {
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		return v
	}
	return getEnvOrDefault("MODEL_PROVIDER", "ollama")
}

// NewFromEnv constructs a rag.Embedder from environment configuration.
//
// Resolution order:
//
//  1. Backend() picks the provider
//  2. Credentials inherit from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the backend's default model
//  4. EMBEDDING_API_KEY / EMBEDDING_ENDPOINT override inherited values
//  5. EMBEDDING_DIMENSIONS overrides the default vector size
//  6. EMBEDDING_RPS / EMBEDDING_BURST add client-side rate limiting
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	e, err := newForBackend(ctx, Backend())
	if err != nil {
		return nil, err
	}

	rps, err := strconv.ParseFloat(getEnvOrDefault("EMBEDDING_RPS", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("embedder: invalid EMBEDDING_RPS: %w", err)
	}
	return WithRateLimit(e, rps, getEnvInt("EMBEDDING_BURST", 1)), nil
}

func newForBackend(ctx context.Context, backend string) (rag.Embedder, error) {
	switch backend {
	case "ollama":
		host := os.Getenv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return NewOllama(host, getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)), nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		}), nil

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "gemini":
		apiKey := firstEnv("EMBEDDING_API_KEY", "GEMINI_API_KEY", "MODEL_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GEMINI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewGemini(ctx, apiKey,
			getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel),
			getEnvInt("EMBEDDING_DIMENSIONS", 0))

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure, gemini", backend)
	}
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
