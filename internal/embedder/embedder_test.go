package embedder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func Test_Ollama_EmbedBatch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings": [[0.1, 0.2], [0.3, 0.4]]}`))
	}))
	defer srv.Close()

	e := NewOllama(srv.URL, "nomic-embed-text")
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("want 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][1] != 0.4 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
}

func Test_Ollama_UpstreamErrorSurfaced(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model not found"}`))
	}))
	defer srv.Close()

	e := NewOllama(srv.URL, "missing-model")
	if _, err := e.Embed(context.Background(), []string{"text"}); err == nil {
		t.Fatal("want error for upstream failure, got nil")
	}
}

func Test_Ollama_CountMismatchRejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings": [[0.1]]}`))
	}))
	defer srv.Close()

	e := NewOllama(srv.URL, "nomic-embed-text")
	if _, err := e.Embed(context.Background(), []string{"one", "two"}); err == nil {
		t.Fatal("want error for embedding count mismatch, got nil")
	}
}

func Test_OpenAI_ReordersByIndex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("missing bearer token, got %q", got)
		}
		_, _ = w.Write([]byte(`{"data": [
			{"embedding": [0.2], "index": 1},
			{"embedding": [0.1], "index": 0}
		]}`))
	}))
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embedding-3-small"})
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.2 {
		t.Errorf("out-of-order response not re-placed: %v", vecs)
	}
}

func Test_OpenAI_AzureHeadersAndPath(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api-key"); got != "az-key" {
			t.Errorf("missing api-key header, got %q", got)
		}
		if r.URL.Path != "/deployments/embed-deploy/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "2025-04-01-preview" {
			t.Errorf("missing api-version param")
		}
		_, _ = w.Write([]byte(`{"data": [{"embedding": [1], "index": 0}]}`))
	}))
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{
		BaseURL:    srv.URL,
		APIKey:     "az-key",
		Model:      "embed-deploy",
		Azure:      true,
		APIVersion: "2025-04-01-preview",
	})
	if _, err := e.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
}

func Test_EmbedOne(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings": [[0.5, 0.5]]}`))
	}))
	defer srv.Close()

	vec, err := EmbedOne(context.Background(), NewOllama(srv.URL, "m"), "question")
	if err != nil {
		t.Fatalf("embed one: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("want 1 vector of len 2, got %v", vec)
	}
}

func Test_WithRateLimit_ZeroRPSIsPassthrough(t *testing.T) {
	t.Parallel()
	inner := NewOllama("http://unused", "m")
	if got := WithRateLimit(inner, 0, 1); got != inner {
		t.Error("rps=0 must return the embedder unchanged")
	}
	if got := WithRateLimit(inner, 5, 1); got == inner {
		t.Error("rps>0 must wrap the embedder")
	}
}

func Test_Backend_ResolutionOrder(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "")
	if got := Backend(); got != "ollama" {
		t.Errorf("default backend: want ollama, got %q", got)
	}

	t.Setenv("MODEL_PROVIDER", "openai")
	if got := Backend(); got != "openai" {
		t.Errorf("want inherited openai, got %q", got)
	}

	t.Setenv("EMBEDDING_PROVIDER", "gemini")
	if got := Backend(); got != "gemini" {
		t.Errorf("EMBEDDING_PROVIDER must win, got %q", got)
	}
}

func Test_Dimensions_PerBackend(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	if got := Dimensions("ollama"); got != 768 {
		t.Errorf("ollama: want 768, got %d", got)
	}
	if got := Dimensions("openai"); got != 1536 {
		t.Errorf("openai: want 1536, got %d", got)
	}

	t.Setenv("EMBEDDING_DIMENSIONS", "512")
	if got := Dimensions("openai"); got != 512 {
		t.Errorf("override: want 512, got %d", got)
	}
}

func Test_NewFromEnv_OpenAIWithoutKeyFails(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Fatal("want error for openai without key")
	}
}
