package rag

import (
	"context"
	"fmt"
)

// DefaultRetriever implements Retriever by combining an Embedder and a
// VectorStore. It embeds the question at retrieval time, delegates the
// similarity search to the store, and applies the score threshold.
type DefaultRetriever struct {
	// embedder converts the question text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultTopK is the result count used when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and
// VectorStore. defaultTopK sets the fallback result count for Retrieve calls
// with topK=0.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 4
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the question, searches the store, and returns the topK
// chunks scoring at least minScore, deduplicated by chunk ID. An empty
// result is returned as-is — the guardrail layer decides what to do with it.
func (r *DefaultRetriever) Retrieve(ctx context.Context, question string, topK int, minScore float32) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding question failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for question")
	}

	results, err := r.store.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	filtered := make([]ScoredChunk, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, res := range results {
		if res.Score < minScore {
			continue
		}
		if seen[res.ID] {
			continue
		}
		seen[res.ID] = true
		filtered = append(filtered, res)
	}
	return filtered, nil
}
