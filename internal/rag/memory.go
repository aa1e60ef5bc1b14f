package rag

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory VectorStore using brute-force cosine
// similarity. It holds nothing on disk — the index is rebuilt from source
// documents on each process start. Intended for small corpora and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   []memoryRecord
}

// memoryRecord pairs a chunk with its embedding.
type memoryRecord struct {
	chunk     Chunk
	embedding []float32
}

// NewMemoryStore constructs an empty MemoryStore. dimension may be 0, in
// which case it is fixed by the first upserted vector.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension}
}

// Upsert stores or replaces chunks with their embeddings. Vectors whose
// length disagrees with the store's dimension fail with ErrDimensionMismatch.
func (s *MemoryStore) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("rag: memory store: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range chunks {
		if s.dimension == 0 {
			s.dimension = len(embeddings[i])
		}
		if len(embeddings[i]) != s.dimension {
			return fmt.Errorf("%w: got %d, index built with %d", ErrDimensionMismatch, len(embeddings[i]), s.dimension)
		}
		s.put(chunks[i], embeddings[i])
	}
	return nil
}

// put replaces an existing record with the same chunk ID or appends a new one.
// Caller holds the write lock.
func (s *MemoryStore) put(chunk Chunk, embedding []float32) {
	for i := range s.records {
		if s.records[i].chunk.ID == chunk.ID {
			s.records[i] = memoryRecord{chunk: chunk, embedding: embedding}
			return
		}
	}
	s.records = append(s.records, memoryRecord{chunk: chunk, embedding: embedding})
}

// Search scores every stored chunk against the query embedding and returns
// the topK by descending score, ties broken by lower chunk index.
func (s *MemoryStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index built with %d", ErrDimensionMismatch, len(queryEmbedding), s.dimension)
	}

	results := make([]ScoredChunk, 0, len(s.records))
	for _, rec := range s.records {
		results = append(results, ScoredChunk{
			Chunk: rec.chunk,
			Score: cosineSimilarity(queryEmbedding, rec.embedding),
		})
	}
	sortScored(results)

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteByDocument removes every chunk belonging to the given document.
func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = filterRecords(s.records, func(c Chunk) bool { return c.DocumentID != documentID })
	return nil
}

// DeleteBySource removes every chunk with the given source filename.
func (s *MemoryStore) DeleteBySource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = filterRecords(s.records, func(c Chunk) bool { return c.Source != source })
	return nil
}

// BySource returns up to limit chunks for the given source in insertion
// order. An empty source selects all chunks.
func (s *MemoryStore) BySource(ctx context.Context, source string, limit int) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chunks []Chunk
	for _, rec := range s.records {
		if source != "" && rec.chunk.Source != source {
			continue
		}
		chunks = append(chunks, rec.chunk)
		if limit > 0 && len(chunks) == limit {
			break
		}
	}
	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// filterRecords returns the records whose chunk satisfies keep.
func filterRecords(records []memoryRecord, keep func(Chunk) bool) []memoryRecord {
	out := records[:0]
	for _, rec := range records {
		if keep(rec.chunk) {
			out = append(out, rec)
		}
	}
	return out
}
