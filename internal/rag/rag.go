// Package rag defines the core retrieval types and interfaces for the
// contract question-answering engine: document chunks, vector storage,
// similarity search, and embedding. Concrete store implementations (SQLite,
// in-memory, Qdrant, pgvector) live in this package and satisfy VectorStore,
// so the engine never depends on a specific backend.
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/google/uuid"
)

// ErrDimensionMismatch is returned when the configured embedding dimension
// does not match the dimension a persisted index was built with. The index
// must be rebuilt with the new embedding provider — it is never silently
// reused.
var ErrDimensionMismatch = errors.New("rag: embedding dimension does not match index")

// Chunk is one bounded span of a document's extracted text, the unit of
// retrieval and citation.
type Chunk struct {
	// ID is the deterministic unique identifier of this chunk.
	ID string

	// DocumentID identifies the ingested document this chunk belongs to.
	DocumentID string

	// Source is the normalised source filename (e.g. "lease.pdf").
	Source string

	// Text is the chunk's text content.
	Text string

	// Index is the zero-based position of this chunk within its document.
	Index int

	// Start and End are byte offsets of Text within the document's
	// extracted text ([Start, End)).
	Start int
	End   int
}

// ScoredChunk is a chunk paired with the similarity score assigned during
// retrieval. Scores are cosine similarities in the 0.0–1.0 range.
type ScoredChunk struct {
	Chunk

	// Score is the cosine similarity against the query embedding.
	Score float32
}

// Citation links a generated answer back to one retrieved chunk.
type Citation struct {
	// ChunkID is the cited chunk's identifier.
	ChunkID string `json:"chunk_id"`

	// Source is the cited chunk's source filename.
	Source string `json:"source"`

	// Start and End are the cited chunk's byte offsets in its document.
	Start int `json:"start"`
	End   int `json:"end"`

	// Relevance is the retrieval score of the cited chunk.
	Relevance float32 `json:"relevance"`
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines; writes to
// the same document are serialised by the caller.
type VectorStore interface {
	// Upsert stores or replaces a batch of chunks with their pre-computed
	// embeddings. embeddings[i] is the vector for chunks[i].
	Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error

	// Search returns the topK most similar chunks for the query embedding,
	// ordered by descending score with ties broken by lower chunk index.
	// The result never contains duplicate chunk IDs.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error)

	// DeleteByDocument removes every chunk belonging to the given document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// DeleteBySource removes every chunk whose source filename matches.
	// Used to supersede previously indexed versions of a re-ingested file.
	DeleteBySource(ctx context.Context, source string) error

	// BySource returns up to limit stored chunks for the given source,
	// ordered by document and chunk index. An empty source selects chunks
	// from all sources.
	BySource(ctx context.Context, source string, limit int) ([]Chunk, error)

	// Count returns the total number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Retriever is the high-level interface the engine uses to fetch relevant
// chunks for a question. It combines embedding and vector search.
type Retriever interface {
	// Retrieve returns the topK most relevant chunks scoring at least
	// minScore. An empty result is a value, not an error — it signals the
	// low-relevance fallback.
	Retrieve(ctx context.Context, question string, topK int, minScore float32) ([]ScoredChunk, error)
}

// chunkNamespace is the UUIDv5 namespace for deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("8f2d9c44-51fb-4de3-9a67-2b1d3a80c5e1")

// ChunkID derives the deterministic identifier for a chunk from its source
// filename and index. Re-ingesting the same file yields the same IDs, which
// makes upserts replace rather than duplicate. The result is a UUID string
// because some backends (Qdrant) require UUID point IDs.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, fmt.Appendf(nil, "%s#%d", source, index)).String()
}

// uploadPrefixRe matches the 32-hex-digit prefix that upload handlers prepend
// to stored filenames (e.g. "3707e488...db_lease.pdf").
var uploadPrefixRe = regexp.MustCompile(`^[0-9a-fA-F]{32}_`)

// NormalizeSource strips a leading upload prefix from a source filename so
// citations and evaluation matching always see the original name.
func NormalizeSource(source string) string {
	return uploadPrefixRe.ReplaceAllString(source, "")
}

// sortScored orders results by descending score, breaking ties by lower
// chunk index so rankings are deterministic across backends.
func sortScored(results []ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})
}

// cosineSimilarity computes the cosine similarity of two vectors. Mismatched
// or zero-norm vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
