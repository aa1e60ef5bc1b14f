package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. The
// collection is created with cosine distance, matching the similarity metric
// of the embedded backends so results stay backend-agnostic.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("rag: qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("rag: qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Upsert stores or replaces chunks with their embeddings. Chunk IDs are
// UUIDs (see ChunkID), so re-ingested chunks overwrite their prior points.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("rag: qdrant: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		if len(embeddings[i]) != int(s.cfg.VectorSize) {
			return fmt.Errorf("%w: got %d, collection created with %d", ErrDimensionMismatch, len(embeddings[i]), s.cfg.VectorSize)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id": chunk.DocumentID,
				"source":      chunk.Source,
				"text":        chunk.Text,
				"chunk_index": int64(chunk.Index),
				"start":       int64(chunk.Start),
				"end":         int64(chunk.End),
			}),
		})
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("rag: qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
// Qdrant orders by score; the index tie-break is applied client-side so
// rankings match the embedded backends.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error) {
	limit := uint64(topK) //nolint:gosec // topK is a small positive config value
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant: search failed: %w", err)
	}

	results := make([]ScoredChunk, 0, len(points))
	for _, p := range points {
		chunk := chunkFromPayload(p.Id.GetUuid(), p.Payload)
		results = append(results, ScoredChunk{Chunk: chunk, Score: p.Score})
	}
	sortScored(results)
	return results, nil
}

// DeleteByDocument removes every chunk belonging to the given document.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, documentID string) error {
	return s.deleteByField(ctx, "document_id", documentID)
}

// DeleteBySource removes every chunk with the given source filename.
func (s *QdrantStore) DeleteBySource(ctx context.Context, source string) error {
	return s.deleteByField(ctx, "source", source)
}

// deleteByField deletes all points whose payload field matches value.
func (s *QdrantStore) deleteByField(ctx context.Context, field, value string) error {
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(field, value)},
		}),
	}); err != nil {
		return fmt.Errorf("rag: qdrant: delete by %s=%q failed: %w", field, value, err)
	}
	return nil
}

// BySource scrolls up to limit chunks for the given source. An empty source
// selects all chunks.
func (s *QdrantStore) BySource(ctx context.Context, source string, limit int) ([]Chunk, error) {
	if limit <= 0 {
		limit = 1000
	}
	scrollLimit := uint32(limit) //nolint:gosec // limit is a small positive value

	req := &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Limit:          &scrollLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if source != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("source", source)},
		}
	}

	points, err := s.client.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant: scroll failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, chunkFromPayload(p.Id.GetUuid(), p.Payload))
	}
	return chunks, nil
}

// Count returns the total number of stored chunks.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
	})
	if err != nil {
		return 0, fmt.Errorf("rag: qdrant: count failed: %w", err)
	}
	return int(n), nil //nolint:gosec // chunk counts fit in int
}

// Client exposes the underlying gRPC client, for health probes.
func (s *QdrantStore) Client() *qdrant.Client {
	return s.client
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// chunkFromPayload rebuilds a Chunk from a Qdrant point payload.
func chunkFromPayload(id string, payload map[string]*qdrant.Value) Chunk {
	chunk := Chunk{ID: id}
	if payload == nil {
		return chunk
	}
	if v, ok := payload["document_id"]; ok {
		chunk.DocumentID = v.GetStringValue()
	}
	if v, ok := payload["source"]; ok {
		chunk.Source = v.GetStringValue()
	}
	if v, ok := payload["text"]; ok {
		chunk.Text = v.GetStringValue()
	}
	if v, ok := payload["chunk_index"]; ok {
		chunk.Index = int(v.GetIntegerValue())
	}
	if v, ok := payload["start"]; ok {
		chunk.Start = int(v.GetIntegerValue())
	}
	if v, ok := payload["end"]; ok {
		chunk.End = int(v.GetIntegerValue())
	}
	return chunk
}
