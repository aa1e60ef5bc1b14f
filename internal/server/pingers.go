package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// ChunkCounter is the slice of the vector index surface the readiness probe
// needs. Both the engine and every index backend satisfy it.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

// IndexPinger probes the vector index by issuing a count query. It satisfies
// the Pinger interface and is used by GET /api/ready.
type IndexPinger struct {
	// store is the vector index to probe.
	store ChunkCounter
}

// NewIndexPinger constructs an IndexPinger for the given index.
func NewIndexPinger(store ChunkCounter) *IndexPinger {
	return &IndexPinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping issues a count query against the index.
// Returns nil if the index is reachable, or a descriptive error otherwise.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if _, err := p.store.Count(ctx); err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
