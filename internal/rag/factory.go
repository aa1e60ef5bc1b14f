package rag

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// Index backend names accepted by NewStoreFromEnv.
const (
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	BackendQdrant   = "qdrant"
	BackendPGVector = "pgvector"
)

// NewStoreFromEnv constructs a VectorStore from environment configuration.
//
// INDEX_BACKEND selects the implementation (default: sqlite):
//
//   - sqlite: embedded persistent index at INDEX_PATH (default ~/.cqa/index.db)
//   - memory: ephemeral in-process index, useful for tests and one-shot runs
//   - qdrant: remote Qdrant via QDRANT_HOST, QDRANT_PORT, QDRANT_COLLECTION,
//     QDRANT_API_KEY, QDRANT_USE_TLS
//   - pgvector: PostgreSQL with the pgvector extension via PG_DSN
//
// dimension is the embedding vector size; persistent backends record it and
// refuse to open an index built with a different one.
func NewStoreFromEnv(ctx context.Context, dimension int) (VectorStore, error) {
	backend := getEnvOrDefault("INDEX_BACKEND", BackendSQLite)

	switch backend {
	case BackendSQLite:
		path := os.Getenv("INDEX_PATH")
		if path == "" {
			var err error
			path, err = DefaultIndexPath()
			if err != nil {
				return nil, err
			}
		}
		return OpenSQLiteStore(path, dimension)

	case BackendMemory:
		return NewMemoryStore(dimension), nil

	case BackendQdrant:
		return NewQdrantStore(ctx, &QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "cqa_chunks"),
			VectorSize: uint64(dimension), //nolint:gosec // embedding dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_USE_TLS") == "true",
		})

	case BackendPGVector:
		dsn := os.Getenv("PG_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("rag: pgvector backend requires PG_DSN")
		}
		return OpenPGStore(ctx, dsn, dimension)

	default:
		return nil, fmt.Errorf("rag: unknown index backend %q — valid values: sqlite, memory, qdrant, pgvector", backend)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
