package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a persistent VectorStore backed by a local SQLite database.
// Embeddings are stored alongside chunk metadata and scored with brute-force
// cosine similarity at search time. The index survives process restarts with
// stable rank ordering for unchanged inputs.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB

	// dimension is the embedding vector length this index was built with.
	dimension int
}

// DefaultIndexPath returns the default path for the persistent vector index.
// It resolves to ~/.cqa/index.db, creating the directory if needed.
func DefaultIndexPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("rag: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".cqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("rag: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// OpenSQLiteStore opens (or creates) a SQLiteStore at the given path and runs
// the schema migration. dimension is the embedding vector length of the
// configured provider; opening an existing index built with a different
// dimension fails with ErrDimensionMismatch — the index must be rebuilt, not
// silently reused. Use ":memory:" for an in-memory database in tests.
func OpenSQLiteStore(path string, dimension int) (*SQLiteStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("rag: sqlite store: dimension must be positive, got %d", dimension)
	}

	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("rag: sqlite store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, dimension: dimension}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.checkDimension(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS index_meta (
    key    TEXT PRIMARY KEY,
    value  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT    PRIMARY KEY,
    document_id  TEXT    NOT NULL,
    source       TEXT    NOT NULL,
    chunk_index  INTEGER NOT NULL,
    start_off    INTEGER NOT NULL,
    end_off      INTEGER NOT NULL,
    text         TEXT    NOT NULL,
    embedding    BLOB    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_source   ON chunks (source);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("rag: sqlite store: migrate: %w", err)
	}
	return nil
}

// checkDimension records the configured dimension on first open and rejects
// a dimension change on subsequent opens.
func (s *SQLiteStore) checkDimension() error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec(`INSERT INTO index_meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(s.dimension)); err != nil {
			return fmt.Errorf("rag: sqlite store: record dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("rag: sqlite store: read dimension: %w", err)
	}

	prev, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("rag: sqlite store: corrupt dimension marker %q: %w", stored, err)
	}
	if prev != s.dimension {
		return fmt.Errorf("%w: configured %d, index built with %d — rebuild the index", ErrDimensionMismatch, s.dimension, prev)
	}
	return nil
}

// Upsert stores or replaces chunks with their embeddings in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("rag: sqlite store: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: sqlite store: begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO chunks (id, document_id, source, chunk_index, start_off, end_off, text, embedding, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("rag: sqlite store: prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, chunk := range chunks {
		if len(embeddings[i]) != s.dimension {
			return fmt.Errorf("%w: got %d, index built with %d", ErrDimensionMismatch, len(embeddings[i]), s.dimension)
		}
		blob, err := json.Marshal(embeddings[i])
		if err != nil {
			return fmt.Errorf("rag: sqlite store: encode embedding for chunk %s: %w", chunk.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.Source, chunk.Index, chunk.Start, chunk.End, chunk.Text, blob, now,
		); err != nil {
			return fmt.Errorf("rag: sqlite store: insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rag: sqlite store: commit upsert: %w", err)
	}
	return nil
}

// Search loads all stored embeddings and scores them against the query
// embedding. Brute force is adequate for single-process contract corpora;
// use the Qdrant or pgvector backend for larger indexes.
func (s *SQLiteStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error) {
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index built with %d", ErrDimensionMismatch, len(queryEmbedding), s.dimension)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, source, chunk_index, start_off, end_off, text, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("rag: sqlite store: search query: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var chunk Chunk
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Source, &chunk.Index, &chunk.Start, &chunk.End, &chunk.Text, &blob); err != nil {
			return nil, fmt.Errorf("rag: sqlite store: scan chunk: %w", err)
		}
		var embedding []float32
		if err := json.Unmarshal(blob, &embedding); err != nil {
			continue // skip corrupt embeddings rather than failing the whole search
		}
		results = append(results, ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(queryEmbedding, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: sqlite store: search rows: %w", err)
	}

	sortScored(results)
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteByDocument removes every chunk belonging to the given document.
func (s *SQLiteStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("rag: sqlite store: delete document %s: %w", documentID, err)
	}
	return nil
}

// DeleteBySource removes every chunk with the given source filename.
func (s *SQLiteStore) DeleteBySource(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("rag: sqlite store: delete source %s: %w", source, err)
	}
	return nil
}

// BySource returns up to limit chunks for the given source ordered by
// document and chunk index. An empty source selects all chunks.
func (s *SQLiteStore) BySource(ctx context.Context, source string, limit int) ([]Chunk, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, source, chunk_index, start_off, end_off, text
FROM   chunks
WHERE  (? = '' OR source = ?)
ORDER  BY document_id, chunk_index
LIMIT  ?`, source, source, limit)
	if err != nil {
		return nil, fmt.Errorf("rag: sqlite store: by source: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Source, &chunk.Index, &chunk.Start, &chunk.End, &chunk.Text); err != nil {
			return nil, fmt.Errorf("rag: sqlite store: by source scan: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: sqlite store: by source rows: %w", err)
	}
	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("rag: sqlite store: count: %w", err)
	}
	return count, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("rag: sqlite store: close: %w", err)
	}
	return nil
}
