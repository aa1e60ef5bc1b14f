package rag

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // postgres driver
	"github.com/pgvector/pgvector-go"
)

// PGStore implements VectorStore backed by PostgreSQL with the pgvector
// extension. Similarity search runs server-side with the cosine distance
// operator, so it scales past the embedded backends' full-scan approach.
type PGStore struct {
	db        *sql.DB
	dimension int
}

// OpenPGStore connects to PostgreSQL using the given DSN, ensures the
// pgvector extension and chunk table exist, and verifies the recorded
// embedding dimension matches the requested one.
func OpenPGStore(ctx context.Context, dsn string, dimension int) (*PGStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("rag: pgvector: dimension must be positive, got %d", dimension)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("rag: pgvector: failed to open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("rag: pgvector: failed to ping database: %w", err)
	}

	store := &PGStore{db: db, dimension: dimension}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.checkDimension(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS index_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			source      TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			start_off   INTEGER NOT NULL,
			end_off     INTEGER NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks (source)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rag: pgvector: migration failed: %w", err)
		}
	}
	return nil
}

// checkDimension records the embedding dimension on first use and fails hard
// if a later open disagrees. The vector(n) column type enforces the same
// constraint per-row; this check catches the mismatch before any write.
func (s *PGStore) checkDimension(ctx context.Context) error {
	var recorded int
	err := s.db.QueryRowContext(ctx,
		`SELECT value::int FROM index_meta WHERE key = 'dimension'`).Scan(&recorded)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO index_meta (key, value) VALUES ('dimension', $1) ON CONFLICT (key) DO NOTHING`,
			fmt.Sprintf("%d", s.dimension))
		if err != nil {
			return fmt.Errorf("rag: pgvector: failed to record dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("rag: pgvector: failed to read dimension: %w", err)
	case recorded != s.dimension:
		return fmt.Errorf("%w: index has dimension %d, embedder produces %d", ErrDimensionMismatch, recorded, s.dimension)
	}
	return nil
}

// Upsert stores or replaces chunks with their embeddings in one transaction.
func (s *PGStore) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("rag: pgvector: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: pgvector: failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for i, chunk := range chunks {
		if len(embeddings[i]) != s.dimension {
			return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(embeddings[i]), s.dimension)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, source, chunk_index, start_off, end_off, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				source      = EXCLUDED.source,
				chunk_index = EXCLUDED.chunk_index,
				start_off   = EXCLUDED.start_off,
				end_off     = EXCLUDED.end_off,
				content     = EXCLUDED.content,
				embedding   = EXCLUDED.embedding`,
			chunk.ID, chunk.DocumentID, chunk.Source, chunk.Index,
			chunk.Start, chunk.End, chunk.Text, pgvector.NewVector(embeddings[i]))
		if err != nil {
			return fmt.Errorf("rag: pgvector: failed to upsert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rag: pgvector: failed to commit: %w", err)
	}
	return nil
}

// Search performs a cosine similarity search server-side. The <=> operator
// yields cosine distance; score is 1 - distance so higher means closer,
// matching the other backends. Ties on score break on lower chunk index.
func (s *PGStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error) {
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d", ErrDimensionMismatch, len(queryEmbedding), s.dimension)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, source, chunk_index, start_off, end_off, content,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		ORDER BY embedding <=> $1, chunk_index
		LIMIT $2`,
		pgvector.NewVector(queryEmbedding), topK)
	if err != nil {
		return nil, fmt.Errorf("rag: pgvector: search failed: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		var score float64
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Source, &sc.Index,
			&sc.Start, &sc.End, &sc.Text, &score); err != nil {
			return nil, fmt.Errorf("rag: pgvector: failed to scan result: %w", err)
		}
		sc.Score = float32(score)
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: pgvector: result iteration failed: %w", err)
	}
	return results, nil
}

// DeleteByDocument removes every chunk belonging to the given document.
func (s *PGStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("rag: pgvector: failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// DeleteBySource removes every chunk with the given source filename.
func (s *PGStore) DeleteBySource(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = $1`, source); err != nil {
		return fmt.Errorf("rag: pgvector: failed to delete source %s: %w", source, err)
	}
	return nil
}

// BySource returns up to limit chunks for the given source in chunk order.
// An empty source selects all chunks; limit <= 0 means no limit.
func (s *PGStore) BySource(ctx context.Context, source string, limit int) ([]Chunk, error) {
	query := `
		SELECT id, document_id, source, chunk_index, start_off, end_off, content
		FROM chunks
		WHERE ($1 = '' OR source = $1)
		ORDER BY source, chunk_index`
	args := []any{source}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("rag: pgvector: failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Index,
			&c.Start, &c.End, &c.Text); err != nil {
			return nil, fmt.Errorf("rag: pgvector: failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: pgvector: chunk iteration failed: %w", err)
	}
	return chunks, nil
}

// Count returns the total number of stored chunks.
func (s *PGStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("rag: pgvector: count failed: %w", err)
	}
	return n, nil
}

// Close closes the database connection pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}
