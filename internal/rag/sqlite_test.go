package rag

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// openTestSQLite opens an in-memory SQLiteStore for use in tests.
func openTestSQLite(t *testing.T, dimension int) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(":memory:", dimension)
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_SQLiteStore_UpsertAndSearch(t *testing.T) {
	t.Parallel()
	s := openTestSQLite(t, 2)
	ctx := context.Background()

	chunks := []Chunk{
		{ID: ChunkID("lease.txt", 0), DocumentID: "d1", Source: "lease.txt", Index: 0, Text: "termination clause", Start: 0, End: 18},
		{ID: ChunkID("lease.txt", 1), DocumentID: "d1", Source: "lease.txt", Index: 1, Text: "payment schedule", Start: 10, End: 26},
	}
	embeddings := [][]float32{{1, 0}, {0, 1}}
	if err := s.Upsert(ctx, chunks, embeddings); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.Search(ctx, []float32{0.9, 0.1}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	if results[0].Text != "termination clause" {
		t.Errorf("top result: want termination clause, got %q", results[0].Text)
	}
	if results[0].Start != 0 || results[0].End != 18 {
		t.Errorf("offsets not round-tripped: got [%d, %d)", results[0].Start, results[0].End)
	}
}

func Test_SQLiteStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	s, err := OpenSQLiteStore(path, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seedChunks(t, s, "d1", "contract.txt", 3, 2)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenSQLiteStore(path, 2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	n, err := s2.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("want 3 chunks after reopen, got %d", n)
	}
}

func Test_SQLiteStore_ReopenWithDifferentDimensionFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := OpenSQLiteStore(path, 768)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err = OpenSQLiteStore(path, 1536)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}
}

func Test_SQLiteStore_ReingestIsIdempotent(t *testing.T) {
	t.Parallel()
	s := openTestSQLite(t, 2)
	ctx := context.Background()

	seedChunks(t, s, "d1", "same.txt", 4, 2)
	seedChunks(t, s, "d2", "same.txt", 4, 2)

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 4 {
		t.Errorf("want 4 chunks after re-ingest, got %d", n)
	}
}

func Test_SQLiteStore_UpsertRejectsWrongDimension(t *testing.T) {
	t.Parallel()
	s := openTestSQLite(t, 3)
	ctx := context.Background()

	chunk := Chunk{ID: ChunkID("bad.txt", 0), Source: "bad.txt"}
	err := s.Upsert(ctx, []Chunk{chunk}, [][]float32{{1, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("failed upsert must not leave partial rows, got %d", n)
	}
}

func Test_SQLiteStore_DeleteBySource(t *testing.T) {
	t.Parallel()
	s := openTestSQLite(t, 2)
	ctx := context.Background()

	seedChunks(t, s, "d1", "keep.txt", 2, 2)
	seedChunks(t, s, "d2", "drop.txt", 3, 2)

	if err := s.DeleteBySource(ctx, "drop.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	kept, err := s.BySource(ctx, "keep.txt", 0)
	if err != nil {
		t.Fatalf("by source: %v", err)
	}
	if len(kept) != 2 {
		t.Errorf("want 2 kept chunks, got %d", len(kept))
	}
	dropped, err := s.BySource(ctx, "drop.txt", 0)
	if err != nil {
		t.Fatalf("by source: %v", err)
	}
	if len(dropped) != 0 {
		t.Errorf("want 0 dropped chunks, got %d", len(dropped))
	}
}

func Test_SQLiteStore_SearchTopKAndTieBreak(t *testing.T) {
	t.Parallel()
	s := openTestSQLite(t, 2)
	ctx := context.Background()

	chunks := []Chunk{
		{ID: ChunkID("t.txt", 2), Source: "t.txt", Index: 2},
		{ID: ChunkID("t.txt", 0), Source: "t.txt", Index: 0},
		{ID: ChunkID("t.txt", 1), Source: "t.txt", Index: 1},
	}
	embeddings := [][]float32{{1, 0}, {1, 0}, {1, 0}}
	if err := s.Upsert(ctx, chunks, embeddings); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	if results[0].Index != 0 || results[1].Index != 1 {
		t.Errorf("tie-break by index failed: got %d, %d", results[0].Index, results[1].Index)
	}
}
