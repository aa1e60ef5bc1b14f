package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caselight/cqa-go/internal/chunker"
	"github.com/caselight/cqa-go/internal/rag"
)

// countingEmbedder returns a constant vector per text and counts calls.
type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, store rag.VectorStore) (*Pipeline, *countingEmbedder) {
	t.Helper()
	emb := &countingEmbedder{}
	splitter, err := chunker.New(50, 10)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	p, err := NewPipeline(emb, store, splitter)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return p, emb
}

func Test_Pipeline_IngestText(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore(2)
	p, emb := newTestPipeline(t, store)
	ctx := context.Background()

	text := strings.Repeat("the tenant shall pay rent. ", 10)
	res, err := p.IngestText(ctx, "lease.txt", text)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Source != "lease.txt" || res.DocumentID == "" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.ChunkCount < 2 {
		t.Errorf("want multiple chunks for long text, got %d", res.ChunkCount)
	}
	if emb.calls != 1 {
		t.Errorf("chunks must be embedded in one batch, got %d calls", emb.calls)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != res.ChunkCount {
		t.Errorf("store has %d chunks, result says %d", n, res.ChunkCount)
	}

	chunks, err := store.BySource(ctx, "lease.txt", 0)
	if err != nil {
		t.Fatalf("by source: %v", err)
	}
	for _, c := range chunks {
		if c.DocumentID != res.DocumentID {
			t.Errorf("chunk %d carries wrong document ID", c.Index)
		}
	}
}

func Test_Pipeline_ReingestSupersedes(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore(2)
	p, _ := newTestPipeline(t, store)
	ctx := context.Background()

	long := strings.Repeat("first version of the agreement. ", 20)
	if _, err := p.IngestText(ctx, "deal.txt", long); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	// Shorter second version: stale tail chunks must be gone afterwards.
	res, err := p.IngestText(ctx, "deal.txt", "second version, much shorter agreement text here")
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != res.ChunkCount {
		t.Errorf("stale chunks left behind: store has %d, latest version has %d", n, res.ChunkCount)
	}
}

func Test_Pipeline_SourceNameNormalised(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore(2)
	p, _ := newTestPipeline(t, store)

	res, err := p.IngestText(context.Background(),
		"3707e4882f5a4b1c9d0e1f2a3b4c5d6e_lease.txt", "tenant pays rent monthly under this lease")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Source != "lease.txt" {
		t.Errorf("upload prefix not stripped: %q", res.Source)
	}
}

func Test_Pipeline_EmptyTextRejected(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore(2)
	p, emb := newTestPipeline(t, store)

	if _, err := p.IngestText(context.Background(), "empty.txt", "   \n"); err == nil {
		t.Fatal("want error for empty document")
	}
	if emb.calls != 0 {
		t.Error("empty document must not reach the embedder")
	}
}

func Test_Pipeline_IngestFile(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore(2)
	p, _ := newTestPipeline(t, store)

	dir := t.TempDir()
	path := filepath.Join(dir, "contract.txt")
	if err := os.WriteFile(path, []byte("the parties agree to the following terms"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest file: %v", err)
	}
	if res.Source != "contract.txt" {
		t.Errorf("want source contract.txt, got %q", res.Source)
	}
}

func Test_Pipeline_UnsupportedExtensionRejected(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore(2)
	p, _ := newTestPipeline(t, store)

	if _, err := p.IngestFile(context.Background(), "contract.pdf"); err == nil {
		t.Fatal("want error for unsupported extension")
	}
}
