// Package ingestion implements the document ingestion pipeline. It reads
// contract files, chunks the extracted text, embeds each chunk, and upserts
// the results into the vector index. Re-ingesting a file first removes its
// previously indexed chunks, so the index never serves stale versions.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/caselight/cqa-go/internal/chunker"
	"github.com/caselight/cqa-go/internal/logging"
	"github.com/caselight/cqa-go/internal/rag"
)

// supportedExtensions lists the file types the pipeline accepts. Contract
// documents arrive as extracted plain text.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Result reports what one ingested document produced.
type Result struct {
	// DocumentID is the identifier assigned to this ingest of the document.
	DocumentID string

	// Source is the normalised source filename the chunks are indexed under.
	Source string

	// ChunkCount is the number of chunks indexed.
	ChunkCount int
}

// Pipeline orchestrates the read → chunk → embed → upsert flow.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	splitter *chunker.Chunker
}

// NewPipeline constructs a Pipeline from the provided dependencies. A nil
// splitter gets the default chunking configuration.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, splitter *chunker.Chunker) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if splitter == nil {
		var err error
		splitter, err = chunker.New(chunker.DefaultSize, chunker.DefaultOverlap)
		if err != nil {
			return nil, fmt.Errorf("ingestion: default chunker: %w", err)
		}
	}
	return &Pipeline{embedder: embedder, store: store, splitter: splitter}, nil
}

// IngestFile reads the file at path and indexes its content under the file's
// normalised base name.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return nil, fmt.Errorf("ingestion: unsupported file type %q (supported: .txt, .md)", ext)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", path, err)
	}
	return p.IngestText(ctx, filepath.Base(path), string(content))
}

// IngestText indexes text under the given source name. The name is
// normalised first; chunks of any previously indexed version of the same
// source are removed before the new ones are stored, making re-ingestion
// idempotent.
func (p *Pipeline) IngestText(ctx context.Context, source, text string) (*Result, error) {
	source = rag.NormalizeSource(source)
	log := logging.FromContext(ctx)

	pieces := p.splitter.Split(text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("ingestion: %s has no extractable text", source)
	}

	texts := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		texts = append(texts, piece.Text)
	}
	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingestion: embedding %s failed: %w", source, err)
	}
	if len(embeddings) != len(pieces) {
		return nil, fmt.Errorf("ingestion: %s: expected %d embeddings, got %d", source, len(pieces), len(embeddings))
	}

	documentID := uuid.NewString()
	chunks := make([]rag.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, rag.Chunk{
			ID:         rag.ChunkID(source, piece.Index),
			DocumentID: documentID,
			Source:     source,
			Text:       piece.Text,
			Index:      piece.Index,
			Start:      piece.Start,
			End:        piece.End,
		})
	}

	// Supersede the previous version before storing the new one. Chunk IDs
	// are deterministic, so a longer prior version leaves tail chunks behind
	// unless they are cleared first.
	if err := p.store.DeleteBySource(ctx, source); err != nil {
		return nil, fmt.Errorf("ingestion: clearing previous version of %s: %w", source, err)
	}
	if err := p.store.Upsert(ctx, chunks, embeddings); err != nil {
		return nil, fmt.Errorf("ingestion: upsert %s failed: %w", source, err)
	}

	log.Info("ingested document",
		slog.String("source", source),
		slog.String("document_id", documentID),
		slog.Int("chunks", len(chunks)),
	)
	return &Result{DocumentID: documentID, Source: source, ChunkCount: len(chunks)}, nil
}
