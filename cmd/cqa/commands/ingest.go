package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/caselight/cqa-go/internal/logging"
)

// NewIngestCmd constructs the `cqa ingest` command, which indexes contract
// files into the vector store.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Index contract documents into the vector store",
		Long: `Chunk, embed, and index one or more contract files (.txt or .md).

Re-ingesting a file replaces its previous chunks, so the index always
reflects the latest uploaded version.

The index backend is selected with INDEX_BACKEND (sqlite, memory, qdrant,
pgvector; default sqlite at ~/.cqa/index.db).

Examples:
  cqa ingest lease.txt
  cqa ingest contracts/*.md
  INDEX_BACKEND=qdrant QDRANT_HOST=qdrant.internal cqa ingest nda.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			eng, err := buildEngine(ctx, log, false)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer eng.Close() //nolint:errcheck

			totalChunks := 0
			failed := 0
			for _, st := range eng.IngestBatch(ctx, args) {
				if st.Err != nil {
					failed++
					log.Error("document failed", slog.String("path", st.Path), slog.Any("error", st.Err))
					fmt.Printf("failed %s: %v\n", st.Path, st.Err)
					continue
				}
				log.Info("document indexed",
					slog.String("source", st.Result.Source),
					slog.String("document_id", st.Result.DocumentID),
					slog.Int("chunks", st.Result.ChunkCount),
				)
				fmt.Printf("indexed %s (%d chunks)\n", st.Result.Source, st.Result.ChunkCount)
				totalChunks += st.Result.ChunkCount
			}

			fmt.Printf("done: %d of %d file(s), %d chunks\n", len(args)-failed, len(args), totalChunks)
			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d file(s) failed", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}
