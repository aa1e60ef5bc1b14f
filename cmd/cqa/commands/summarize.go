package commands

import (
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/caselight/cqa-go/internal/logging"
	"github.com/caselight/cqa-go/internal/tracing"
)

// NewSummarizeCmd constructs the `cqa summarize` command, which produces a
// bullet-point overview of an indexed document.
func NewSummarizeCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize an indexed contract",
		Long: `Produce a short bullet-point summary of an indexed document's key points.

With --source the summary covers a single document; without it the summary
spans the whole index.

Examples:
  cqa summarize --source lease.txt
  cqa summarize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
			}

			eng, err := buildEngine(ctx, log, true)
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}
			defer eng.Close() //nolint:errcheck

			sum, err := eng.Summarize(ctx, source)
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}

			fmt.Printf("Summary (%s):\n%s\n", sum.Source, sum.Summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source filename to summarize (default: whole index)")

	return cmd
}
