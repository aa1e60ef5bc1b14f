package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/caselight/cqa-go/internal/logging"
	"github.com/caselight/cqa-go/internal/rag"
	"github.com/caselight/cqa-go/internal/tracing"
)

// NewAskCmd constructs the `cqa ask` command, which answers one question
// grounded in the indexed contract documents.
func NewAskCmd() *cobra.Command {
	var sessionID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed contracts",
		Long: `Ask a natural language question about the uploaded contract documents.

The answer is grounded in the indexed text and carries citations back to
the exact passages. When the index holds no relevant evidence the answer
is refused rather than guessed.

Use --session to keep follow-up questions in the same conversation.

Examples:
  cqa ask "when is rent due?"
  cqa ask --session lease-review "what is the notice period for termination?"
  cqa ask --json "which party pays for repairs?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			eng, err := buildEngine(ctx, log, true)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer eng.Close() //nolint:errcheck

			question := strings.Join(args, " ")
			ans, err := eng.Ask(ctx, sessionID, question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ans) //nolint:wrapcheck // CLI output
			}

			fmt.Println(ans.Answer)
			printCitations(ans.Citations)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "Session ID for conversation continuity")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")

	return cmd
}

// printCitations renders citations as a numbered list under the answer.
func printCitations(citations []rag.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Println("\nCitations:")
	for i, c := range citations {
		fmt.Printf("  [%d] %s (chars %d-%d, relevance %.2f)\n", i+1, c.Source, c.Start, c.End, c.Relevance)
	}
}
