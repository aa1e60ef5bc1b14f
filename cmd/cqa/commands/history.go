package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caselight/cqa-go/internal/logging"
	"github.com/caselight/cqa-go/internal/session"
)

// NewHistoryCmd constructs the `cqa history` command, which prints a
// session's recent question/answer turns.
func NewHistoryCmd() *cobra.Command {
	var sessionID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a session's recent questions and answers",
		Long: `Print the most recent turns of a conversation session, oldest first.

Only fully generated answers become turns; blocked questions and
insufficient-evidence fallbacks are not recorded.

Examples:
  cqa history
  cqa history --session lease-review --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			dbPath := getEnvOrDefault("CQA_HISTORY_DB", "")
			if dbPath == "disabled" {
				return fmt.Errorf("history: persistence is disabled (CQA_HISTORY_DB=disabled)")
			}
			if dbPath == "" {
				var err error
				dbPath, err = session.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
			}
			store, err := session.Open(dbPath)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer store.Close() //nolint:errcheck

			turns, err := store.History(ctx, sessionID, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if len(turns) == 0 {
				fmt.Printf("no history for session %q\n", sessionID)
				return nil
			}

			for _, turn := range turns {
				fmt.Printf("[%d] %s\n", turn.Index, turn.CreatedAt.Format("2006-01-02 15:04:05"))
				fmt.Printf("  Q: %s\n", turn.Question)
				fmt.Printf("  A: %s\n", turn.Answer)
				for _, c := range turn.Citations {
					fmt.Printf("     - %s (chars %d-%d)\n", c.Source, c.Start, c.End)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "Session ID to show")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of turns to show")

	return cmd
}
