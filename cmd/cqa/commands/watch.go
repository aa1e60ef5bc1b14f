package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caselight/cqa-go/internal/logging"
	"github.com/caselight/cqa-go/internal/watch"
)

// NewWatchCmd constructs the `cqa watch` command, which keeps a directory's
// contracts indexed as files appear or change.
func NewWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [directory]",
		Short: "Watch a directory and index contracts as they change",
		Long: `Index the directory's existing .txt and .md files, then keep watching and
re-index files as they are created or modified. Runs until interrupted.

Examples:
  cqa watch ./contracts
  cqa watch --debounce 2s ~/inbox/legal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			eng, err := buildEngine(ctx, log, false)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer eng.Close() //nolint:errcheck

			watcher, err := watch.New(eng, debounce)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}

			if err := watcher.Run(ctx, args[0]); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed file is ingested")

	return cmd
}
