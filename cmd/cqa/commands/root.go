// Package commands defines all Cobra CLI commands for the cqa binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/caselight/cqa-go/internal/audit"
	"github.com/caselight/cqa-go/internal/config"
	"github.com/caselight/cqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cqa",
		Short: "Contract question answering over your own documents",
		Long: `cqa is a local-first assistant for contract documents.

Upload contracts as plain text or markdown, then ask questions and get
answers grounded in the uploaded text, with citations back to the exact
passages. Answers are refused when the indexed documents hold no evidence
for the question.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.cqa/config.yaml).
See 'cqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is a developer convenience; absence is not an error.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.cqa/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIngestCmd(),
		NewSummarizeCmd(),
		NewHistoryCmd(),
		NewWatchCmd(),
		NewServeCmd(),
		NewEvalCmd(),
		NewVersionCmd(),
	)

	return root
}
