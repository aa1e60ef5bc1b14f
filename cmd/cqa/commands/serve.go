package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/caselight/cqa-go/internal/logging"
	"github.com/caselight/cqa-go/internal/server"
	"github.com/caselight/cqa-go/internal/tracing"
)

// NewServeCmd constructs the `cqa serve` command, which starts the HTTP
// server exposing the answering engine as a REST API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var uploadDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cqa HTTP server",
		Long: `Start the cqa HTTP server on localhost.

The server exposes the answering engine as a REST API: document upload,
chat with citations, per-document summaries, session history, and
evaluation runs. Prometheus metrics are served on /metrics.

Set CQA_API_KEY to require a Bearer token on the API routes.

Examples:
  cqa serve
  cqa serve --port 9090
  MODEL_PROVIDER=azure cqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			eng, err := buildEngine(ctx, log, true)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer eng.Close() //nolint:errcheck

			srv, err := server.New(eng, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   buildPingers(eng),
				APIKey:    os.Getenv("CQA_API_KEY"),
				UploadDir: uploadDir,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", getEnvOrDefault("SERVER_HOST", "127.0.0.1"), "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", getEnvInt("SERVER_PORT", 8080), "TCP port to listen on")
	cmd.Flags().StringVar(&uploadDir, "upload-dir", getEnvOrDefault("CQA_UPLOAD_DIR", ""), "Directory for uploaded documents (default: data/uploads)")

	return cmd
}
