package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/caselight/cqa-go/internal/chunker"
	"github.com/caselight/cqa-go/internal/embedder"
	"github.com/caselight/cqa-go/internal/engine"
	"github.com/caselight/cqa-go/internal/generation"
	"github.com/caselight/cqa-go/internal/guardrail"
	"github.com/caselight/cqa-go/internal/ingestion"
	"github.com/caselight/cqa-go/internal/provider"
	"github.com/caselight/cqa-go/internal/rag"
	"github.com/caselight/cqa-go/internal/server"
	"github.com/caselight/cqa-go/internal/session"
)

// buildEngine wires the full answering engine from environment configuration.
// withModel controls whether a chat model is constructed; ingest-only
// commands skip it so they work without model credentials.
func buildEngine(ctx context.Context, log *slog.Logger, withModel bool) (*engine.Engine, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising embedder: %w", err)
	}
	backend := embedder.Backend()
	log.Info("embedder initialised", slog.String("provider", backend))

	store, err := rag.NewStoreFromEnv(ctx, embedder.Dimensions(backend))
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}

	splitter, err := chunker.New(
		getEnvInt("CHUNK_SIZE", chunker.DefaultSize),
		getEnvInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
	)
	if err != nil {
		return nil, fmt.Errorf("configuring chunker: %w", err)
	}
	pipeline, err := ingestion.NewPipeline(emb, store, splitter)
	if err != nil {
		return nil, fmt.Errorf("creating ingestion pipeline: %w", err)
	}

	topK := getEnvInt("RETRIEVAL_TOP_K", engine.DefaultTopK)
	retriever, err := rag.NewRetriever(emb, store, topK)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	guard := guardrail.New(
		getEnvInt("MAX_QUERY_CHARS", 0),
		getEnvFloat32("GUARDRAIL_MIN_RELEVANCE", 0),
	)

	var generator *generation.Generator
	if withModel {
		chatModel, err := provider.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialising model provider: %w", err)
		}
		log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

		generator, err = generation.New(generation.Config{ChatModel: chatModel})
		if err != nil {
			return nil, fmt.Errorf("creating generator: %w", err)
		}
	} else {
		// Engine construction requires a generator; ingest-only commands
		// never invoke it.
		generator, err = generation.New(generation.Config{ChatModel: noopChatModel{}})
		if err != nil {
			return nil, fmt.Errorf("creating generator: %w", err)
		}
	}

	// Open conversation history store. CQA_HISTORY_DB overrides the default
	// path (~/.cqa/history.db). Set to "disabled" to disable persistence.
	var sessions session.Store
	dbPath := os.Getenv("CQA_HISTORY_DB")
	if dbPath != "disabled" {
		if dbPath == "" {
			dbPath, err = session.DefaultDBPath()
			if err != nil {
				return nil, fmt.Errorf("resolving history path: %w", err)
			}
		}
		sessions, err = session.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening history store: %w", err)
		}
		log.Info("history store ready", slog.String("path", dbPath))
	}

	eng, err := engine.New(engine.Config{
		Retriever: retriever,
		Store:     store,
		Pipeline:  pipeline,
		Guard:     guard,
		Generator: generator,
		Sessions:  sessions,
		TopK:      topK,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return eng, nil
}

// buildPingers assembles the readiness probes for the configured stack. The
// index count probe always runs; a Qdrant backend additionally gets the
// native health-check probe so GET /api/ready reports the remote instance.
func buildPingers(eng *engine.Engine) []server.Pinger {
	pingers := []server.Pinger{server.NewIndexPinger(eng)}
	if qs, ok := eng.Store().(*rag.QdrantStore); ok {
		pingers = append(pingers, server.NewQdrantPinger(qs.Client()))
	}
	return pingers
}

// noopChatModel stands in for a real chat model on commands that never
// generate. Any call is a programming error.
type noopChatModel struct{}

func (noopChatModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return nil, fmt.Errorf("no chat model configured for this command")
}

func (noopChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("no chat model configured for this command")
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
