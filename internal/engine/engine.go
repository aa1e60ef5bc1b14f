// Package engine wires the retrieval pipeline together: ingestion, guarded
// question answering with citations, session history, and summaries. It is
// the single entry point the CLI commands call.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/caselight/cqa-go/internal/generation"
	"github.com/caselight/cqa-go/internal/guardrail"
	"github.com/caselight/cqa-go/internal/ingestion"
	"github.com/caselight/cqa-go/internal/logging"
	"github.com/caselight/cqa-go/internal/metrics"
	"github.com/caselight/cqa-go/internal/rag"
	"github.com/caselight/cqa-go/internal/session"
)

// Defaults for query answering.
const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 4

	// DefaultHistoryDepth is the number of prior turns replayed into the
	// model context.
	DefaultHistoryDepth = 6

	// summaryChunkLimit caps how many chunks feed a summary.
	summaryChunkLimit = 8
)

// Config holds the engine's dependencies and tuning knobs.
type Config struct {
	// Retriever fetches relevant chunks for a question. Required.
	Retriever rag.Retriever

	// Store is the vector index, used directly for counting and listing
	// chunks. Required.
	Store rag.VectorStore

	// Pipeline ingests documents. Required.
	Pipeline *ingestion.Pipeline

	// Guard screens queries and gates on retrieval relevance. Required.
	Guard *guardrail.Filter

	// Generator produces cited answers and summaries. Required.
	Generator *generation.Generator

	// Sessions persists conversation turns. Optional; without it every
	// question is answered statelessly.
	Sessions session.Store

	// Registry receives the engine's Prometheus metrics. Optional; nil
	// uses a private throwaway registry.
	Registry prometheus.Registerer

	// TopK is the number of chunks retrieved per question. 0 uses
	// DefaultTopK.
	TopK int

	// HistoryDepth is the number of prior turns replayed into the model
	// context. 0 uses DefaultHistoryDepth.
	HistoryDepth int
}

// Answer is the engine's response to one question. Field names follow the
// wire format the CLI prints with --json.
type Answer struct {
	SessionID string         `json:"session_id"`
	Answer    string         `json:"answer"`
	Citations []rag.Citation `json:"citations,omitempty"`
	Blocked   bool           `json:"blocked"`
	Reason    string         `json:"reason,omitempty"`

	// RetrievedContexts are the chunk texts generation was grounded on.
	RetrievedContexts []string `json:"retrieved_contexts,omitempty"`

	// RetrievedSources are the source filenames of the retrieved chunks,
	// in rank order with duplicates removed.
	RetrievedSources []string `json:"retrieved_sources,omitempty"`

	// GroundingRatio is the evidence-overlap score of the answer.
	GroundingRatio float64 `json:"grounding_ratio"`

	// LowConfidence reports whether the grounding ratio fell below the floor.
	LowConfidence bool `json:"low_confidence"`

	// HistoryDropped reports that this turn could not be persisted; later
	// questions in the session will not see it.
	HistoryDropped bool `json:"history_dropped,omitempty"`
}

// Summary is the engine's response to a summarize request.
type Summary struct {
	Source  string `json:"source"`
	Summary string `json:"summary"`
}

// Engine orchestrates ingestion and guarded question answering.
type Engine struct {
	cfg     Config
	metrics *metrics.Metrics

	// ingestMu serialises writes to the index. Queries run concurrently;
	// ingestion does not.
	ingestMu sync.Mutex
}

// New constructs an Engine from the given config.
func New(cfg Config) (*Engine, error) {
	if cfg.Retriever == nil || cfg.Store == nil || cfg.Pipeline == nil || cfg.Guard == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("engine: retriever, store, pipeline, guard, and generator are all required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = DefaultHistoryDepth
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Engine{cfg: cfg, metrics: metrics.New(reg)}, nil
}

// Ingest indexes the file at path. Ingestion is serialised: concurrent
// callers queue behind the write lock.
func (e *Engine) Ingest(ctx context.Context, path string) (*ingestion.Result, error) {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	res, err := e.cfg.Pipeline.IngestFile(ctx, path)
	if err != nil {
		return nil, err
	}
	e.metrics.DocumentsIngested.Inc()
	e.metrics.ChunksIngested.Add(float64(res.ChunkCount))
	return res, nil
}

// BatchStatus reports the outcome of one document in a batch ingest.
type BatchStatus struct {
	// Path is the file path as given by the caller.
	Path string
	// Result is the ingestion outcome; nil when Err is set.
	Result *ingestion.Result
	// Err is the per-document failure, if any.
	Err error
}

// IngestBatch ingests each path in order. A failing document is reported in
// its status and does not stop the rest of the batch.
func (e *Engine) IngestBatch(ctx context.Context, paths []string) []BatchStatus {
	statuses := make([]BatchStatus, 0, len(paths))
	for _, path := range paths {
		res, err := e.Ingest(ctx, path)
		statuses = append(statuses, BatchStatus{Path: path, Result: res, Err: err})
	}
	return statuses
}

// IngestText indexes raw text under the given source name.
func (e *Engine) IngestText(ctx context.Context, source, text string) (*ingestion.Result, error) {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	res, err := e.cfg.Pipeline.IngestText(ctx, source, text)
	if err != nil {
		return nil, err
	}
	e.metrics.DocumentsIngested.Inc()
	e.metrics.ChunksIngested.Add(float64(res.ChunkCount))
	return res, nil
}

// Ask answers a question within a session. The safety screen runs before
// any embedding or model call; blocked and fallback answers never become
// session turns.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (*Answer, error) {
	log := logging.FromContext(ctx)

	if d := e.cfg.Guard.CheckQuery(question); !d.Allowed {
		e.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeBlocked).Inc()
		return &Answer{
			SessionID: sessionID,
			Answer:    generation.RefusalMessage,
			Blocked:   true,
			Reason:    d.Reason,
		}, nil
	}

	// Retrieve without a score floor: the relevance gate judges the best
	// score, not each chunk.
	retrieved, err := e.cfg.Retriever.Retrieve(ctx, question, e.cfg.TopK, 0)
	if err != nil {
		e.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("engine: retrieval failed: %w", err)
	}

	if len(retrieved) == 0 {
		count, countErr := e.cfg.Store.Count(ctx)
		if countErr != nil {
			e.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, fmt.Errorf("engine: index count failed: %w", countErr)
		}
		if count == 0 {
			e.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeEmptyIndex).Inc()
			return &Answer{
				SessionID: sessionID,
				Answer:    generation.EmptyIndexMessage,
				Reason:    guardrail.ReasonNoIndex,
			}, nil
		}
		e.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeLowRelevance).Inc()
		return &Answer{
			SessionID: sessionID,
			Answer:    generation.InsufficientEvidenceMessage,
			Reason:    guardrail.ReasonLowRelevance,
		}, nil
	}

	topScore := retrieved[0].Score
	e.metrics.RetrievalTopScore.Observe(float64(topScore))
	if d := e.cfg.Guard.CheckRelevance(topScore); !d.Allowed {
		e.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeLowRelevance).Inc()
		return &Answer{
			SessionID: sessionID,
			Answer:    generation.InsufficientEvidenceMessage,
			Reason:    d.Reason,
		}, nil
	}

	history, err := e.sessionHistory(ctx, sessionID)
	if err != nil {
		// Degrade to a stateless answer rather than failing the question.
		log.Warn("session history unavailable", slog.Any("error", err))
	}

	start := time.Now()
	result, err := e.cfg.Generator.Generate(ctx, question, retrieved, history)
	if err != nil {
		e.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("engine: generation failed: %w", err)
	}
	e.metrics.GenerationSeconds.Observe(time.Since(start).Seconds())

	var historyDropped bool
	if e.cfg.Sessions != nil {
		if err := e.cfg.Sessions.AppendTurn(ctx, sessionID, question, result.Answer, result.Citations); err != nil {
			historyDropped = true
			log.Error("failed to persist session turn",
				slog.String("session", sessionID), slog.Any("error", err))
		}
	}

	e.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeAnswered).Inc()
	return &Answer{
		SessionID:         sessionID,
		Answer:            result.Answer,
		Citations:         result.Citations,
		RetrievedContexts: result.Contexts,
		RetrievedSources:  uniqueSources(retrieved),
		GroundingRatio:    result.GroundingRatio,
		LowConfidence:     result.LowConfidence,
		HistoryDropped:    historyDropped,
	}, nil
}

// History returns the session's most recent turns, oldest first.
func (e *Engine) History(ctx context.Context, sessionID string, n int) ([]session.Turn, error) {
	if e.cfg.Sessions == nil {
		return nil, nil
	}
	if n <= 0 {
		n = e.cfg.HistoryDepth
	}
	turns, err := e.cfg.Sessions.History(ctx, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("engine: history: %w", err)
	}
	return turns, nil
}

// Summarize produces a bullet-point summary of an indexed source, or of the
// whole index when source is empty.
func (e *Engine) Summarize(ctx context.Context, source string) (*Summary, error) {
	source = rag.NormalizeSource(source)
	label := source
	if label == "" {
		label = "all"
	}

	chunks, err := e.cfg.Store.BySource(ctx, source, summaryChunkLimit)
	if err != nil {
		return nil, fmt.Errorf("engine: listing chunks: %w", err)
	}
	if len(chunks) == 0 {
		if source == "" {
			return &Summary{Source: label, Summary: "No indexed documents to summarize."}, nil
		}
		return &Summary{Source: label, Summary: "No chunks found for this source."}, nil
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	summary, err := e.cfg.Generator.Summarize(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("engine: summarize: %w", err)
	}
	return &Summary{Source: label, Summary: summary}, nil
}

// Count returns the number of indexed chunks.
func (e *Engine) Count(ctx context.Context) (int, error) {
	n, err := e.cfg.Store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: count: %w", err)
	}
	return n, nil
}

// Store exposes the configured vector index, for callers that wire
// backend-specific health probes.
func (e *Engine) Store() rag.VectorStore {
	return e.cfg.Store
}

// Close releases the engine's stores.
func (e *Engine) Close() error {
	var firstErr error
	if e.cfg.Sessions != nil {
		if err := e.cfg.Sessions.Close(); err != nil {
			firstErr = err
		}
	}
	if err := e.cfg.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// sessionHistory replays the session's recent turns as model messages,
// oldest first.
func (e *Engine) sessionHistory(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	if e.cfg.Sessions == nil {
		return nil, nil
	}
	turns, err := e.cfg.Sessions.History(ctx, sessionID, e.cfg.HistoryDepth)
	if err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(turns)*2)
	for _, t := range turns {
		msgs = append(msgs, schema.UserMessage(t.Question))
		msgs = append(msgs, schema.AssistantMessage(t.Answer, nil))
	}
	return msgs, nil
}

// uniqueSources returns the retrieved chunk sources in rank order without
// duplicates.
func uniqueSources(retrieved []rag.ScoredChunk) []string {
	seen := make(map[string]bool, len(retrieved))
	out := make([]string, 0, len(retrieved))
	for _, sc := range retrieved {
		if !seen[sc.Source] {
			seen[sc.Source] = true
			out = append(out, sc.Source)
		}
	}
	return out
}
