// Package metrics registers the Prometheus metrics the engine emits around
// ingestion and query answering.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcome label values.
const (
	OutcomeAnswered     = "answered"
	OutcomeBlocked      = "blocked"
	OutcomeLowRelevance = "low_relevance"
	OutcomeEmptyIndex   = "empty_index"
	OutcomeError        = "error"
)

// Metrics holds all Prometheus metrics owned by the engine. A single
// instance is created per engine so tests can inject a fresh
// prometheus.Registry without polluting the default one.
type Metrics struct {
	// QueriesTotal counts completed queries, partitioned by outcome.
	QueriesTotal *prometheus.CounterVec

	// DocumentsIngested counts successfully ingested documents.
	DocumentsIngested prometheus.Counter

	// ChunksIngested counts indexed chunks across all documents.
	ChunksIngested prometheus.Counter

	// RetrievalTopScore records the best similarity score per retrieval.
	RetrievalTopScore prometheus.Histogram

	// GenerationSeconds records the wall-clock duration of model calls.
	GenerationSeconds prometheus.Histogram
}

// New registers all engine metrics against reg. promauto.With(reg) is used
// so that each call registers into the provided registry rather than the
// global default — this keeps unit tests hermetic.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqa",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of queries answered, partitioned by outcome.",
		}, []string{"outcome"}),

		DocumentsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cqa",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents successfully ingested.",
		}),

		ChunksIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cqa",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks indexed across all documents.",
		}),

		RetrievalTopScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cqa",
			Subsystem: "retrieval",
			Name:      "top_score",
			Help:      "Best similarity score per retrieval.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),

		GenerationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cqa",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of answer generation model calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
}
