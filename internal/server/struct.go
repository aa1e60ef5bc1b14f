package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/caselight/cqa-go/internal/engine"
	"github.com/caselight/cqa-go/internal/eval"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// UploadDir is where uploaded documents are stored before ingestion
	// (default: data/uploads).
	UploadDir string
	// MaxUploadBytes caps the total size of one upload request
	// (default: 32 MiB).
	MaxUploadBytes int64
}

// Server is the HTTP server that exposes the answering engine.
type Server struct {
	// engine answers questions, ingests uploads, and builds summaries.
	engine *engine.Engine
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus metrics.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// SessionID groups follow-up questions into one conversation.
	SessionID string `json:"session_id"`
}

// uploadResponse is the JSON response for POST /api/upload.
type uploadResponse struct {
	// IndexedFiles lists the source names that were indexed.
	IndexedFiles []string `json:"indexed_files"`
	// IndexedChunks is the total number of chunks indexed.
	IndexedChunks int `json:"indexed_chunks"`
	// Message is a human-readable summary of the upload.
	Message string `json:"message"`
}

// summaryRequest is the JSON body for POST /api/summarize.
type summaryRequest struct {
	// Source is the document to summarize; empty covers the whole index.
	Source string `json:"source"`
}

// historyResponse is the JSON response for GET /api/history/{session_id}.
type historyResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []historyTurn `json:"messages"`
}

// historyTurn is one question/answer pair in a history response.
type historyTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// evaluateRequest is the JSON body for POST /api/evaluate.
type evaluateRequest struct {
	// CasesPath is the path to the evaluation case JSON file on the server.
	CasesPath string `json:"cases_path"`
}

// evaluateResponse is the JSON response for POST /api/evaluate.
type evaluateResponse struct {
	CasesPath  string       `json:"cases_path"`
	Metrics    *eval.Report `json:"metrics"`
	CasesCount int          `json:"cases_count"`
}
