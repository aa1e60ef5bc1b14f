// Package server implements the HTTP server that exposes the contract QA
// engine via a REST API: document upload, chat with citations, summaries,
// session history, and evaluation runs.
// The server is started by the `cqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caselight/cqa-go/internal/engine"
	"github.com/caselight/cqa-go/internal/eval"
	"github.com/caselight/cqa-go/internal/logging"
)

// defaultMaxUploadBytes caps one multipart upload request at 32 MiB.
const defaultMaxUploadBytes = 32 << 20

// New constructs a Server from the provided engine and config.
func New(eng *engine.Engine, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout covers model calls, which can be slow.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join("data", "uploads")
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	reg := prometheus.NewRegistry()
	s := &Server{
		engine:  eng,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API authentication disabled — set CQA_API_KEY to enable")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/summarize", s.handleSummarize)
	mux.HandleFunc("POST /api/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /api/history/{session_id}", s.handleHistory)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Middleware order (outermost first): request logging, rate limiting,
	// then auth on the API surface. /metrics and /api/health stay open so
	// scrapers and liveness probes work without credentials.
	var handler http.Handler = authMiddleware(cfg.APIKey, mux, []string{"/api/health", "/metrics"})
	handler = rl.middleware(handler)
	handler = requestLogger(s.log, s.metrics, handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler returns the server's root handler, with middleware applied.
// Used by tests to drive the server through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleChat handles POST /api/chat: one question through the full guarded
// answering pipeline, returned as JSON with citations.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	ans, err := s.engine.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues("error").Inc()
		logging.FromContext(r.Context()).Error("chat failed", slog.Any("error", err))
		http.Error(w, "failed to answer question", http.StatusInternalServerError)
		return
	}

	outcome := "ok"
	if ans.Blocked {
		outcome = "blocked"
	}
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	writeJSON(w, r, http.StatusOK, ans)
}

// handleUpload handles POST /api/upload: multipart form files are stored
// under a collision-proof name and ingested. The stored name carries a hex
// prefix that is stripped again for display and citations.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		http.Error(w, "invalid multipart request", http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o750); err != nil {
		http.Error(w, "upload storage unavailable", http.StatusInternalServerError)
		return
	}

	resp := uploadResponse{}
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".txt" && ext != ".md" {
			http.Error(w, fmt.Sprintf("unsupported file type: %s", ext), http.StatusBadRequest)
			return
		}

		data, err := readMultipartFile(fh)
		if err != nil {
			http.Error(w, "failed to read upload", http.StatusBadRequest)
			return
		}

		stored := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + name
		if err := os.WriteFile(filepath.Join(s.cfg.UploadDir, stored), data, 0o600); err != nil {
			http.Error(w, "failed to store upload", http.StatusInternalServerError)
			return
		}

		res, err := s.engine.IngestText(r.Context(), name, string(data))
		if err != nil {
			logging.FromContext(r.Context()).Error("upload ingest failed",
				slog.String("source", name), slog.Any("error", err))
			http.Error(w, fmt.Sprintf("failed to index %s", name), http.StatusInternalServerError)
			return
		}
		resp.IndexedFiles = append(resp.IndexedFiles, res.Source)
		resp.IndexedChunks += res.ChunkCount
	}

	resp.Message = fmt.Sprintf("Indexed %d chunks from %d file(s).", resp.IndexedChunks, len(resp.IndexedFiles))
	writeJSON(w, r, http.StatusOK, resp)
}

// handleSummarize handles POST /api/summarize.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sum, err := s.engine.Summarize(r.Context(), req.Source)
	if err != nil {
		logging.FromContext(r.Context()).Error("summarize failed", slog.Any("error", err))
		http.Error(w, "failed to summarize", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

// handleHistory handles GET /api/history/{session_id}.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	turns, err := s.engine.History(r.Context(), sessionID, 0)
	if err != nil {
		logging.FromContext(r.Context()).Error("history failed", slog.Any("error", err))
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	resp := historyResponse{SessionID: sessionID, Messages: []historyTurn{}}
	for _, t := range turns {
		resp.Messages = append(resp.Messages, historyTurn{Question: t.Question, Answer: t.Answer})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleEvaluate handles POST /api/evaluate: runs the labelled cases at the
// requested path through the full pipeline and returns aggregate metrics.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CasesPath == "" {
		http.Error(w, "cases_path is required", http.StatusBadRequest)
		return
	}

	cases, err := eval.LoadCases(req.CasesPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "evaluation cases file not found", http.StatusNotFound)
			return
		}
		http.Error(w, "invalid evaluation cases file", http.StatusBadRequest)
		return
	}

	runner, err := eval.NewRunner(s.engine)
	if err != nil {
		http.Error(w, "evaluation unavailable", http.StatusInternalServerError)
		return
	}
	report, err := runner.Run(r.Context(), cases)
	if err != nil {
		logging.FromContext(r.Context()).Error("evaluation failed", slog.Any("error", err))
		http.Error(w, "evaluation failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, evaluateResponse{
		CasesPath:  req.CasesPath,
		Metrics:    report,
		CasesCount: len(cases),
	})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// readMultipartFile reads one uploaded file fully into memory. Uploads are
// bounded by MaxBytesReader upstream.
func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return io.ReadAll(f)
}
