package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/caselight/cqa-go/internal/logging"
)

// probeTimeout bounds each dependency probe so /api/ready answers promptly
// even when a dependency hangs rather than refuses.
const probeTimeout = 5 * time.Second

// Pinger is implemented by dependencies that can report their own
// reachability: nil means healthy, an error carries the failure reason.
// Implementations must be safe for concurrent use; readiness probes run in
// parallel.
type Pinger interface {
	// Ping checks whether the dependency is reachable within ctx.
	Ping(ctx context.Context) error

	// Name is the dependency label used in readiness responses
	// (e.g. "index", "qdrant").
	Name() string
}

// MultiPinger combines several Pingers into one.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger over the given probes.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping runs the probes in order and returns the first failure, labelled
// with the failing dependency's name.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name returns a combined label for logging purposes.
func (m *MultiPinger) Name() string { return "multi" }

// readyCheck is one dependency's probe result in a readiness response.
type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. All registered probes run
// concurrently under probeTimeout; the response is 200 only when every
// dependency answered. /api/health remains the liveness endpoint and never
// touches dependencies.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Ping(probeCtx)
			checks[i] = readyCheck{Name: p.Name(), OK: err == nil}
			if err != nil {
				checks[i].Error = err.Error()
				log.Warn("readiness probe failed",
					slog.String("dependency", p.Name()),
					slog.Any("error", err),
				)
			}
		}()
	}
	wg.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			break
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
