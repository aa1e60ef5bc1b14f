package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue gathers reg and returns the value of the named counter with
// the given outcome label, or -1 if it is not present.
func counterValue(t *testing.T, reg *prometheus.Registry, name, outcome string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &scriptedModel{response: "unused"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("want 200, got %d", w.Code)
	}
	ct := w.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_QueryCounterIncremented(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := newServerMetrics(reg)

	m.queryRequestsTotal.WithLabelValues("ok").Inc()
	m.queryRequestsTotal.WithLabelValues("blocked").Inc()
	m.queryRequestsTotal.WithLabelValues("blocked").Inc()

	if v := counterValue(t, reg, "cqa_query_requests_total", "ok"); v != 1 {
		t.Errorf("outcome=ok: want counter=1, got %v", v)
	}
	if v := counterValue(t, reg, "cqa_query_requests_total", "blocked"); v != 2 {
		t.Errorf("outcome=blocked: want counter=2, got %v", v)
	}
}

// Test_Metrics_HTTPRequestsRecorded drives one request through the full
// middleware chain and checks it shows up in the HTTP request counter.
func Test_Metrics_HTTPRequestsRecorded(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &scriptedModel{response: "unused"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	// Scrape and look for the counter in text form.
	scrape := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, scrape)

	body := w.Body.String()
	if !strings.Contains(body, "cqa_http_requests_total") {
		t.Errorf("expected cqa_http_requests_total in scrape, got: %s", body)
	}
	if !strings.Contains(body, `path="/api/health"`) {
		t.Errorf("expected /api/health sample in scrape, got: %s", body)
	}
}
