package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(WithRegistry(reg)), reg
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestMetrics_Observers(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveValidation("valid", 20*time.Millisecond)
	m.ObserveValidation("inactive", 10*time.Millisecond)
	m.ObserveValidation("valid", 5*time.Millisecond)
	m.ObservePortalPoll("error")
	m.ObserveGuardCheck("skipped")
	m.ObserveForcedSignOut()
	m.ObserveGateOutcome("redirect_maintenance")
	m.ObserveLiveConnections(1)
	m.ObserveLiveConnections(1)
	m.ObserveLiveConnections(-1)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"valid validations", testutil.ToFloat64(m.validationsTotal.WithLabelValues("valid")), 2},
		{"inactive validations", testutil.ToFloat64(m.validationsTotal.WithLabelValues("inactive")), 1},
		{"poll errors", testutil.ToFloat64(m.portalPolls.WithLabelValues("error")), 1},
		{"skipped checks", testutil.ToFloat64(m.guardChecks.WithLabelValues("skipped")), 1},
		{"forced sign-outs", testutil.ToFloat64(m.forcedSignOuts), 1},
		{"maintenance redirects", testutil.ToFloat64(m.gateOutcomes.WithLabelValues("redirect_maintenance")), 1},
		{"live connections", testutil.ToFloat64(m.liveConnections), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if got := metricHistogramCount(t, m.validationDuration); got != 3 {
		t.Errorf("validation duration samples = %d, want 3", got)
	}
}

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/client/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	for _, path := range []string{"/client/documents/1", "/client/documents/2", "/boom", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("/client/documents/{id}", "204")); got != 2 {
		t.Errorf("documents requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("/boom", "500")); got != 1 {
		t.Errorf("boom requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("unmatched", "404")); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.ObserveForcedSignOut()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "portal_guard_forced_signouts_total 1") {
		t.Fatalf("exposition missing counter:\n%s", rec.Body.String())
	}
}

func TestMetrics_Namespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("acme"), WithConstLabels(prometheus.Labels{"env": "test"}))
	m.ObserveGateOutcome("render")

	n, err := testutil.GatherAndCount(reg, "acme_gate_outcomes_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("series = %d, want 1", n)
	}
}
