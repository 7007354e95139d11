package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTracedRouter(t *testing.T, opts ...OTelOption) (*chi.Mux, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	r := chi.NewRouter()
	r.Use(Tracing(append([]OTelOption{WithTracerProvider(tp)}, opts...)...))
	return r, sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_NamesSpanAfterRoute(t *testing.T) {
	r, sr := newTracedRouter(t)
	var inner trace.SpanContext
	r.Get("/staff/{section}", func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/staff/queue", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /staff/{section}" {
		t.Fatalf("span name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Fatalf("span kind = %v", span.SpanKind())
	}
	if v, _ := spanAttr(span, "http.response.status_code"); v.AsInt64() != 200 {
		t.Fatalf("status attribute = %v", v.AsInt64())
	}
	if !inner.IsValid() || inner.TraceID() != span.SpanContext().TraceID() {
		t.Fatal("handler context must carry the request span")
	}
}

func TestTracing_ServerErrorMarksSpan(t *testing.T) {
	r, sr := newTracedRouter(t)
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	if got := sr.Ended()[0].Status().Code; got != codes.Error {
		t.Fatalf("status code = %v, want Error", got)
	}
}

func TestTracing_Filter(t *testing.T) {
	r, sr := newTracedRouter(t, WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz"
	}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if n := len(sr.Ended()); n != 0 {
		t.Fatalf("spans = %d, want 0 for filtered requests", n)
	}
}
