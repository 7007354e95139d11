package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/practicedesk/portal/pkg/access"
	"github.com/practicedesk/portal/pkg/guard"
	"github.com/practicedesk/portal/pkg/live"
	"github.com/practicedesk/portal/pkg/portal"
	"github.com/practicedesk/portal/pkg/routeguard"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "portal").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// Gatherer serves /metrics. Default: prometheus.DefaultGatherer, or
	// Registry when it is a *prometheus.Registry.
	Gatherer prometheus.Gatherer
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
		if g, ok := registry.(prometheus.Gatherer); ok && c.Gatherer == nil {
			c.Gatherer = g
		}
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "portal",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the portal's Prometheus collectors. It implements the
// observer interfaces of access, portal, guard, routeguard and live.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	validationsTotal   *prometheus.CounterVec
	validationDuration prometheus.Histogram
	portalPolls        *prometheus.CounterVec
	guardChecks        *prometheus.CounterVec
	forcedSignOuts     prometheus.Counter
	gateOutcomes       *prometheus.CounterVec
	liveConnections    prometheus.Gauge
}

var (
	_ access.Observer     = (*Metrics)(nil)
	_ portal.Observer     = (*Metrics)(nil)
	_ guard.Observer      = (*Metrics)(nil)
	_ routeguard.Observer = (*Metrics)(nil)
	_ live.Observer       = (*Metrics)(nil)
)

// NewMetrics creates and registers the collectors.
//
// Metrics collected (with the default namespace):
//   - portal_http_requests_total{route,status}
//   - portal_http_request_duration_seconds{route}
//   - portal_access_validations_total{result}
//   - portal_access_validation_duration_seconds
//   - portal_status_polls_total{result}
//   - portal_guard_checks_total{result}
//   - portal_guard_forced_signouts_total
//   - portal_gate_outcomes_total{outcome}
//   - portal_live_connections
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		gatherer: config.Gatherer,

		requestsTotal: counter("http_requests_total",
			"Total HTTP requests by route pattern and status code", "route", "status"),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),

		validationsTotal: counter("access_validations_total",
			"Access validations by result", "result"),

		validationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "access_validation_duration_seconds",
			Help:        "Access validation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		portalPolls: counter("status_polls_total",
			"Portal status polls by result", "result"),

		guardChecks: counter("guard_checks_total",
			"Periodic access checks by result", "result"),

		forcedSignOuts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "guard_forced_signouts_total",
			Help:        "Sessions signed out after a failed access check",
			ConstLabels: config.ConstLabels,
		}),

		gateOutcomes: counter("gate_outcomes_total",
			"Protected route decisions by outcome", "outcome"),

		liveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "live_connections",
			Help:        "Open live connections",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ObserveValidation implements access.Observer.
func (m *Metrics) ObserveValidation(result string, duration time.Duration) {
	m.validationsTotal.WithLabelValues(result).Inc()
	m.validationDuration.Observe(duration.Seconds())
}

// ObservePortalPoll implements portal.Observer.
func (m *Metrics) ObservePortalPoll(result string) {
	m.portalPolls.WithLabelValues(result).Inc()
}

// ObserveGuardCheck implements guard.Observer.
func (m *Metrics) ObserveGuardCheck(result string) {
	m.guardChecks.WithLabelValues(result).Inc()
}

// ObserveForcedSignOut implements guard.Observer.
func (m *Metrics) ObserveForcedSignOut() {
	m.forcedSignOuts.Inc()
}

// ObserveGateOutcome implements routeguard.Observer.
func (m *Metrics) ObserveGateOutcome(outcome string) {
	m.gateOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveLiveConnections implements live.Observer.
func (m *Metrics) ObserveLiveConnections(delta int) {
	m.liveConnections.Add(float64(delta))
}

// Handler returns the /metrics endpoint for the configured gatherer.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations. Requests are labelled
// with the chi route pattern, so it must be installed on a chi router.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}
