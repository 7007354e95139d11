// Package middleware provides the portal's observability middleware.
//
// # Prometheus Metrics
//
// Metrics is both HTTP middleware and the observer for the access
// validator, the portal status poller, the guards, the route gate and the
// live endpoint:
//
//	metrics := middleware.NewMetrics(middleware.WithRegistry(reg))
//	validator := access.NewValidator(src, access.WithObserver(metrics))
//	r.Use(metrics.Middleware)
//	r.Handle("/metrics", metrics.Handler())
//
// # OpenTelemetry
//
// Tracing starts one server span per request. Lookups made while serving
// the request inherit it through the request context:
//
//	r.Use(middleware.Tracing(
//	    middleware.WithFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given.
package middleware
