package portal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/practicedesk/portal/pkg/access"
	"github.com/practicedesk/portal/pkg/auth"
	"github.com/practicedesk/portal/pkg/auth/sessionauth"
	"github.com/practicedesk/portal/pkg/guard"
	"github.com/practicedesk/portal/pkg/live"
	"github.com/practicedesk/portal/pkg/middleware"
	portalstatus "github.com/practicedesk/portal/pkg/portal"
	"github.com/practicedesk/portal/pkg/profile"
	"github.com/practicedesk/portal/pkg/routeguard"
	"github.com/practicedesk/portal/pkg/session"
)

// =============================================================================
// App Type
// =============================================================================

// Deps are the backends of an App.
type Deps struct {
	// Auth verifies credentials and manages passwords. Required.
	Auth auth.Provider

	// Profiles is the profile store. Required.
	Profiles profile.Source

	// Flags holds the portal-active setting. Default: a StaticSource with
	// the flag unset.
	Flags portalstatus.FlagSource

	// Sessions persists session records. Default: session.NewMemoryStore().
	Sessions session.Store

	// Metrics collects Prometheus metrics. Default: collectors on a private
	// registry.
	Metrics *middleware.Metrics

	// TracerProvider is used for HTTP and validation spans. Default: the
	// global provider.
	TracerProvider trace.TracerProvider
}

// Errors returned by New.
var (
	ErrNoAuthProvider  = errors.New("portal: auth provider is required")
	ErrNoProfileSource = errors.New("portal: profile source is required")
)

// App is the portal web application. It is an http.Handler.
//
//	app, err := portal.New(portal.DefaultConfig(), portal.Deps{
//	    Auth:     pgauth.New(pool, pgauth.Config{SigningKey: key}),
//	    Profiles: profile.NewPostgresSource(pool),
//	})
//	app.Start(ctx)
//	defer app.Close()
//	http.ListenAndServe(":8080", app)
type App struct {
	config Config
	logger *slog.Logger

	router    chi.Router
	auth      auth.Provider
	sessions  *session.Manager
	cookies   *sessionauth.Provider
	validator *access.Validator
	status    *portalstatus.Status
	gate      *routeguard.Gate
	live      *live.Handler
	metrics   *middleware.Metrics
}

// New creates the application and its routes.
func New(cfg Config, deps Deps) (*App, error) {
	if deps.Auth == nil {
		return nil, ErrNoAuthProvider
	}
	if deps.Profiles == nil {
		return nil, ErrNoProfileSource
	}
	cfg.applyDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Flags == nil {
		deps.Flags = portalstatus.NewStaticSource()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewMemoryStore()
	}
	if deps.Metrics == nil {
		deps.Metrics = middleware.NewMetrics(middleware.WithRegistry(prometheus.NewRegistry()))
	}

	a := &App{
		config:  cfg,
		logger:  logger.With("component", "app"),
		auth:    deps.Auth,
		metrics: deps.Metrics,
	}

	a.sessions = session.NewManager(deps.Sessions, deps.Auth, cfg.Session, logger)

	a.cookies = sessionauth.New(a.sessions,
		sessionauth.WithCookieName(cfg.Cookie.Name),
		sessionauth.WithMaxAge(a.sessions.Config().TTL),
		sessionauth.WithCookiePolicy(sessionauth.NewSecurePolicy(cfg.Cookie.Secure, cfg.Cookie.TrustedProxies, logger)),
		sessionauth.WithLogger(logger),
	)

	validatorOpts := []access.Option{
		access.WithTimeout(cfg.AccessTimeout),
		access.WithObserver(deps.Metrics),
		access.WithLogger(logger),
	}
	if deps.TracerProvider != nil {
		validatorOpts = append(validatorOpts, access.WithTracerProvider(deps.TracerProvider))
	}
	a.validator = access.NewValidator(deps.Profiles, validatorOpts...)

	a.status = portalstatus.NewStatus(deps.Flags, cfg.Status,
		portalstatus.WithStatusObserver(deps.Metrics),
		portalstatus.WithStatusLogger(logger),
	)

	a.gate = routeguard.New(deps.Profiles, a.status, a.sessions, cfg.Gate,
		routeguard.WithObserver(deps.Metrics),
		routeguard.WithLogger(logger),
	)

	a.live = live.NewHandler(guard.Deps{
		Checker:  a.validator,
		Sessions: a.sessions,
		Observer: deps.Metrics,
		Logger:   logger,
	}, cfg.Live, live.WithObserver(deps.Metrics), live.WithLogger(logger))

	tracingOpts := []middleware.OTelOption{
		middleware.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
	}
	if deps.TracerProvider != nil {
		tracingOpts = append(tracingOpts, middleware.WithTracerProvider(deps.TracerProvider))
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(a.metrics.Middleware)
	r.Use(middleware.Tracing(tracingOpts...))
	r.Use(a.cookies.Middleware())
	a.routes(r)
	a.router = r

	return a, nil
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Start begins polling the portal-active flag.
func (a *App) Start(ctx context.Context) {
	a.status.Start(ctx)
	a.logger.Info("portal started")
}

// Close stops the poller, closes live connections and stops the session
// manager.
func (a *App) Close() error {
	a.status.Stop()
	a.live.Close()
	return a.sessions.Close()
}

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Validator returns the access validator.
func (a *App) Validator() *access.Validator {
	return a.validator
}

// Status returns the portal-active poller.
func (a *App) Status() *portalstatus.Status {
	return a.status
}

// Live returns the live connection handler.
func (a *App) Live() *live.Handler {
	return a.live
}

// Config returns the effective configuration.
func (a *App) Config() Config {
	return a.config
}
