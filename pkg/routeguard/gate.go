package routeguard

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/practicedesk/portal/internal/templates"
	"github.com/practicedesk/portal/pkg/auth/sessionauth"
	"github.com/practicedesk/portal/pkg/profile"
	"github.com/practicedesk/portal/pkg/session"
)

// Destinations are the redirect targets of the gate.
type Destinations struct {
	SignIn       string
	Maintenance  string
	Unauthorized string
}

// DefaultDestinations returns the portal's standard pages.
func DefaultDestinations() Destinations {
	return Destinations{
		SignIn:       "/login",
		Maintenance:  "/maintenance",
		Unauthorized: "/unauthorized",
	}
}

// Config configures a Gate.
type Config struct {
	Destinations Destinations
	Rules        Rules

	// FetchTimeout bounds a profile fetch made on behalf of a request.
	// Default: 5 seconds.
	FetchTimeout time.Duration

	// RetryAfter is how long the loading placeholder asks the browser to
	// wait before reloading. Default: 2 seconds.
	RetryAfter time.Duration
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		Destinations: DefaultDestinations(),
		Rules:        DefaultRules(),
		FetchTimeout: 5 * time.Second,
		RetryAfter:   2 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Destinations.SignIn == "" {
		c.Destinations.SignIn = d.Destinations.SignIn
	}
	if c.Destinations.Maintenance == "" {
		c.Destinations.Maintenance = d.Destinations.Maintenance
	}
	if c.Destinations.Unauthorized == "" {
		c.Destinations.Unauthorized = d.Destinations.Unauthorized
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.RetryAfter < time.Second {
		c.RetryAfter = d.RetryAfter
	}
}

// PortalStatus reports the portal switch. *portal.Status implements it.
type PortalStatus interface {
	Snapshot() (active, loaded bool)
}

// ProfileCache reports whether a session's cached profile can be used as is.
// *session.Manager implements it.
type ProfileCache interface {
	Fresh(sess *session.Session) bool
}

// Observer receives gate outcomes.
type Observer interface {
	ObserveGateOutcome(outcome string)
}

// Gate protects HTTP routes. Session state comes from the sessionauth
// middleware, which must run first.
type Gate struct {
	profiles profile.Source
	portal   PortalStatus
	cache    ProfileCache
	config   Config
	observer Observer
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Gate.
func New(profiles profile.Source, portal PortalStatus, cache ProfileCache, config Config, opts ...Option) *Gate {
	config.applyDefaults()
	g := &Gate{
		profiles: profiles,
		portal:   portal,
		cache:    cache,
		config:   config,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "routeguard")
	return g
}

// Config returns the effective configuration.
func (g *Gate) Config() Config {
	return g.config
}

// Evaluate resolves the request's state and decides the outcome for a route
// restricted to roles. The returned profile is the one the decision was made
// on, or nil.
func (g *Gate) Evaluate(r *http.Request, roles ...profile.Role) (Outcome, *profile.Profile) {
	in := Input{AllowedRoles: roles}
	in.PortalActive, in.PortalLoaded = g.portal.Snapshot()

	in.SessionLoaded = sessionauth.StateFromContext(r.Context()) != sessionauth.StateUnavailable
	sess, ok := sessionauth.SessionFromContext(r.Context())
	if ok && sess.SignedIn() {
		in.SignedIn = true
		in.Profile = g.profile(r.Context(), sess)
	}

	return Decide(in, g.config.Rules), in.Profile
}

// profile returns the session's profile, fetching it when the cache is
// empty or stale. A failed fetch falls back to whatever is cached, and
// returns nil when nothing is. A profile that no longer exists drops the
// cache, so the request shows Loading until the guard signs the user out.
func (g *Gate) profile(ctx context.Context, sess *session.Session) *profile.Profile {
	cached := sess.Profile()
	if cached != nil && g.cache.Fresh(sess) {
		return cached
	}

	userID := sess.UserID()
	ctx, cancel := context.WithTimeout(ctx, g.config.FetchTimeout)
	defer cancel()

	p, err := g.profiles.Fetch(ctx, userID)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		g.logger.Debug("profile not found", "user_id", userID)
		if cached != nil {
			sess.InvalidateProfile()
		}
		return nil
	case err != nil:
		g.logger.Warn("profile fetch failed", "user_id", userID, "error", err)
		return cached
	case p == nil:
		return cached
	}

	// Rejected when the session changed user during the fetch.
	if !sess.StoreProfile(userID, p) {
		return sess.Profile()
	}
	return p.Clone()
}

// Protect returns middleware that serves the wrapped handler only when the
// gate renders for roles. With no roles, any active user passes.
func (g *Gate) Protect(roles ...profile.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome, p := g.Evaluate(r, roles...)
			if g.observer != nil {
				g.observer.ObserveGateOutcome(outcome.String())
			}
			if outcome != Render {
				g.logger.Debug("route gated", "path", r.URL.Path, "outcome", outcome.String())
			}

			switch outcome {
			case Render:
				next.ServeHTTP(w, r.WithContext(WithProfile(r.Context(), p)))
			case RedirectSignIn:
				http.Redirect(w, r, g.signInURL(r), http.StatusSeeOther)
			case RedirectMaintenance:
				http.Redirect(w, r, g.config.Destinations.Maintenance, http.StatusSeeOther)
			case RedirectUnauthorized:
				http.Redirect(w, r, g.config.Destinations.Unauthorized, http.StatusSeeOther)
			default:
				g.writeLoading(w)
			}
		})
	}
}

func (g *Gate) signInURL(r *http.Request) string {
	dest, err := url.Parse(g.config.Destinations.SignIn)
	if err != nil {
		return g.config.Destinations.SignIn
	}
	q := dest.Query()
	q.Set("next", r.URL.RequestURI())
	dest.RawQuery = q.Encode()
	return dest.String()
}

func (g *Gate) writeLoading(w http.ResponseWriter) {
	secs := int(g.config.RetryAfter / time.Second)
	var buf bytes.Buffer
	if err := templates.Render(&buf, "loading", templates.Data{Title: "Loading", Refresh: secs}); err != nil {
		g.logger.Error("render loading page failed", "error", err)
		buf.Reset()
		buf.WriteString("Loading")
	}
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Retry-After", strconv.Itoa(secs))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type profileContextKey struct{}

// WithProfile returns a context carrying p.
func WithProfile(ctx context.Context, p *profile.Profile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, p)
}

// ProfileFromContext returns the profile the gate rendered for.
func ProfileFromContext(ctx context.Context) (*profile.Profile, bool) {
	p, ok := ctx.Value(profileContextKey{}).(*profile.Profile)
	return p, ok && p != nil
}
