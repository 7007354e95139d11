package sessionauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/practicedesk/portal/pkg/session"
)

// Resolver looks sessions up by id. *session.Manager implements it.
type Resolver interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// State describes what the middleware learned about the request's session.
type State int

const (
	// StateNone means the request carries no usable session.
	StateNone State = iota
	// StateResolved means the session was found and is in context.
	StateResolved
	// StateUnavailable means the session store failed; whether the request
	// is signed in is unknown.
	StateUnavailable
)

// Provider binds requests to sessions through a cookie.
type Provider struct {
	sessions     Resolver
	cookieName   string
	cookiePolicy CookiePolicy
	maxAge       time.Duration
	logger       *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithCookieName sets the cookie name used to load session IDs.
func WithCookieName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.cookieName = name
		}
	}
}

// WithMaxAge sets the session cookie lifetime. Zero issues a browser-session
// cookie.
func WithMaxAge(d time.Duration) Option {
	return func(p *Provider) {
		p.maxAge = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// CookiePolicy applies security defaults to cookies set by the provider.
type CookiePolicy interface {
	ApplyCookiePolicy(r *http.Request, cookie *http.Cookie) (*http.Cookie, error)
}

// WithCookiePolicy applies a cookie policy for provider-managed cookies.
func WithCookiePolicy(policy CookiePolicy) Option {
	return func(p *Provider) {
		p.cookiePolicy = policy
	}
}

// New creates a cookie session provider.
func New(sessions Resolver, opts ...Option) *Provider {
	p := &Provider{
		sessions:   sessions,
		cookieName: "portal_session",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "sessionauth")
	return p
}

// CookieName returns the name of the session cookie.
func (p *Provider) CookieName() string {
	return p.cookieName
}

// Middleware resolves the session cookie and injects the session and its
// State into the request context. Unknown or expired sessions clear the
// cookie; store failures leave it in place.
func (p *Provider) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(p.cookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := p.sessions.Get(r.Context(), cookie.Value)
			switch {
			case errors.Is(err, session.ErrSessionNotFound):
				p.ClearCookie(w, r)
				next.ServeHTTP(w, r)
				return
			case err != nil:
				p.logger.Warn("session lookup failed", "error", err)
				ctx := context.WithValue(r.Context(), stateContextKey{}, StateUnavailable)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			case !sess.SignedIn():
				p.ClearCookie(w, r)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// SetCookie issues the session cookie for sess.
func (p *Provider) SetCookie(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	cookie := &http.Cookie{
		Name:     p.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r != nil && r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if p.maxAge > 0 {
		cookie.MaxAge = int(p.maxAge / time.Second)
	}
	p.writeCookie(w, r, cookie)
}

// ClearCookie expires the session cookie.
func (p *Provider) ClearCookie(w http.ResponseWriter, r *http.Request) {
	cookie := &http.Cookie{
		Name:     p.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r != nil && r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	p.writeCookie(w, r, cookie)
}

func (p *Provider) writeCookie(w http.ResponseWriter, r *http.Request, cookie *http.Cookie) {
	if p.cookiePolicy != nil {
		updated, err := p.cookiePolicy.ApplyCookiePolicy(r, cookie)
		if err != nil {
			p.logger.Warn("cookie policy rejected session cookie", "error", err)
			return
		}
		cookie = updated
	}
	http.SetCookie(w, cookie)
}

// WithSession returns a context carrying sess.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey{}, sess)
	return context.WithValue(ctx, stateContextKey{}, StateResolved)
}

// SessionFromContext returns the session resolved by the middleware.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	if ctx == nil {
		return nil, false
	}
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// StateFromContext returns what the middleware learned about the session.
func StateFromContext(ctx context.Context) State {
	if ctx == nil {
		return StateNone
	}
	if st, ok := ctx.Value(stateContextKey{}).(State); ok {
		return st
	}
	return StateNone
}

type sessionContextKey struct{}

type stateContextKey struct{}
