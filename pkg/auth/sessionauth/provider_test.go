package sessionauth

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/practicedesk/portal/pkg/auth"
	"github.com/practicedesk/portal/pkg/session"
)

type resolverFunc func(ctx context.Context, id string) (*session.Session, error)

func (f resolverFunc) Get(ctx context.Context, id string) (*session.Session, error) {
	return f(ctx, id)
}

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(session.NewMemoryStore(), nil, session.DefaultManagerConfig(), nil)
	t.Cleanup(func() { m.Close() })
	return m
}

type capture struct {
	sess   *session.Session
	state  State
	called bool
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.sess, _ = SessionFromContext(r.Context())
		c.state = StateFromContext(r.Context())
	})
}

func TestMiddleware_NoCookie(t *testing.T) {
	p := New(newManager(t))
	c := &capture{}
	rec := httptest.NewRecorder()

	p.Middleware()(c.handler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !c.called || c.sess != nil || c.state != StateNone {
		t.Fatalf("capture = %+v", c)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("no cookie should be written")
	}
}

func TestMiddleware_ResolvesSession(t *testing.T) {
	m := newManager(t)
	sess, err := m.Create(context.Background(), auth.Identity{UserID: "u-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p := New(m)
	c := &capture{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: p.CookieName(), Value: sess.ID})

	p.Middleware()(c.handler()).ServeHTTP(httptest.NewRecorder(), req)

	if c.sess != sess || c.state != StateResolved {
		t.Fatalf("capture = %+v, want resolved session", c)
	}
}

func TestMiddleware_UnknownSessionClearsCookie(t *testing.T) {
	p := New(newManager(t))
	c := &capture{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: p.CookieName(), Value: "stale"})
	rec := httptest.NewRecorder()

	p.Middleware()(c.handler()).ServeHTTP(rec, req)

	if c.sess != nil || c.state != StateNone {
		t.Fatalf("capture = %+v", c)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected a clearing cookie, got %+v", cookies)
	}
}

func TestMiddleware_StoreFailureIsUnavailable(t *testing.T) {
	p := New(resolverFunc(func(ctx context.Context, id string) (*session.Session, error) {
		return nil, errors.New("redis: connection refused")
	}))
	c := &capture{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: p.CookieName(), Value: "s-1"})
	rec := httptest.NewRecorder()

	p.Middleware()(c.handler()).ServeHTTP(rec, req)

	if c.state != StateUnavailable || c.sess != nil {
		t.Fatalf("capture = %+v, want unavailable", c)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("a store failure must not clear the cookie")
	}
}

func TestSetCookie(t *testing.T) {
	m := newManager(t)
	sess, _ := m.Create(context.Background(), auth.Identity{UserID: "u-1"})
	p := New(m, WithCookieName("sid"), WithMaxAge(2*time.Hour))

	req := httptest.NewRequest(http.MethodPost, "https://portal.test/login", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	p.SetCookie(rec, req, sess)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != "sid" || c.Value != sess.ID || c.MaxAge != 7200 || !c.HttpOnly || !c.Secure {
		t.Fatalf("unexpected cookie: %+v", c)
	}
}

type testCookiePolicy struct{}

func (p testCookiePolicy) ApplyCookiePolicy(r *http.Request, cookie *http.Cookie) (*http.Cookie, error) {
	cookie.Domain = "example.com"
	cookie.SameSite = http.SameSiteStrictMode
	return cookie, nil
}

func TestClearCookieAppliesPolicy(t *testing.T) {
	provider := New(nil, WithCookiePolicy(testCookiePolicy{}))
	req := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()

	provider.ClearCookie(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Domain != "example.com" {
		t.Fatalf("cookie Domain = %q, want %q", cookie.Domain, "example.com")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie SameSite = %v, want %v", cookie.SameSite, http.SameSiteStrictMode)
	}
	if !cookie.Secure {
		t.Fatalf("cookie Secure = false, want true")
	}
}

type errorCookiePolicy struct{}

func (p errorCookiePolicy) ApplyCookiePolicy(r *http.Request, cookie *http.Cookie) (*http.Cookie, error) {
	return nil, errors.New("policy error")
}

func TestClearCookiePolicyErrorWritesNothing(t *testing.T) {
	provider := New(nil, WithCookiePolicy(errorCookiePolicy{}))
	rec := httptest.NewRecorder()

	provider.ClearCookie(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("cookie written despite policy error")
	}
}

func TestSessionFromContext_Nil(t *testing.T) {
	if _, ok := SessionFromContext(nil); ok {
		t.Fatal("nil context must not yield a session")
	}
	if StateFromContext(context.Background()) != StateNone {
		t.Fatal("empty context must be StateNone")
	}
}
