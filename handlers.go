package portal

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/practicedesk/portal/internal/templates"
	"github.com/practicedesk/portal/pkg/auth"
	"github.com/practicedesk/portal/pkg/auth/sessionauth"
	"github.com/practicedesk/portal/pkg/profile"
	"github.com/practicedesk/portal/pkg/routeguard"
	"github.com/practicedesk/portal/pkg/routepath"
)

// Messages shown on the public pages.
const (
	msgInvalidCredentials = "Invalid email or password."
	msgSignInUnavailable  = "Sign-in is temporarily unavailable. Please try again."
	msgResetSent          = "If an account exists for that email, a reset link is on its way."
	msgResetDone          = "Your password has been updated. Please sign in."
	msgInvalidResetToken  = "This reset link is invalid or has expired."
	msgWeakPassword       = "Passwords must be at least 8 characters long."
	msgSignedOut          = "You have been signed out."
)

const defaultLanding = "/dashboard"

func (a *App) routes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, defaultLanding, http.StatusSeeOther)
	})

	r.Get("/login", a.loginPage)
	r.Post("/login", a.login)
	r.Post("/logout", a.logout)
	r.Get("/forgot-password", a.forgotPasswordPage)
	r.Post("/forgot-password", a.forgotPassword)
	r.Get("/reset-password", a.resetPasswordPage)
	r.Post("/reset-password", a.resetPassword)

	r.Get("/maintenance", a.staticPage("maintenance", "Maintenance", http.StatusServiceUnavailable))
	r.Get("/unauthorized", a.staticPage("unauthorized", "Access denied", http.StatusForbidden))

	r.Handle("/live", a.live)
	r.Handle("/metrics", a.metrics.Handler())
	r.Get("/healthz", a.healthz)

	r.With(a.gate.Protect()).Get("/dashboard", a.dashboard)
	r.With(a.gate.Protect(profile.RoleClient)).Get("/client/*", a.area("Documents"))
	r.With(a.gate.Protect(profile.RoleStaff, profile.RoleAdmin)).Get("/staff/*", a.area("Clients"))
	r.With(a.gate.Protect(profile.RoleAdmin)).Get("/admin/*", a.area("Administration"))
}

// =============================================================================
// Sign-in flow
// =============================================================================

func (a *App) loginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := templates.Data{
		Title: "Sign in",
		Next:  routepath.SafeRedirect(q.Get("next"), defaultLanding),
	}
	switch {
	case q.Has("reset"):
		data.Notice = msgResetDone
	case q.Has("signed_out"):
		data.Notice = msgSignedOut
	}
	a.render(w, http.StatusOK, "login", data)
}

func (a *App) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	email := auth.NormalizeEmail(r.PostForm.Get("email"))
	next := routepath.SafeRedirect(r.PostForm.Get("next"), defaultLanding)
	fail := func(status int, msg string) {
		a.render(w, status, "login", templates.Data{Title: "Sign in", Error: msg, Email: email, Next: next})
	}

	identity, err := a.auth.SignIn(r.Context(), email, r.PostForm.Get("password"))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		fail(http.StatusUnauthorized, msgInvalidCredentials)
		return
	case err != nil:
		a.logger.Error("sign-in failed", "error", err)
		fail(http.StatusServiceUnavailable, msgSignInUnavailable)
		return
	}

	// Valid credentials are not enough: the profile must allow access.
	d, p, err := a.validator.Check(r.Context(), identity.UserID)
	if err != nil {
		a.logger.Warn("access check at sign-in failed", "user_id", identity.UserID, "error", err)
		fail(http.StatusServiceUnavailable, msgSignInUnavailable)
		return
	}
	if !d.Valid {
		a.logger.Info("sign-in refused", "user_id", identity.UserID, "reason", d.Reason)
		if err := a.auth.SignOut(r.Context(), identity); err != nil {
			a.logger.Warn("provider sign-out failed", "user_id", identity.UserID, "error", err)
		}
		fail(http.StatusForbidden, d.Reason)
		return
	}

	// A previous session is ended rather than reused.
	if old, ok := sessionauth.SessionFromContext(r.Context()); ok {
		if err := a.sessions.SignOut(r.Context(), old.ID); err != nil {
			a.logger.Warn("ending previous session failed", "session_id", old.ID, "error", err)
		}
	}

	sess, err := a.sessions.Create(r.Context(), identity)
	if err != nil {
		a.logger.Error("session create failed", "user_id", identity.UserID, "error", err)
		fail(http.StatusServiceUnavailable, msgSignInUnavailable)
		return
	}
	sess.StoreProfile(identity.UserID, p)

	a.cookies.SetCookie(w, r, sess)
	a.logger.Info("user signed in", "user_id", identity.UserID, "session_id", sess.ID)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (a *App) logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := sessionauth.SessionFromContext(r.Context()); ok {
		if err := a.sessions.SignOut(r.Context(), sess.ID); err != nil {
			a.logger.Warn("sign-out failed", "session_id", sess.ID, "error", err)
		}
	}
	a.cookies.ClearCookie(w, r)
	http.Redirect(w, r, "/login?signed_out=1", http.StatusSeeOther)
}

func (a *App) forgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, http.StatusOK, "forgot-password", templates.Data{Title: "Reset password"})
}

func (a *App) forgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	email := auth.NormalizeEmail(r.PostForm.Get("email"))
	data := templates.Data{Title: "Reset password", Email: email}

	resetURL := strings.TrimRight(a.config.BaseURL, "/") + "/reset-password"
	if err := a.auth.RequestPasswordReset(r.Context(), email, resetURL); err != nil {
		a.logger.Error("password reset request failed", "error", err)
		data.Error = msgSignInUnavailable
		a.render(w, http.StatusServiceUnavailable, "forgot-password", data)
		return
	}
	data.Notice = msgResetSent
	a.render(w, http.StatusOK, "forgot-password", data)
}

func (a *App) resetPasswordPage(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	data := templates.Data{Title: "Choose a new password", Token: token}
	if token == "" {
		data.Error = msgInvalidResetToken
	}
	a.render(w, http.StatusOK, "reset-password", data)
}

func (a *App) resetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	token := r.PostForm.Get("token")
	err := a.auth.ResetPassword(r.Context(), token, r.PostForm.Get("password"))
	if err == nil {
		http.Redirect(w, r, "/login?reset=1", http.StatusSeeOther)
		return
	}

	data := templates.Data{Title: "Choose a new password", Token: token}
	status, ok := auth.StatusCode(err)
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		data.Error = msgWeakPassword
	case ok:
		data.Error = msgInvalidResetToken
	default:
		a.logger.Error("password reset failed", "error", err)
		status = http.StatusServiceUnavailable
		data.Error = msgSignInUnavailable
	}
	a.render(w, status, "reset-password", data)
}

// =============================================================================
// Pages
// =============================================================================

func (a *App) staticPage(name, title string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.render(w, status, name, templates.Data{Title: title, User: a.user(r)})
	}
}

func (a *App) dashboard(w http.ResponseWriter, r *http.Request) {
	a.render(w, http.StatusOK, "dashboard", templates.Data{
		Title: "Dashboard",
		User:  a.user(r),
		Live:  true,
	})
}

func (a *App) area(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.render(w, http.StatusOK, "area", templates.Data{
			Title: name,
			Area:  name,
			User:  a.user(r),
			Live:  true,
		})
	}
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	active, loaded := a.status.Snapshot()
	body := map[string]any{
		"status":        "ok",
		"portal_active": active,
		"portal_loaded": loaded,
		"sessions":      a.sessions.Count(),
		"live":          a.live.Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(body)
}

// user returns the page's view of the signed-in user, or nil.
func (a *App) user(r *http.Request) *templates.User {
	sess, ok := sessionauth.SessionFromContext(r.Context())
	if !ok {
		return nil
	}
	identity, ok := sess.Identity()
	if !ok {
		return nil
	}
	u := &templates.User{ID: identity.UserID, Email: identity.Email}
	p, ok := routeguard.ProfileFromContext(r.Context())
	if !ok {
		p = sess.Profile()
	}
	if p != nil {
		u.Role = p.Role.String()
	}
	return u
}

func (a *App) render(w http.ResponseWriter, status int, name string, data templates.Data) {
	var buf bytes.Buffer
	if err := templates.Render(&buf, name, data); err != nil {
		a.logger.Error("render failed", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
