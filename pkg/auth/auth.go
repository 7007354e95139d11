package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// MinPasswordLength is the shortest password accepted by ResetPassword.
const MinPasswordLength = 8

// ErrUnauthorized is returned when authentication is required but not present.
// This typically triggers a 401 response or redirect to login.
var ErrUnauthorized = errors.New("unauthorized: authentication required")

// ErrForbidden is returned when authentication is present but insufficient.
// This typically triggers a 403 response.
var ErrForbidden = errors.New("forbidden: insufficient permissions")

// ErrInvalidCredentials is returned by SignIn for an unknown email or a wrong
// password. The two cases are indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrInvalidResetToken is returned by ResetPassword for a malformed, expired
// or already used token.
var ErrInvalidResetToken = errors.New("invalid or expired reset token")

// ErrWeakPassword is returned when a new password is shorter than
// MinPasswordLength.
var ErrWeakPassword = errors.New("password too short")

// Identity is the authenticated user as known to the identity provider.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// IsZero reports whether i carries no user.
func (i Identity) IsZero() bool {
	return i.UserID == ""
}

// Provider is the identity provider behind the portal.
type Provider interface {
	// SignIn verifies credentials and returns the identity.
	SignIn(ctx context.Context, email, password string) (Identity, error)

	// SignOut ends the provider-side session of id. Implementations should
	// succeed for an identity that is already signed out.
	SignOut(ctx context.Context, id Identity) error

	// RequestPasswordReset sends a reset link built from resetURL to email.
	// An unknown email is not an error.
	RequestPasswordReset(ctx context.Context, email, resetURL string) error

	// ResetPassword sets a new password using a token issued by
	// RequestPasswordReset.
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// NormalizeEmail lower-cases and trims an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StatusCode returns the appropriate HTTP status code for an auth error.
// Returns (statusCode, true) for auth errors, (0, false) otherwise.
//
// Example:
//
//	if code, ok := auth.StatusCode(err); ok {
//	    w.WriteHeader(code)
//	}
func StatusCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, true
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, true
	case errors.Is(err, ErrInvalidResetToken), errors.Is(err, ErrWeakPassword):
		return http.StatusBadRequest, true
	default:
		return 0, false
	}
}

// IsAuthError returns true if the error is an authentication or authorization error.
func IsAuthError(err error) bool {
	_, ok := StatusCode(err)
	return ok
}
