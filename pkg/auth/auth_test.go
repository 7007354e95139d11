package auth_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/practicedesk/portal/pkg/auth"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err    error
		want   int
		wantOK bool
	}{
		{err: nil},
		{err: errors.New("boom")},
		{err: auth.ErrUnauthorized, want: http.StatusUnauthorized, wantOK: true},
		{err: auth.ErrInvalidCredentials, want: http.StatusUnauthorized, wantOK: true},
		{err: auth.ErrForbidden, want: http.StatusForbidden, wantOK: true},
		{err: auth.ErrInvalidResetToken, want: http.StatusBadRequest, wantOK: true},
		{err: fmt.Errorf("reset: %w", auth.ErrWeakPassword), want: http.StatusBadRequest, wantOK: true},
	}

	for _, tt := range tests {
		code, ok := auth.StatusCode(tt.err)
		if code != tt.want || ok != tt.wantOK {
			t.Errorf("StatusCode(%v) = (%d, %v), want (%d, %v)", tt.err, code, ok, tt.want, tt.wantOK)
		}
		if auth.IsAuthError(tt.err) != tt.wantOK {
			t.Errorf("IsAuthError(%v) = %v", tt.err, !tt.wantOK)
		}
	}
}

func TestIdentityIsZero(t *testing.T) {
	if !(auth.Identity{}).IsZero() {
		t.Error("empty identity must be zero")
	}
	if (auth.Identity{UserID: "u-1"}).IsZero() {
		t.Error("identity with a user id must not be zero")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := auth.NormalizeEmail("  Partner@Firm.IN "); got != "partner@firm.in" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
