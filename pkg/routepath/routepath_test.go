package routepath

import (
	"errors"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "/"},
		{"/", "/"},
		{"/dashboard", "/dashboard"},
		{"/dashboard/", "/dashboard"},
		{"/client//documents", "/client/documents"},
		{"/client/./documents", "/client/documents"},
		{"/client/x/../documents", "/client/documents"},
		{"/staff?tab=queue", "/staff?tab=queue"},
		{"/staff/?", "/staff"},
		{"/files/a%20b", "/files/a%20b"},
		{"dashboard", "/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Clean(tt.input)
			if err != nil {
				t.Fatalf("Clean(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanErrors(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{"/a\\b", ErrBackslashInPath},
		{"/a%00b", ErrNullByteInPath},
		{"/a%2", ErrInvalidPercentEscape},
		{"/a%GG", ErrInvalidPercentEscape},
		{"/../etc/passwd", ErrPathEscapesRoot},
	}
	for _, tt := range tests {
		if _, err := Clean(tt.input); !errors.Is(err, tt.want) {
			t.Errorf("Clean(%q) err = %v, want %v", tt.input, err, tt.want)
		}
	}
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"", "/dashboard"},
		{"/staff/queue", "/staff/queue"},
		{"/admin?tab=users", "/admin?tab=users"},
		{"https://evil.test/", "/dashboard"},
		{"//evil.test/", "/dashboard"},
		{"/\\evil.test", "/dashboard"},
		{"javascript:alert(1)", "/dashboard"},
		{"/../secret", "/dashboard"},
	}
	for _, tt := range tests {
		if got := SafeRedirect(tt.target, "/dashboard"); got != tt.want {
			t.Errorf("SafeRedirect(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestHasPrefix(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         bool
	}{
		{"/login", "/login", true},
		{"/login/sso", "/login", true},
		{"/loginx", "/login", false},
		{"/admin/users", "/admin/", true},
		{"/anything", "/", true},
	}
	for _, tt := range tests {
		if got := HasPrefix(tt.path, tt.prefix); got != tt.want {
			t.Errorf("HasPrefix(%q, %q) = %v, want %v", tt.path, tt.prefix, got, tt.want)
		}
	}
}
