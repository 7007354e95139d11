package sessionauth

import (
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurePolicy(t *testing.T) {
	policy := NewSecurePolicy(false, []string{"10.0.0.0/8", "192.0.2.7", "not-an-ip"}, nil)

	tests := []struct {
		name       string
		remote     string
		tls        bool
		headers    map[string]string
		wantSecure bool
	}{
		{name: "plain http", remote: "203.0.113.9:5000"},
		{name: "direct tls", remote: "203.0.113.9:5000", tls: true, wantSecure: true},
		{name: "untrusted forwarded proto", remote: "203.0.113.9:5000", headers: map[string]string{"X-Forwarded-Proto": "https"}},
		{name: "trusted cidr x-forwarded-proto", remote: "10.1.2.3:5000", headers: map[string]string{"X-Forwarded-Proto": "https, http"}, wantSecure: true},
		{name: "trusted ip forwarded", remote: "192.0.2.7:5000", headers: map[string]string{"Forwarded": `for=198.51.100.1;proto="https"`}, wantSecure: true},
		{name: "trusted proxy plain", remote: "10.1.2.3:5000", headers: map[string]string{"X-Forwarded-Proto": "http"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/login", nil)
			r.RemoteAddr = tt.remote
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			got, err := policy.ApplyCookiePolicy(r, &http.Cookie{Name: "portal_session", Value: "s"})
			if err != nil {
				t.Fatalf("ApplyCookiePolicy: %v", err)
			}
			if got.Secure != tt.wantSecure {
				t.Fatalf("Secure = %v, want %v", got.Secure, tt.wantSecure)
			}
		})
	}
}

func TestSecurePolicy_Require(t *testing.T) {
	policy := NewSecurePolicy(true, nil, nil)
	policy.Domain = "portal.test"
	policy.SameSite = http.SameSiteStrictMode

	r := httptest.NewRequest(http.MethodGet, "/login", nil)
	if _, err := policy.ApplyCookiePolicy(r, &http.Cookie{Name: "c"}); !errors.Is(err, ErrSecureCookiesRequired) {
		t.Fatalf("err = %v, want ErrSecureCookiesRequired", err)
	}

	r.TLS = &tls.ConnectionState{}
	original := &http.Cookie{Name: "c", SameSite: http.SameSiteLaxMode}
	got, err := policy.ApplyCookiePolicy(r, original)
	if err != nil {
		t.Fatalf("ApplyCookiePolicy: %v", err)
	}
	if got.Domain != "portal.test" || got.SameSite != http.SameSiteStrictMode || !got.Secure {
		t.Fatalf("cookie = %+v", got)
	}
	if original.Secure || original.Domain != "" {
		t.Fatal("the input cookie must not be modified")
	}
}
