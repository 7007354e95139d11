package sessionauth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// ErrSecureCookiesRequired is returned when secure cookies are enforced but
// the request did not arrive over TLS.
var ErrSecureCookiesRequired = errors.New("sessionauth: secure cookies require an HTTPS request")

// SecurePolicy is the production CookiePolicy. It marks cookies Secure when
// the request arrived over TLS, directly or through a trusted proxy that sets
// Forwarded or X-Forwarded-Proto.
type SecurePolicy struct {
	// Require refuses to issue cookies over plain HTTP.
	Require bool

	// Domain is set on every cookie when non-empty.
	Domain string

	// SameSite overrides the cookie's SameSite mode when non-zero.
	SameSite http.SameSite

	trusted *proxyMatcher
}

// NewSecurePolicy returns a policy trusting forwarded headers from
// trustedProxies (IPs or CIDRs). Invalid entries are logged and skipped.
func NewSecurePolicy(require bool, trustedProxies []string, logger *slog.Logger) *SecurePolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurePolicy{
		Require: require,
		trusted: newProxyMatcher(trustedProxies, logger),
	}
}

// ApplyCookiePolicy implements CookiePolicy.
func (p *SecurePolicy) ApplyCookiePolicy(r *http.Request, cookie *http.Cookie) (*http.Cookie, error) {
	out := *cookie
	secure := p.isRequestSecure(r)
	if p.Require && !secure {
		return nil, ErrSecureCookiesRequired
	}
	out.Secure = secure
	if p.Domain != "" {
		out.Domain = p.Domain
	}
	if p.SameSite != 0 {
		out.SameSite = p.SameSite
	}
	return &out, nil
}

func (p *SecurePolicy) isRequestSecure(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if !p.trusted.IsTrusted(remoteIP(r)) {
		return false
	}
	if proto := forwardedProto(r.Header.Get("Forwarded")); proto != "" {
		return isSecureProto(proto)
	}
	if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		return isSecureProto(proto)
	}
	return false
}

func forwardedProto(header string) string {
	first, _, _ := strings.Cut(header, ",")
	for _, param := range strings.Split(first, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(key, "proto") {
			return strings.ToLower(strings.Trim(strings.TrimSpace(value), `"`))
		}
	}
	return ""
}

func firstValue(header string) string {
	first, _, _ := strings.Cut(header, ",")
	return strings.ToLower(strings.Trim(strings.TrimSpace(first), `"`))
}

func isSecureProto(proto string) bool {
	return proto == "https" || proto == "wss"
}

func remoteIP(r *http.Request) net.IP {
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if zone := strings.Index(host, "%"); zone != -1 {
		host = host[:zone]
	}
	return net.ParseIP(host)
}

type proxyMatcher struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

func newProxyMatcher(entries []string, logger *slog.Logger) *proxyMatcher {
	m := &proxyMatcher{ips: make(map[string]struct{})}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn("invalid trusted proxy CIDR", "entry", entry, "error", err)
				continue
			}
			m.nets = append(m.nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			logger.Warn("invalid trusted proxy IP", "entry", entry)
			continue
		}
		m.ips[ip.String()] = struct{}{}
	}
	return m
}

func (m *proxyMatcher) IsTrusted(ip net.IP) bool {
	if m == nil || ip == nil {
		return false
	}
	if _, ok := m.ips[ip.String()]; ok {
		return true
	}
	for _, network := range m.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
