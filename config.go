package portal

import (
	"log/slog"
	"time"

	fileconfig "github.com/practicedesk/portal/internal/config"
	"github.com/practicedesk/portal/pkg/access"
	"github.com/practicedesk/portal/pkg/guard"
	"github.com/practicedesk/portal/pkg/live"
	portalstatus "github.com/practicedesk/portal/pkg/portal"
	"github.com/practicedesk/portal/pkg/routeguard"
	"github.com/practicedesk/portal/pkg/session"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the application configuration.
type Config struct {
	// BaseURL is the public URL of the portal. Password reset links point
	// at BaseURL + "/reset-password".
	BaseURL string

	// Cookie configures the session cookie.
	Cookie CookieConfig

	// Session configures session lifetime and the profile cache.
	Session session.ManagerConfig

	// AccessTimeout bounds one profile fetch during validation.
	// Default: access.DefaultTimeout.
	AccessTimeout time.Duration

	// Status configures the portal-active poller.
	Status portalstatus.StatusConfig

	// Gate configures protected routes.
	Gate routeguard.Config

	// Live configures the live endpoint, including the revalidation schedule
	// in Live.Guard.
	Live live.Config

	// Logger is the structured logger for the application.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	// Name defaults to "portal_session".
	Name string

	// Secure refuses to set the cookie on plain HTTP requests.
	Secure bool

	// TrustedProxies are IPs or CIDRs whose X-Forwarded-Proto is believed.
	TrustedProxies []string
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       fileconfig.DefaultBaseURL,
		Cookie:        CookieConfig{Name: "portal_session"},
		Session:       session.DefaultManagerConfig(),
		AccessTimeout: access.DefaultTimeout,
		Status:        portalstatus.DefaultStatusConfig(),
		Gate:          routeguard.DefaultConfig(),
		Live:          live.DefaultConfig(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Cookie.Name == "" {
		c.Cookie.Name = d.Cookie.Name
	}
	if c.AccessTimeout <= 0 {
		c.AccessTimeout = d.AccessTimeout
	}
	// The remaining sections apply their own defaults.
}

// ConfigFromFile converts a loaded configuration file into a Config.
func ConfigFromFile(fc *fileconfig.Config) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = fc.BaseURL
	cfg.Cookie = CookieConfig{
		Name:           fc.Session.CookieName,
		Secure:         fc.Session.SecureCookies,
		TrustedProxies: fc.Session.TrustedProxies,
	}

	cfg.Session.TTL = fc.Session.TTL.Std()
	cfg.Session.ProfileMaxAge = fc.Session.ProfileMaxAge.Std()

	cfg.AccessTimeout = fc.Access.Timeout.Std()

	cfg.Status.Interval = fc.Portal.PollInterval.Std()
	cfg.Status.Timeout = fc.Portal.Timeout.Std()

	cfg.Gate.FetchTimeout = fc.Gate.FetchTimeout.Std()
	cfg.Gate.RetryAfter = fc.Gate.RetryAfter.Std()
	cfg.Gate.Rules.SuperAdminBypass = !fc.Gate.DisableSuperAdminBypass

	cfg.Live.HeartbeatInterval = fc.Live.HeartbeatInterval.Std()
	cfg.Live.ForgetAfter = fc.Live.ForgetAfter.Std()
	cfg.Live.SignInPath = cfg.Gate.Destinations.SignIn
	cfg.Live.Guard = guard.Config{
		Interval: fc.Guard.Interval.Std(),
		Cooldown: fc.Guard.Cooldown.Std(),
		Timeout:  fc.Guard.Timeout.Std(),
	}
	return cfg
}
