package config

import (
	"encoding/json"
	stderrors "errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/practicedesk/portal/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "portal.json"

	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"

	// DefaultBaseURL is the default public URL used in reset links.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultServiceName is reported to the trace collector.
	DefaultServiceName = "practicedesk-portal"

	// MinSigningKeyLen is the minimum signing key length in bytes.
	MinSigningKeyLen = 32
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config is the complete portal configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `json:"addr,omitempty" env:"PORTAL_ADDR"`

	// BaseURL is the public URL of the portal.
	BaseURL string `json:"baseURL,omitempty" env:"PORTAL_BASE_URL"`

	// SigningKey signs reset tokens. Prefer the environment variable.
	SigningKey string `json:"signingKey,omitempty" env:"PORTAL_SIGNING_KEY"`

	Database  DatabaseConfig  `json:"database,omitempty"`
	Redis     RedisConfig     `json:"redis,omitempty"`
	Session   SessionConfig   `json:"session,omitempty"`
	Portal    PortalConfig    `json:"portal,omitempty"`
	Access    AccessConfig    `json:"access,omitempty"`
	Guard     GuardConfig     `json:"guard,omitempty"`
	Gate      GateConfig      `json:"gate,omitempty"`
	Live      LiveConfig      `json:"live,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Log       LogConfig       `json:"log,omitempty"`

	configPath string
}

// DatabaseConfig configures Postgres.
type DatabaseConfig struct {
	// URL is a pgx connection string. Empty runs without Postgres.
	URL string `json:"url,omitempty" env:"DATABASE_URL"`

	// ProfilesTable holds user profiles. Default: "profiles".
	ProfilesTable string `json:"profilesTable,omitempty" env:"PORTAL_PROFILES_TABLE"`

	// SettingsTable holds the portal flag. Default: "app_settings".
	SettingsTable string `json:"settingsTable,omitempty" env:"PORTAL_SETTINGS_TABLE"`
}

// RedisConfig configures Redis.
type RedisConfig struct {
	// Addr is host:port. Empty runs without Redis.
	Addr     string `json:"addr,omitempty" env:"REDIS_ADDR"`
	Password string `json:"password,omitempty" env:"REDIS_PASSWORD"`
	DB       int    `json:"db,omitempty" env:"REDIS_DB"`

	// Prefix namespaces session keys.
	Prefix string `json:"prefix,omitempty" env:"PORTAL_REDIS_PREFIX"`
}

// SessionConfig configures sessions and the session cookie.
type SessionConfig struct {
	// Store is "memory" or "redis". Default: "redis" when Redis.Addr is
	// set, otherwise "memory".
	Store string `json:"store,omitempty" env:"PORTAL_SESSION_STORE"`

	TTL           Duration `json:"ttl,omitempty" env:"PORTAL_SESSION_TTL"`
	ProfileMaxAge Duration `json:"profileMaxAge,omitempty" env:"PORTAL_PROFILE_MAX_AGE"`
	CookieName    string   `json:"cookieName,omitempty" env:"PORTAL_COOKIE_NAME"`

	// SecureCookies refuses to set the cookie over plain HTTP.
	SecureCookies bool `json:"secureCookies,omitempty" env:"PORTAL_SECURE_COOKIES"`

	// TrustedProxies are IPs or CIDRs whose X-Forwarded-Proto is believed.
	TrustedProxies []string `json:"trustedProxies,omitempty" env:"PORTAL_TRUSTED_PROXIES" envSeparator:","`
}

// PortalConfig configures the portal-active poller.
type PortalConfig struct {
	// FlagSource is "postgres", "redis" or "memory". Default: the first
	// configured backend in that order.
	FlagSource   string   `json:"flagSource,omitempty" env:"PORTAL_FLAG_SOURCE"`
	PollInterval Duration `json:"pollInterval,omitempty" env:"PORTAL_POLL_INTERVAL"`
	Timeout      Duration `json:"timeout,omitempty" env:"PORTAL_POLL_TIMEOUT"`
}

// AccessConfig configures the access validator.
type AccessConfig struct {
	Timeout Duration `json:"timeout,omitempty" env:"PORTAL_ACCESS_TIMEOUT"`
}

// GuardConfig configures periodic revalidation.
type GuardConfig struct {
	Interval Duration `json:"interval,omitempty" env:"PORTAL_GUARD_INTERVAL"`
	Cooldown Duration `json:"cooldown,omitempty" env:"PORTAL_GUARD_COOLDOWN"`
	Timeout  Duration `json:"timeout,omitempty" env:"PORTAL_GUARD_TIMEOUT"`
}

// GateConfig configures protected routes.
type GateConfig struct {
	FetchTimeout Duration `json:"fetchTimeout,omitempty" env:"PORTAL_GATE_FETCH_TIMEOUT"`
	RetryAfter   Duration `json:"retryAfter,omitempty" env:"PORTAL_GATE_RETRY_AFTER"`

	// DisableSuperAdminBypass makes super admins subject to role lists.
	DisableSuperAdminBypass bool `json:"disableSuperAdminBypass,omitempty" env:"PORTAL_DISABLE_SUPER_ADMIN_BYPASS"`
}

// LiveConfig configures the live connection endpoint.
type LiveConfig struct {
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty" env:"PORTAL_LIVE_HEARTBEAT"`

	// ForgetAfter is how long revalidation state outlives the last
	// connection of a session.
	ForgetAfter Duration `json:"forgetAfter,omitempty" env:"PORTAL_LIVE_FORGET_AFTER"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	// OTLPEndpoint is an OTLP/HTTP URL. Empty disables export.
	OTLPEndpoint string  `json:"otlpEndpoint,omitempty" env:"PORTAL_OTEL_ENDPOINT"`
	ServiceName  string  `json:"serviceName,omitempty" env:"PORTAL_OTEL_SERVICE_NAME"`
	SampleRatio  float64 `json:"sampleRatio,omitempty" env:"PORTAL_OTEL_SAMPLE_RATIO"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `json:"level,omitempty" env:"PORTAL_LOG_LEVEL"`

	// Format is text or json. Default: text.
	Format string `json:"format,omitempty" env:"PORTAL_LOG_FORMAT"`
}

// New creates a Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads portal.json from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No " + ConfigFileName + " found at " + path).
				WithSuggestion("Create the file or pass --config \"\" to run from the environment only")
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		var derr *DurationError
		if stderrors.As(err, &derr) {
			return nil, errors.New("E121").
				WithDetail(derr.Error()).
				WithSuggestion("Use a Go duration such as \"45m\" or \"5s\"")
		}
		return nil, errors.New("E120").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// Resolve loads path (skipped when empty), applies environment overrides
// from environ (nil means the process environment) and validates the result.
func Resolve(path string, environ map[string]string) (*Config, error) {
	cfg := New()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(environ); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. Unset variables
// leave fields untouched.
func (c *Config) ApplyEnv(environ map[string]string) error {
	if err := env.ParseWithOptions(c, env.Options{Environment: environ}); err != nil {
		return errors.New("E124").Wrap(err)
	}
	c.applyDefaults()
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path. The signing key is never written.
func (c *Config) SaveTo(path string) error {
	out := *c
	out.SigningKey = ""
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return errors.New("E120").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.New("E120").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.Database.ProfilesTable == "" {
		c.Database.ProfilesTable = "profiles"
	}
	if c.Database.SettingsTable == "" {
		c.Database.SettingsTable = "app_settings"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "portal:session:"
	}

	if c.Session.Store == "" {
		c.Session.Store = StoreMemory
		if c.Redis.Addr != "" {
			c.Session.Store = StoreRedis
		}
	}
	defaultDuration(&c.Session.TTL, 24*time.Hour)
	defaultDuration(&c.Session.ProfileMaxAge, 5*time.Minute)
	if c.Session.CookieName == "" {
		c.Session.CookieName = "portal_session"
	}

	if c.Portal.FlagSource == "" {
		switch {
		case c.Database.URL != "":
			c.Portal.FlagSource = StorePostgres
		case c.Redis.Addr != "":
			c.Portal.FlagSource = StoreRedis
		default:
			c.Portal.FlagSource = StoreMemory
		}
	}
	defaultDuration(&c.Portal.PollInterval, 30*time.Second)
	defaultDuration(&c.Portal.Timeout, 5*time.Second)

	defaultDuration(&c.Access.Timeout, 5*time.Second)

	defaultDuration(&c.Guard.Interval, 45*time.Minute)
	defaultDuration(&c.Guard.Cooldown, 30*time.Minute)
	defaultDuration(&c.Guard.Timeout, 5*time.Second)

	defaultDuration(&c.Gate.FetchTimeout, 5*time.Second)
	defaultDuration(&c.Gate.RetryAfter, 2*time.Second)

	defaultDuration(&c.Live.HeartbeatInterval, 30*time.Second)
	defaultDuration(&c.Live.ForgetAfter, 30*time.Minute)

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func defaultDuration(d *Duration, v time.Duration) {
	if *d == 0 {
		*d = Duration(v)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.New("E122").
			WithDetail(c.Addr + ": " + err.Error()).
			WithSuggestion("Use a form such as \":8080\" or \"127.0.0.1:8080\"")
	}
	if len(c.SigningKey) < MinSigningKeyLen {
		return errors.New("E123").
			WithSuggestion("Set PORTAL_SIGNING_KEY, for example with: openssl rand -hex 32")
	}

	switch c.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("E125").WithDetail("session.store is redis but redis.addr is empty")
		}
	default:
		return errors.New("E125").WithDetail("session.store: " + c.Session.Store)
	}

	switch c.Portal.FlagSource {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("E125").WithDetail("portal.flagSource is redis but redis.addr is empty")
		}
	case StorePostgres:
		if c.Database.URL == "" {
			return errors.New("E125").WithDetail("portal.flagSource is postgres but database.url is empty")
		}
	default:
		return errors.New("E125").WithDetail("portal.flagSource: " + c.Portal.FlagSource)
	}

	for _, entry := range c.Session.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return errors.New("E126").WithDetail(entry)
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return errors.New("E126").WithDetail(entry)
		}
	}

	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return errors.Newf(errors.CategoryConfig, "telemetry.sampleRatio must be within [0, 1]")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.CategoryConfig, "log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Newf(errors.CategoryConfig, "log.format %q is not text or json", c.Log.Format)
	}
	return nil
}

// HasDatabase reports whether Postgres is configured.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasRedis reports whether Redis is configured.
func (c *Config) HasRedis() bool {
	return c.Redis.Addr != ""
}

// ResetURL returns the page reset links point at.
func (c *Config) ResetURL() string {
	return c.BaseURL + "/reset-password"
}
