package portal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/practicedesk/portal/pkg/access"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FlagKey is the settings key holding the portal switch.
const FlagKey = "is_portal_active"

// Policy is the failure policy of the portal flag. A flag store outage must
// never lock every user out of the portal, so unknown means active.
const Policy = access.FailOpen

// StatusConfig configures a Status poller.
type StatusConfig struct {
	// Key is the flag key. Default: FlagKey.
	Key string

	// Interval is the polling period. Default: 30 seconds.
	Interval time.Duration

	// Retries is the number of extra attempts per poll after a failure.
	// Default: 1. A negative value disables retries.
	Retries int

	// RetryDelay is the pause before a retry. Default: 1 second.
	RetryDelay time.Duration

	// Timeout bounds one fetch attempt. Default: 5 seconds.
	Timeout time.Duration
}

// DefaultStatusConfig returns the reference polling behavior.
func DefaultStatusConfig() StatusConfig {
	return StatusConfig{
		Key:        FlagKey,
		Interval:   30 * time.Second,
		Retries:    1,
		RetryDelay: time.Second,
		Timeout:    5 * time.Second,
	}
}

func (c *StatusConfig) applyDefaults() {
	d := DefaultStatusConfig()
	if c.Key == "" {
		c.Key = d.Key
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	switch {
	case c.Retries == 0:
		c.Retries = d.Retries
	case c.Retries < 0:
		c.Retries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
}

// Observer receives one call per finished poll with result "ok" or "error".
type Observer interface {
	ObservePortalPoll(result string)
}

// Status tracks whether the non-admin portal is enabled by polling a flag.
//
// On error the last successfully observed value is kept. Before any value has
// been observed, Active reports true.
type Status struct {
	source   FlagSource
	config   StatusConfig
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer

	mu       sync.RWMutex
	value    bool
	observed bool
	loaded   bool
	lastErr  error
	lastPoll time.Time

	pollMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// sleep waits between attempts; overridable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// StatusOption configures a Status.
type StatusOption func(*Status)

// WithStatusLogger sets the logger.
func WithStatusLogger(l *slog.Logger) StatusOption {
	return func(s *Status) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStatusObserver registers a poll observer.
func WithStatusObserver(o Observer) StatusOption {
	return func(s *Status) {
		s.observer = o
	}
}

// NewStatus creates a poller over source. Call Start to begin polling.
func NewStatus(source FlagSource, cfg StatusConfig, opts ...StatusOption) *Status {
	cfg.applyDefaults()
	s := &Status{
		source: source,
		config: cfg,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/practicedesk/portal/pkg/portal"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "portal_status", "key", cfg.Key)
	return s
}

// Active reports whether the portal is enabled for non-admin users.
func (s *Status) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked()
}

// Snapshot returns the current value and whether a first poll has finished.
// Until loaded is true the value is only the fail-open default.
func (s *Status) Snapshot() (active, loaded bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(), s.loaded
}

// LastError returns the error of the most recent failed poll, or nil if the
// most recent poll succeeded.
func (s *Status) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Status) activeLocked() bool {
	if !s.observed {
		return true
	}
	return s.value
}

// Refresh polls the flag now, retrying up to Retries times. The error of the
// last attempt is returned; the observable state never reports it.
func (s *Status) Refresh(ctx context.Context) error {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "portal.refresh")
	defer span.End()

	var (
		value *bool
		err   error
	)
	attempts := 1 + s.config.Retries
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if serr := s.sleep(ctx, s.config.RetryDelay); serr != nil {
				err = serr
				break
			}
		}
		value, err = s.fetch(ctx)
		if err == nil {
			break
		}
	}

	s.mu.Lock()
	s.loaded = true
	s.lastPoll = time.Now()
	if err == nil {
		s.observed = true
		s.value = value == nil || *value
		s.lastErr = nil
	} else {
		s.lastErr = err
	}
	active := s.activeLocked()
	s.mu.Unlock()

	span.SetAttributes(attribute.Bool("portal.active", active))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "flag fetch failed")
		s.logger.Warn("portal flag fetch failed, keeping last value",
			"error", err,
			"active", active,
			"attempts", attempts)
		s.observe("error")
		return err
	}
	s.observe("ok")
	return nil
}

func (s *Status) fetch(ctx context.Context) (*bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	return s.source.FetchFlag(ctx, s.config.Key)
}

func (s *Status) observe(result string) {
	if s.observer != nil {
		s.observer.ObservePortalPoll(result)
	}
}

// Start polls once immediately and then every Interval until Stop is called
// or ctx is done. Calling Start on a running poller is a no-op.
func (s *Status) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.pollLoop(ctx, s.done)
}

// Stop halts polling and waits for an in-flight poll to return.
func (s *Status) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Status) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	_ = s.Refresh(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
