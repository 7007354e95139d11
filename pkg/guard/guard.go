package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/practicedesk/portal/pkg/access"
	"github.com/practicedesk/portal/pkg/profile"
	"github.com/practicedesk/portal/pkg/routepath"
	"github.com/practicedesk/portal/pkg/session"
	"github.com/practicedesk/portal/pkg/toast"
)

// Config configures a Guard.
type Config struct {
	// Interval is the period between scheduled checks.
	// Default: 45 minutes.
	Interval time.Duration

	// Cooldown is the minimum time between two completed checks of a session.
	// Default: 30 minutes.
	Cooldown time.Duration

	// Timeout bounds one validation. Expiry counts as a validation error.
	// Default: 5 seconds.
	Timeout time.Duration

	// AuthRoutes are path prefixes of the sign-in flow. The guard does nothing
	// while the connection is on one of them.
	// Default: /login, /forgot-password, /reset-password.
	AuthRoutes []string
}

// DefaultConfig returns the reference revalidation schedule.
func DefaultConfig() Config {
	return Config{
		Interval:   45 * time.Minute,
		Cooldown:   30 * time.Minute,
		Timeout:    5 * time.Second,
		AuthRoutes: []string{"/login", "/forgot-password", "/reset-password"},
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	} else if c.Cooldown == 0 {
		c.Cooldown = d.Cooldown
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.AuthRoutes == nil {
		c.AuthRoutes = d.AuthRoutes
	}
}

// IsAuthRoute reports whether path belongs to the sign-in flow.
func (c Config) IsAuthRoute(path string) bool {
	for _, prefix := range c.AuthRoutes {
		if routepath.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Checker validates a user. *access.Validator implements it.
type Checker interface {
	Check(ctx context.Context, userID string) (access.Decision, *profile.Profile, error)
}

// SignOuter ends a session by id. *session.Manager implements it.
type SignOuter interface {
	SignOut(ctx context.Context, sessionID string) error
}

// Observer receives guard outcomes. Results are "valid", "invalid", "error",
// "skipped" and "discarded".
type Observer interface {
	ObserveGuardCheck(result string)
	ObserveForcedSignOut()
}

// Deps are the collaborators of a Guard.
type Deps struct {
	Checker  Checker
	Sessions SignOuter
	Notifier toast.Notifier
	Observer Observer
	Logger   *slog.Logger
}

// Guard periodically revalidates the user of one live connection and signs
// the session out when access has been revoked.
//
// A Guard runs from Start until Stop, until the session signs out, or until
// the context passed to Start is done. A validation still in flight at that
// point completes but its result is discarded.
type Guard struct {
	config  Config
	sess    *session.Session
	machine *Machine
	deps    Deps
	logger  *slog.Logger

	// now is overridable for tests.
	now func() time.Time

	mu          sync.Mutex
	route       string
	started     bool
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()

	trigger chan struct{}
}

// New creates a guard for sess. machine is normally Tracker.Machine(sess.ID).
func New(sess *session.Session, machine *Machine, deps Deps, config Config) *Guard {
	config.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		config:  config,
		sess:    sess,
		machine: machine,
		deps:    deps,
		logger:  logger.With("component", "guard", "session_id", sess.ID),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// Start runs an immediate check and then one every Interval. Calling Start
// more than once has no effect.
func (g *Guard) Start(ctx context.Context) {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return
	}
	g.started = true
	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	// A sign-out after Subscribe reaches the listener; one before it leaves
	// no user.
	g.unsubscribe = g.sess.Subscribe(g.onSessionEvent)
	if uid := g.sess.UserID(); uid != "" {
		g.machine.Attach(uid)
	} else {
		g.machine.Detach()
		g.mu.Lock()
		g.cancel()
		g.mu.Unlock()
	}

	go g.run(ctx, done)
}

// Stop cancels the schedule and waits for the guard goroutine to exit.
func (g *Guard) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the guard has stopped. It is nil before Start.
func (g *Guard) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// SetRoute records the connection's current path. Leaving the sign-in flow
// triggers a check.
func (g *Guard) SetRoute(path string) {
	g.mu.Lock()
	wasAuth := g.config.IsAuthRoute(g.route)
	g.route = path
	g.mu.Unlock()

	if wasAuth && !g.config.IsAuthRoute(path) {
		g.Trigger()
	}
}

// Route returns the connection's current path.
func (g *Guard) Route() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.route
}

// Trigger requests a check. Requests made while one is pending coalesce, and
// the check is still subject to the cooldown.
func (g *Guard) Trigger() {
	select {
	case g.trigger <- struct{}{}:
	default:
	}
}

func (g *Guard) onSessionEvent(ev session.Event, s *session.Session) {
	switch ev {
	case session.SignedOut:
		g.machine.Detach()
		g.mu.Lock()
		cancel := g.cancel
		g.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	case session.SignedIn:
		g.machine.Attach(s.UserID())
		g.Trigger()
	}
}

func (g *Guard) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if g.unsubscribe != nil {
			g.unsubscribe()
		}
	}()

	g.check(ctx)

	ticker := time.NewTicker(g.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.check(ctx)
		case <-g.trigger:
			g.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Guard) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if g.config.IsAuthRoute(g.Route()) {
		return
	}

	userID := g.sess.UserID()
	if userID == "" {
		g.machine.Detach()
		return
	}
	g.machine.Attach(userID)

	ticket, ok := g.machine.Begin(g.now(), g.config.Cooldown)
	if !ok {
		g.observe("skipped")
		return
	}

	d, p, err := g.validate(ctx, ticket.UserID)

	if ctx.Err() != nil {
		g.machine.Abort(ticket)
		g.observe("discarded")
		return
	}

	v := g.machine.Complete(ticket, d, err, g.now())
	if v.Discarded {
		g.observe("discarded")
		return
	}

	switch {
	case err != nil:
		g.logger.Warn("access validation failed", "user_id", ticket.UserID, "error", err)
		g.observe("error")
	case d.Valid:
		if p != nil {
			g.sess.StoreProfile(ticket.UserID, p)
		}
		g.observe("valid")
		return
	default:
		g.logger.Info("access revoked", "user_id", ticket.UserID, "reason", d.Reason)
		g.observe("invalid")
	}

	if v.Notify && g.deps.Notifier != nil {
		if nerr := g.deps.Notifier.Notify(ctx, v.Message); nerr != nil {
			g.logger.Warn("failed to notify user", "error", nerr)
		}
	}
	if v.SignOut {
		g.forceSignOut(ctx)
	}
}

func (g *Guard) validate(ctx context.Context, userID string) (d access.Decision, p *profile.Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, p, err = access.Decision{}, nil, fmt.Errorf("validator panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()
	return g.deps.Checker.Check(ctx, userID)
}

func (g *Guard) forceSignOut(ctx context.Context) {
	if g.deps.Observer != nil {
		g.deps.Observer.ObserveForcedSignOut()
	}
	// The sign-out cancels ctx through the session listener, so it must not
	// depend on it.
	signCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.Timeout)
	defer cancel()
	if err := g.deps.Sessions.SignOut(signCtx, g.sess.ID); err != nil {
		g.logger.Error("forced sign-out failed", "error", err)
	}
}

func (g *Guard) observe(result string) {
	if g.deps.Observer != nil {
		g.deps.Observer.ObserveGuardCheck(result)
	}
}
