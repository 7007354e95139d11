package guard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/practicedesk/portal/pkg/access"
	"github.com/practicedesk/portal/pkg/auth"
	"github.com/practicedesk/portal/pkg/profile"
	"github.com/practicedesk/portal/pkg/session"
	"github.com/practicedesk/portal/pkg/toast"
)

type checkerFunc func(ctx context.Context, userID string) (access.Decision, *profile.Profile, error)

func (f checkerFunc) Check(ctx context.Context, userID string) (access.Decision, *profile.Profile, error) {
	return f(ctx, userID)
}

type countingChecker struct {
	mu    sync.Mutex
	calls int
	next  Checker
}

func (c *countingChecker) Check(ctx context.Context, userID string) (access.Decision, *profile.Profile, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.next.Check(ctx, userID)
}

func (c *countingChecker) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingObserver struct {
	mu       sync.Mutex
	results  map[string]int
	signOuts int
}

func (o *recordingObserver) ObserveGuardCheck(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		o.results = make(map[string]int)
	}
	o.results[result]++
}

func (o *recordingObserver) ObserveForcedSignOut() {
	o.mu.Lock()
	o.signOuts++
	o.mu.Unlock()
}

func (o *recordingObserver) count(result string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.results[result]
}

type fixture struct {
	mgr      *session.Manager
	sess     *session.Session
	profiles *profile.MemorySource
	toasts   *toast.Recorder
	observer *recordingObserver
}

func newFixture(t *testing.T, active bool) *fixture {
	t.Helper()
	cfg := session.DefaultManagerConfig()
	cfg.CleanupInterval = time.Hour
	mgr := session.NewManager(session.NewMemoryStore(), nil, cfg, nil)
	t.Cleanup(func() { mgr.Close() })

	sess, err := mgr.Create(context.Background(), auth.Identity{UserID: "u-1", Email: "ca@firm.test"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return &fixture{
		mgr:  mgr,
		sess: sess,
		profiles: profile.NewMemorySource(
			&profile.Profile{ID: "u-1", Role: profile.RoleStaff, IsActive: active},
		),
		toasts:   &toast.Recorder{},
		observer: &recordingObserver{},
	}
}

func (f *fixture) deps(checker Checker) Deps {
	if checker == nil {
		checker = access.NewValidator(f.profiles)
	}
	return Deps{
		Checker:  checker,
		Sessions: f.mgr,
		Notifier: f.toasts,
		Observer: f.observer,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, g *Guard) {
	t.Helper()
	select {
	case <-g.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("guard did not stop")
	}
}

func TestGuard_ValidSessionKeepsRunning(t *testing.T) {
	f := newFixture(t, true)
	g := New(f.sess, NewMachine(), f.deps(nil), DefaultConfig())
	g.Start(context.Background())
	defer g.Stop()

	waitFor(t, "valid check", func() bool { return f.observer.count("valid") == 1 })

	if !f.sess.SignedIn() {
		t.Fatal("a valid session must stay signed in")
	}
	if f.toasts.Len() != 0 {
		t.Fatalf("toasts = %d, want 0", f.toasts.Len())
	}
	if p := f.sess.Profile(); p == nil || p.Role != profile.RoleStaff {
		t.Fatalf("profile not cached after a valid check: %+v", p)
	}
}

func TestGuard_RevokedAccessSignsOut(t *testing.T) {
	f := newFixture(t, false)
	g := New(f.sess, NewMachine(), f.deps(nil), DefaultConfig())
	g.Start(context.Background())

	waitDone(t, g)

	if f.sess.SignedIn() {
		t.Fatal("revoked session must be signed out")
	}
	msgs := f.toasts.Messages()
	if len(msgs) != 1 {
		t.Fatalf("toasts = %d, want 1", len(msgs))
	}
	if msgs[0].Text != access.ReasonInactive || msgs[0].Severity != toast.Error {
		t.Fatalf("toast = %+v", msgs[0])
	}
	if f.observer.count("invalid") != 1 || f.observer.signOuts != 1 {
		t.Fatalf("observer = %+v", f.observer.results)
	}
	if _, err := f.mgr.Get(context.Background(), f.sess.ID); err == nil {
		t.Fatal("session record must be deleted")
	}
}

func TestGuard_ValidatorPanicUsesGenericMessage(t *testing.T) {
	f := newFixture(t, true)
	panicking := checkerFunc(func(context.Context, string) (access.Decision, *profile.Profile, error) {
		panic("driver bug")
	})
	g := New(f.sess, NewMachine(), f.deps(panicking), DefaultConfig())
	g.Start(context.Background())

	waitDone(t, g)

	msgs := f.toasts.Messages()
	if len(msgs) != 1 || msgs[0].Text != GenericFailureMessage {
		t.Fatalf("toasts = %+v", msgs)
	}
	if f.sess.SignedIn() {
		t.Fatal("a failed validation must sign the session out")
	}
	if f.observer.count("error") != 1 {
		t.Fatalf("observer = %+v", f.observer.results)
	}
}

func TestGuard_TimeoutCountsAsError(t *testing.T) {
	f := newFixture(t, true)
	slow := checkerFunc(func(ctx context.Context, _ string) (access.Decision, *profile.Profile, error) {
		<-ctx.Done()
		return access.Decision{}, nil, ctx.Err()
	})
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	g := New(f.sess, NewMachine(), f.deps(slow), cfg)
	g.Start(context.Background())

	waitDone(t, g)

	msgs := f.toasts.Messages()
	if len(msgs) != 1 || msgs[0].Text != GenericFailureMessage {
		t.Fatalf("toasts = %+v", msgs)
	}
}

func TestGuard_TriggersWithinCooldownValidateOnce(t *testing.T) {
	f := newFixture(t, true)
	checker := &countingChecker{next: access.NewValidator(f.profiles)}
	g := New(f.sess, NewMachine(), f.deps(checker), DefaultConfig())
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	g.Start(context.Background())
	defer g.Stop()

	waitFor(t, "first check", func() bool { return f.observer.count("valid") == 1 })

	g.Trigger()
	waitFor(t, "skipped check", func() bool { return f.observer.count("skipped") >= 1 })

	if got := checker.Calls(); got != 1 {
		t.Fatalf("validation calls = %d, want 1", got)
	}
}

func TestGuard_AuthRouteDisablesChecks(t *testing.T) {
	f := newFixture(t, true)
	checker := &countingChecker{next: access.NewValidator(f.profiles)}
	g := New(f.sess, NewMachine(), f.deps(checker), DefaultConfig())
	g.SetRoute("/reset-password")
	g.Start(context.Background())
	defer g.Stop()

	g.Trigger()
	time.Sleep(50 * time.Millisecond)
	if got := checker.Calls(); got != 0 {
		t.Fatalf("validation calls on an auth route = %d, want 0", got)
	}

	g.SetRoute("/dashboard")
	waitFor(t, "check after leaving the auth flow", func() bool { return checker.Calls() == 1 })
}

func TestGuard_StopDiscardsInFlightResult(t *testing.T) {
	f := newFixture(t, true)
	entered := make(chan struct{})
	blocking := checkerFunc(func(ctx context.Context, _ string) (access.Decision, *profile.Profile, error) {
		close(entered)
		<-ctx.Done()
		return access.Deny(access.ReasonInactive), nil, nil
	})
	g := New(f.sess, NewMachine(), f.deps(blocking), DefaultConfig())
	g.Start(context.Background())

	<-entered
	g.Stop()

	if f.toasts.Len() != 0 {
		t.Fatalf("toasts = %d, want 0 for a discarded result", f.toasts.Len())
	}
	if !f.sess.SignedIn() {
		t.Fatal("a discarded result must not sign the session out")
	}
	if f.observer.count("discarded") != 1 {
		t.Fatalf("observer = %+v", f.observer.results)
	}
}

func TestGuard_ExternalSignOutStopsGuard(t *testing.T) {
	f := newFixture(t, true)
	machine := NewMachine()
	g := New(f.sess, machine, f.deps(nil), DefaultConfig())
	g.Start(context.Background())

	waitFor(t, "first check", func() bool { return f.observer.count("valid") == 1 })
	if err := f.mgr.SignOut(context.Background(), f.sess.ID); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	waitDone(t, g)
	if machine.State() != Idle {
		t.Fatalf("machine state = %s, want idle", machine.State())
	}
}

func TestGuard_StartAfterSignOutStops(t *testing.T) {
	f := newFixture(t, true)
	checker := &countingChecker{next: access.NewValidator(f.profiles)}
	machine := NewMachine()
	g := New(f.sess, machine, f.deps(checker), DefaultConfig())

	if err := f.mgr.SignOut(context.Background(), f.sess.ID); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	g.Start(context.Background())

	waitDone(t, g)
	if got := checker.Calls(); got != 0 {
		t.Fatalf("validation calls = %d, want 0 for a signed-out session", got)
	}
	if machine.State() != Idle {
		t.Fatalf("machine state = %s, want idle", machine.State())
	}
}

func TestGuard_SharedMachineNotifiesOnce(t *testing.T) {
	f := newFixture(t, false)
	tracker := NewTracker()
	gate := make(chan struct{})
	validator := access.NewValidator(f.profiles)
	gated := checkerFunc(func(ctx context.Context, userID string) (access.Decision, *profile.Profile, error) {
		<-gate
		return validator.Check(ctx, userID)
	})

	// Two connections of the same session.
	first := New(f.sess, tracker.Machine(f.sess.ID), f.deps(gated), DefaultConfig())
	second := New(f.sess, tracker.Machine(f.sess.ID), f.deps(gated), DefaultConfig())
	first.Start(context.Background())
	second.Start(context.Background())
	close(gate)

	waitDone(t, first)
	waitDone(t, second)

	if f.toasts.Len() != 1 {
		t.Fatalf("toasts = %d, want 1", f.toasts.Len())
	}
}

func TestConfig_IsAuthRoute(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		path string
		want bool
	}{
		{"/login", true},
		{"/reset-password", true},
		{"/reset-password/confirm", true},
		{"/forgot-password", true},
		{"/loginx", false},
		{"/dashboard", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := cfg.IsAuthRoute(tt.path); got != tt.want {
			t.Errorf("IsAuthRoute(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
