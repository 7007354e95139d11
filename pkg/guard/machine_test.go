package guard

import (
	"errors"
	"testing"
	"time"

	"github.com/practicedesk/portal/pkg/access"
)

var (
	t0       = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	cooldown = 30 * time.Minute
	inactive = access.Deny(access.ReasonInactive)
)

func TestMachine_Transitions(t *testing.T) {
	m := NewMachine()
	if m.State() != Idle {
		t.Fatalf("new machine state = %s, want idle", m.State())
	}
	if _, ok := m.Begin(t0, cooldown); ok {
		t.Fatal("Begin must fail while idle")
	}

	m.Attach("u-1")
	if m.State() != Scheduled {
		t.Fatalf("state = %s, want scheduled", m.State())
	}

	ticket, ok := m.Begin(t0, cooldown)
	if !ok || m.State() != Validating {
		t.Fatalf("Begin = %v, state = %s", ok, m.State())
	}
	if _, ok := m.Begin(t0, cooldown); ok {
		t.Fatal("re-entrant Begin while validating must be a no-op")
	}

	v := m.Complete(ticket, access.Allow, nil, t0)
	if v.Notify || v.SignOut || v.Discarded || m.State() != Scheduled {
		t.Fatalf("valid verdict = %+v, state = %s", v, m.State())
	}

	ticket, ok = m.Begin(t0.Add(cooldown), cooldown)
	if !ok {
		t.Fatal("Begin after cooldown must succeed")
	}
	v = m.Complete(ticket, inactive, nil, t0.Add(cooldown))
	if !v.Notify || !v.SignOut || m.State() != FailedOnce {
		t.Fatalf("invalid verdict = %+v, state = %s", v, m.State())
	}
	if v.Message.Text != access.ReasonInactive || v.Message.Title != NotificationTitle {
		t.Fatalf("message = %+v", v.Message)
	}

	m.Detach()
	if m.State() != Idle || m.UserID() != "" {
		t.Fatalf("after Detach state = %s user = %q", m.State(), m.UserID())
	}
}

func TestMachine_Debounce(t *testing.T) {
	m := NewMachine()
	m.Attach("u-1")

	calls := 0
	for _, at := range []time.Time{t0, t0.Add(10 * time.Minute), t0.Add(29 * time.Minute)} {
		ticket, ok := m.Begin(at, cooldown)
		if !ok {
			continue
		}
		calls++
		m.Complete(ticket, access.Allow, nil, at)
	}
	if calls != 1 {
		t.Fatalf("validations = %d, want 1 for triggers inside the cooldown", calls)
	}
}

func TestMachine_OneNotificationPerFailedSession(t *testing.T) {
	m := NewMachine()
	m.Attach("u-1")

	notifications := 0
	now := t0
	for i := 0; i < 5; i++ {
		ticket, ok := m.Begin(now, cooldown)
		if !ok {
			t.Fatalf("Begin %d refused", i)
		}
		v := m.Complete(ticket, inactive, nil, now)
		if !v.SignOut {
			t.Fatalf("failure %d must request a sign-out", i)
		}
		if v.Notify {
			notifications++
		}
		now = now.Add(cooldown)
	}
	if notifications != 1 {
		t.Fatalf("notifications = %d, want 1", notifications)
	}

	// New session: one success, then one failure.
	m.Detach()
	m.Attach("u-2")
	ticket, _ := m.Begin(now, cooldown)
	m.Complete(ticket, access.Allow, nil, now)
	now = now.Add(cooldown)
	ticket, _ = m.Begin(now, cooldown)
	if v := m.Complete(ticket, inactive, nil, now); v.Notify {
		notifications++
	}
	if notifications != 2 {
		t.Fatalf("notifications = %d, want 2 across the session change", notifications)
	}
}

func TestMachine_FlagSurvivesSessionChangeWithoutSuccess(t *testing.T) {
	m := NewMachine()
	m.Attach("u-1")
	ticket, _ := m.Begin(t0, cooldown)
	m.Complete(ticket, inactive, nil, t0)

	m.Detach()
	m.Attach("u-2")
	ticket, _ = m.Begin(t0, cooldown)
	if v := m.Complete(ticket, inactive, nil, t0); v.Notify {
		t.Fatal("the toast flag resets only after a successful validation")
	}
}

func TestMachine_ErrorUsesGenericMessage(t *testing.T) {
	m := NewMachine()
	m.Attach("u-1")
	ticket, _ := m.Begin(t0, cooldown)

	v := m.Complete(ticket, access.Decision{}, errors.New("timeout"), t0)
	if !v.Notify || v.Message.Text != GenericFailureMessage {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestMachine_StaleTicketDiscarded(t *testing.T) {
	m := NewMachine()
	m.Attach("u-1")
	ticket, _ := m.Begin(t0, cooldown)

	m.Attach("u-2")
	v := m.Complete(ticket, inactive, nil, t0)
	if !v.Discarded || v.Notify || v.SignOut {
		t.Fatalf("stale verdict = %+v", v)
	}
	if m.State() != Scheduled || m.UserID() != "u-2" {
		t.Fatalf("state = %s user = %q", m.State(), m.UserID())
	}
	if _, ok := m.Begin(t0, cooldown); !ok {
		t.Fatal("a new user must be checked immediately")
	}
}

func TestMachine_AttachSameUserKeepsSchedule(t *testing.T) {
	m := NewMachine()
	m.Attach("u-1")
	ticket, _ := m.Begin(t0, cooldown)
	m.Complete(ticket, access.Allow, nil, t0)

	m.Attach("u-1")
	if _, ok := m.Begin(t0.Add(time.Minute), cooldown); ok {
		t.Fatal("re-attaching the same user must not reset the cooldown")
	}
}

func TestMachine_Abort(t *testing.T) {
	m := NewMachine()
	m.Attach("u-1")
	ticket, _ := m.Begin(t0, cooldown)
	m.Abort(ticket)

	if m.State() != Scheduled {
		t.Fatalf("state after Abort = %s, want scheduled", m.State())
	}
	if _, ok := m.Begin(t0, cooldown); !ok {
		t.Fatal("an aborted validation must not count towards the cooldown")
	}
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	a := tr.Machine("s-1")
	if tr.Machine("s-1") != a {
		t.Fatal("same session id must share a machine")
	}
	if tr.Machine("s-2") == a {
		t.Fatal("different sessions must not share a machine")
	}

	a.Attach("u-1")
	tr.Forget("s-1")
	if a.State() != Idle {
		t.Fatal("Forget must detach the machine")
	}
	if tr.Machine("s-1") == a {
		t.Fatal("a forgotten session must get a fresh machine")
	}
	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
}
