package guard

import (
	"sync"
	"time"

	"github.com/practicedesk/portal/pkg/access"
	"github.com/practicedesk/portal/pkg/toast"
)

// GenericFailureMessage is shown when validation itself failed rather than
// returning a decision.
const GenericFailureMessage = "Unable to verify your access. Please sign in again."

// NotificationTitle is the title of the revocation toast.
const NotificationTitle = "Access revoked"

// State is the revalidation state of one session.
type State int

const (
	// Idle means no user is attached.
	Idle State = iota
	// Scheduled means a user is attached and waiting for the next check.
	Scheduled
	// Validating means a check is in flight.
	Validating
	// FailedOnce means a check failed and the user was told.
	FailedOnce
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Validating:
		return "validating"
	case FailedOnce:
		return "failed_once"
	default:
		return "unknown"
	}
}

// Ticket identifies one validation started by Begin. A ticket goes stale when
// the machine is detached or re-attached to another user; Complete ignores
// stale tickets.
type Ticket struct {
	UserID string
	gen    uint64
}

// Verdict tells the caller what to do after a completed validation.
type Verdict struct {
	// Discarded is set when the ticket was stale; nothing else is set.
	Discarded bool

	// Notify is set on the first failure of a failed-session lifetime.
	Notify  bool
	Message toast.Message

	// SignOut is set for every failure.
	SignOut bool
}

// Machine is the revalidation state of one session. It is safe for
// concurrent use; guards on several connections of the same session share it.
type Machine struct {
	mu            sync.Mutex
	state         State
	resume        State
	userID        string
	gen           uint64
	lastCompleted time.Time
	notified      bool
}

// NewMachine returns an Idle machine.
func NewMachine() *Machine {
	return &Machine{}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UserID returns the attached user, or "" when Idle.
func (m *Machine) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Attach moves an Idle machine to Scheduled for userID. Attaching a different
// user restarts the schedule so the next Begin runs immediately and any
// in-flight validation for the previous user is discarded. Attaching the
// current user is a no-op.
func (m *Machine) Attach(userID string) {
	if userID == "" {
		m.Detach()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle && m.userID == userID {
		return
	}
	m.gen++
	m.userID = userID
	m.state = Scheduled
	m.lastCompleted = time.Time{}
}

// Detach moves the machine to Idle and discards any in-flight validation.
// The notification flag survives; only a successful validation clears it.
func (m *Machine) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.userID = ""
	m.state = Idle
	m.lastCompleted = time.Time{}
}

// Begin starts a validation. It returns false when the machine is Idle or
// already Validating, or when the last completed validation is more recent
// than cooldown.
func (m *Machine) Begin(now time.Time, cooldown time.Duration) (Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Scheduled, FailedOnce:
	default:
		return Ticket{}, false
	}
	if !m.lastCompleted.IsZero() && now.Sub(m.lastCompleted) < cooldown {
		return Ticket{}, false
	}

	m.resume = m.state
	m.state = Validating
	return Ticket{UserID: m.userID, gen: m.gen}, true
}

// Abort ends a validation whose result will not be used, without counting it
// as completed.
func (m *Machine) Abort(t Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.gen != m.gen || m.state != Validating {
		return
	}
	m.state = m.resume
}

// Complete records the outcome of the validation identified by t. A non-nil
// err means the validation itself failed.
func (m *Machine) Complete(t Ticket, d access.Decision, err error, now time.Time) Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.gen != m.gen || m.state != Validating {
		return Verdict{Discarded: true}
	}
	m.lastCompleted = now

	if err == nil && d.Valid {
		m.state = Scheduled
		m.notified = false
		return Verdict{}
	}

	m.state = FailedOnce
	v := Verdict{SignOut: true}
	if !m.notified {
		m.notified = true
		v.Notify = true
		v.Message = failureMessage(d, err)
	}
	return v
}

func failureMessage(d access.Decision, err error) toast.Message {
	text := GenericFailureMessage
	if err == nil && d.Reason != "" {
		text = d.Reason
	}
	return toast.Message{
		Title:    NotificationTitle,
		Text:     text,
		Severity: toast.Error,
	}
}

// Tracker holds one Machine per session id so that reconnects and multiple
// tabs of a session share cooldown and notification state.
type Tracker struct {
	mu       sync.Mutex
	machines map[string]*Machine
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{machines: make(map[string]*Machine)}
}

// Machine returns the machine for sessionID, creating it on first use.
func (t *Tracker) Machine(sessionID string) *Machine {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.machines[sessionID]
	if !ok {
		m = NewMachine()
		t.machines[sessionID] = m
	}
	return m
}

// Forget drops the machine for sessionID. Call it when the session ends.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.machines[sessionID]; ok {
		m.Detach()
		delete(t.machines, sessionID)
	}
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.machines)
}
