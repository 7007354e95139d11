package session

import (
	"sync"
	"testing"
	"time"

	"github.com/practicedesk/portal/pkg/auth"
	"github.com/practicedesk/portal/pkg/profile"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) listen(ev Event, _ *Session) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func testSession(userID string) *Session {
	return newSession("s-1", auth.Identity{UserID: userID, Email: userID + "@firm.test"}, time.Now)
}

func TestStoreProfile_RejectsOtherUser(t *testing.T) {
	s := testSession("u-1")

	if s.StoreProfile("u-2", &profile.Profile{ID: "u-2", Role: profile.RoleStaff, IsActive: true}) {
		t.Fatal("profile for a different user id must be rejected")
	}
	if s.Profile() != nil {
		t.Fatal("rejected write must leave the cache empty")
	}

	if s.StoreProfile("u-1", &profile.Profile{ID: "u-2"}) {
		t.Fatal("profile whose id does not match the key must be rejected")
	}

	if !s.StoreProfile("u-1", &profile.Profile{ID: "u-1", Role: profile.RoleStaff, IsActive: true}) {
		t.Fatal("profile for the current user must be accepted")
	}
	if p := s.Profile(); p == nil || p.Role != profile.RoleStaff {
		t.Fatalf("Profile = %+v", p)
	}
}

func TestStoreProfile_AfterSignOutRejected(t *testing.T) {
	s := testSession("u-1")
	s.clear()

	if s.StoreProfile("u-1", &profile.Profile{ID: "u-1", IsActive: true}) {
		t.Fatal("late profile write after sign-out must be rejected")
	}
}

func TestProfile_ReturnsCopy(t *testing.T) {
	s := testSession("u-1")
	s.StoreProfile("u-1", &profile.Profile{ID: "u-1", Role: profile.RoleClient, IsActive: true})

	p := s.Profile()
	p.Role = profile.RoleSuperAdmin
	if s.Profile().Role != profile.RoleClient {
		t.Fatal("mutating the returned profile must not change the cache")
	}
}

func TestSignIn_DifferentUserDropsProfile(t *testing.T) {
	s := testSession("u-1")
	s.StoreProfile("u-1", &profile.Profile{ID: "u-1", IsActive: true})

	s.signIn(auth.Identity{UserID: "u-1"})
	if s.Profile() == nil {
		t.Fatal("re-signing the same user keeps the cache")
	}

	s.signIn(auth.Identity{UserID: "u-2"})
	if s.Profile() != nil {
		t.Fatal("switching users must drop the cached profile")
	}
	if _, ok := s.ProfileAge(); ok {
		t.Fatal("ProfileAge must report no cache after a user switch")
	}
}

func TestSubscribe_Events(t *testing.T) {
	s := testSession("u-1")
	log := &eventLog{}
	cancel := s.Subscribe(log.listen)

	s.StoreProfile("u-1", &profile.Profile{ID: "u-1", IsActive: true})
	s.InvalidateProfile()
	s.InvalidateProfile()
	s.signIn(auth.Identity{UserID: "u-2"})
	s.clear()
	s.clear()

	want := []Event{ProfileChanged, ProfileChanged, SignedIn, SignedOut}
	got := log.all()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	cancel()
	cancel()
	s.signIn(auth.Identity{UserID: "u-3"})
	if len(log.all()) != len(want) {
		t.Fatal("listener called after cancel")
	}
}

func TestListenerMayReadSession(t *testing.T) {
	s := testSession("u-1")
	var seen string
	s.Subscribe(func(ev Event, sess *Session) {
		seen = sess.UserID()
	})

	s.signIn(auth.Identity{UserID: "u-9"})
	if seen != "u-9" {
		t.Fatalf("listener saw %q, want u-9", seen)
	}
}

func TestProfileAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newSession("s-1", auth.Identity{UserID: "u-1"}, clock)

	s.StoreProfile("u-1", &profile.Profile{ID: "u-1", IsActive: true})
	now = now.Add(3 * time.Minute)

	age, ok := s.ProfileAge()
	if !ok || age != 3*time.Minute {
		t.Fatalf("ProfileAge = %v, %v", age, ok)
	}
}

func TestEventString(t *testing.T) {
	if SignedOut.String() != "signed_out" || Event(0).String() != "unknown" {
		t.Fatal("unexpected event names")
	}
}
