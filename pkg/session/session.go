package session

import (
	"sync"
	"time"

	"github.com/practicedesk/portal/pkg/auth"
	"github.com/practicedesk/portal/pkg/profile"
)

// Event is a change in a session's auth state.
type Event int

const (
	// SignedIn fires when an identity is bound to the session.
	SignedIn Event = iota + 1
	// SignedOut fires when the identity and cached profile are cleared.
	SignedOut
	// ProfileChanged fires when the cached profile is stored or dropped.
	ProfileChanged
)

func (e Event) String() string {
	switch e {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case ProfileChanged:
		return "profile_changed"
	default:
		return "unknown"
	}
}

// Listener receives session events. It is called without the session lock
// held and may read the session.
type Listener func(ev Event, s *Session)

// Session is the auth state of one browser session: the signed-in identity
// and at most one cached profile.
//
// The cached profile belongs to the user id that fetched it. Writes keyed to
// any other user id are rejected, so a slow fetch started before a sign-out
// or user switch can never populate the new state.
type Session struct {
	// ID is the opaque session identifier carried by the session cookie.
	ID string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	mu            sync.RWMutex
	identity      auth.Identity
	profile       *profile.Profile
	profileUserID string
	profileAt     time.Time
	lastActive    time.Time
	lastTouched   time.Time

	listeners    map[uint64]Listener
	nextListener uint64

	now func() time.Time
}

func newSession(id string, identity auth.Identity, now func() time.Time) *Session {
	t := now()
	return &Session{
		ID:          id,
		CreatedAt:   t,
		identity:    identity,
		lastActive:  t,
		lastTouched: t,
		listeners:   make(map[uint64]Listener),
		now:         now,
	}
}

// UserID returns the signed-in user's id, or "" when signed out.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.UserID
}

// Identity returns the signed-in identity. ok is false when signed out.
func (s *Session) Identity() (id auth.Identity, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, !s.identity.IsZero()
}

// SignedIn reports whether an identity is bound to the session.
func (s *Session) SignedIn() bool {
	return s.UserID() != ""
}

// Profile returns a copy of the cached profile, or nil when none is cached.
// A nil profile for a signed-in session means "still loading".
func (s *Session) Profile() *profile.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil || s.profileUserID != s.identity.UserID {
		return nil
	}
	return s.profile.Clone()
}

// ProfileAge returns how long ago the cached profile was stored. ok is false
// when nothing is cached.
func (s *Session) ProfileAge() (age time.Duration, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return 0, false
	}
	return s.now().Sub(s.profileAt), true
}

// StoreProfile caches p for userID. It returns false and changes nothing when
// userID is not the current user or p belongs to someone else.
func (s *Session) StoreProfile(userID string, p *profile.Profile) bool {
	if p == nil || userID == "" || p.ID != userID {
		return false
	}

	s.mu.Lock()
	if s.identity.UserID != userID {
		s.mu.Unlock()
		return false
	}
	s.profile = p.Clone()
	s.profileUserID = userID
	s.profileAt = s.now()
	s.mu.Unlock()

	s.emit(ProfileChanged)
	return true
}

// InvalidateProfile drops the cached profile so the next read refetches it.
func (s *Session) InvalidateProfile() {
	s.mu.Lock()
	had := s.profile != nil
	s.profile = nil
	s.profileUserID = ""
	s.profileAt = time.Time{}
	s.mu.Unlock()

	if had {
		s.emit(ProfileChanged)
	}
}

// Subscribe registers fn for session events and returns a function that
// removes it.
func (s *Session) Subscribe(fn Listener) (cancel func()) {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// signIn binds identity and drops any profile cached for a previous user.
func (s *Session) signIn(identity auth.Identity) {
	s.mu.Lock()
	if s.identity.UserID != identity.UserID {
		s.profile = nil
		s.profileUserID = ""
		s.profileAt = time.Time{}
	}
	s.identity = identity
	s.mu.Unlock()

	s.emit(SignedIn)
}

// clear removes the identity and cached profile. It reports whether the
// session was signed in.
func (s *Session) clear() bool {
	s.mu.Lock()
	wasSignedIn := !s.identity.IsZero()
	s.identity = auth.Identity{}
	s.profile = nil
	s.profileUserID = ""
	s.profileAt = time.Time{}
	s.mu.Unlock()

	if wasSignedIn {
		s.emit(SignedOut)
	}
	return wasSignedIn
}

// markActive records activity and reports whether the store expiry should be
// refreshed, which happens at most once per interval.
func (s *Session) markActive(interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.lastActive = now
	if now.Sub(s.lastTouched) < interval {
		return false
	}
	s.lastTouched = now
	return true
}

func (s *Session) record() *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Record{
		ID:         s.ID,
		UserID:     s.identity.UserID,
		Email:      s.identity.Email,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
	}
}

func (s *Session) emit(ev Event) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev, s)
	}
}
