package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/practicedesk/portal/pkg/auth"
)

// SignOuter ends the provider-side session of an identity.
type SignOuter interface {
	SignOut(ctx context.Context, id auth.Identity) error
}

// Manager owns the live sessions of the process and their persistence.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	config ManagerConfig
	store  Store
	signer SignOuter
	logger *slog.Logger

	// newID and now are overridable for tests.
	newID func() string
	now   func() time.Time

	done    chan struct{}
	stopped bool
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// TTL is how long an idle session stays valid.
	// Default: 24 hours.
	TTL time.Duration

	// TouchInterval throttles store expiry refreshes on access.
	// Default: 1 minute.
	TouchInterval time.Duration

	// CleanupInterval is how often idle sessions are dropped from memory.
	// Default: 1 minute.
	CleanupInterval time.Duration

	// ProfileMaxAge is how long a cached profile is served before the next
	// read refetches it. Default: 5 minutes.
	ProfileMaxAge time.Duration

	// StoreTimeout bounds each store call. Default: 5 seconds.
	StoreTimeout time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		TTL:             24 * time.Hour,
		TouchInterval:   1 * time.Minute,
		CleanupInterval: 1 * time.Minute,
		ProfileMaxAge:   5 * time.Minute,
		StoreTimeout:    5 * time.Second,
	}
}

func (c *ManagerConfig) applyDefaults() {
	d := DefaultManagerConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.TouchInterval <= 0 {
		c.TouchInterval = d.TouchInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.ProfileMaxAge <= 0 {
		c.ProfileMaxAge = d.ProfileMaxAge
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
}

// Error types for session management.
var (
	// ErrSessionNotFound is returned when a session doesn't exist or has expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrManagerStopped is returned when operations are attempted on a stopped manager.
	ErrManagerStopped = errors.New("session manager is stopped")

	// ErrNoIdentity is returned by Create for an empty identity.
	ErrNoIdentity = errors.New("session: identity has no user id")
)

// NewManager creates a new session manager. signer may be nil when the
// identity provider keeps no server-side session.
func NewManager(store Store, signer SignOuter, config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	config.applyDefaults()

	m := &Manager{
		sessions: make(map[string]*Session),
		config:   config,
		store:    store,
		signer:   signer,
		logger:   logger.With("component", "session_manager"),
		newID:    uuid.NewString,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() ManagerConfig {
	return m.config
}

// Create starts a signed-in session for identity and persists its record.
func (m *Manager) Create(ctx context.Context, identity auth.Identity) (*Session, error) {
	if identity.IsZero() {
		return nil, ErrNoIdentity
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	sess := newSession(m.newID(), identity, m.now)
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	if err := m.persist(ctx, sess); err != nil {
		m.mu.Lock()
		delete(m.sessions, sess.ID)
		m.mu.Unlock()
		return nil, err
	}

	m.logger.Debug("session created",
		"session_id", sess.ID,
		"user_id", identity.UserID)

	return sess, nil
}

// Get returns the session with id, loading it from the store on a miss.
//
// ErrSessionNotFound means the session is unknown, expired or signed out.
// Any other error is a store failure; the session state is then unknown.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	m.mu.RLock()
	stopped := m.stopped
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if stopped {
		return nil, ErrManagerStopped
	}

	if ok {
		if m.expired(sess) {
			m.drop(id)
			return nil, ErrSessionNotFound
		}
		m.touch(ctx, sess)
		return sess, nil
	}

	return m.load(ctx, id)
}

func (m *Manager) load(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()

	rec, err := m.store.Load(ctx, id)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return nil, ErrSessionNotFound
	case errors.Is(err, ErrCorruptRecord):
		m.logger.Warn("discarding unreadable session record",
			"session_id", id,
			"error", err)
		_ = m.store.Delete(ctx, id)
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec.UserID == "" {
		return nil, ErrSessionNotFound
	}

	restored := newSession(rec.ID, auth.Identity{UserID: rec.UserID, Email: rec.Email}, m.now)
	restored.CreatedAt = rec.CreatedAt

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		// Lost a race with a concurrent load.
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[id] = restored
	m.mu.Unlock()

	m.touch(ctx, restored)

	m.logger.Debug("session restored from store",
		"session_id", id,
		"user_id", rec.UserID)

	return restored, nil
}

// SignIn binds identity to an existing session, replacing the current user.
// A profile cached for a different user is dropped and SignedIn is emitted.
func (m *Manager) SignIn(ctx context.Context, id string, identity auth.Identity) (*Session, error) {
	if identity.IsZero() {
		return nil, ErrNoIdentity
	}
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.signIn(identity)
	if err := m.persist(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Debug("session rebound",
		"session_id", id,
		"user_id", identity.UserID)
	return sess, nil
}

// SignOut ends the session: the provider session is closed, the identity and
// cached profile are cleared, the record is deleted and SignedOut is emitted.
//
// A provider failure is logged and does not stop the local sign-out.
func (m *Manager) SignOut(ctx context.Context, id string) error {
	sess, err := m.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if identity, ok := sess.Identity(); ok && m.signer != nil {
		if err := m.signer.SignOut(ctx, identity); err != nil {
			m.logger.Warn("provider sign-out failed",
				"session_id", id,
				"user_id", identity.UserID,
				"error", err)
		}
	}

	m.drop(id)
	sess.clear()

	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session record: %w", err)
	}

	m.logger.Info("session signed out", "session_id", id)
	return nil
}

// Fresh reports whether sess has a cached profile younger than ProfileMaxAge.
func (m *Manager) Fresh(sess *Session) bool {
	age, ok := sess.ProfileAge()
	return ok && age < m.config.ProfileMaxAge
}

// Count returns the number of sessions held in memory.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the cleanup loop and closes the store.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.done)
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	return m.store.Close()
}

func (m *Manager) persist(ctx context.Context, sess *Session) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()
	if err := m.store.Save(ctx, sess.record(), m.config.TTL); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Manager) touch(ctx context.Context, sess *Session) {
	if !sess.markActive(m.config.TouchInterval) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()
	if err := m.store.Extend(ctx, sess.ID, m.config.TTL); err != nil {
		m.logger.Warn("failed to refresh session expiry",
			"session_id", sess.ID,
			"error", err)
	}
}

func (m *Manager) expired(sess *Session) bool {
	return m.now().Sub(sess.LastActive()) > m.config.TTL
}

func (m *Manager) drop(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.done:
			return
		}
	}
}

// cleanupExpired drops idle sessions from memory. Their store records
// expire on their own.
func (m *Manager) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	var expired []string
	for id, sess := range m.sessions {
		if m.expired(sess) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}

	if len(expired) > 0 {
		m.logger.Debug("cleaned up expired sessions",
			"count", len(expired),
			"remaining", len(m.sessions))
	}
}
