package profile

import (
	"context"
	"sync"
	"time"
)

// MemorySource is an in-process Source. It backs tests and the development
// server, where no Postgres instance is available.
type MemorySource struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	err      error
	fetches  int
}

// NewMemorySource creates a MemorySource seeded with profiles.
func NewMemorySource(profiles ...*Profile) *MemorySource {
	m := &MemorySource{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		m.Put(p)
	}
	return m
}

// Put inserts or replaces a profile.
func (m *MemorySource) Put(p *Profile) {
	if p == nil {
		return
	}
	clone := p.Clone()
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.profiles[p.ID] = clone
	m.mu.Unlock()
}

// Remove deletes the profile for userID.
func (m *MemorySource) Remove(userID string) {
	m.mu.Lock()
	delete(m.profiles, userID)
	m.mu.Unlock()
}

// SetActive flips the active flag of an existing profile.
func (m *MemorySource) SetActive(userID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		p.IsActive = active
		p.UpdatedAt = time.Now().UTC()
	}
}

// FailWith makes every subsequent Fetch return err. Pass nil to recover.
func (m *MemorySource) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Fetches returns how many times Fetch has been called.
func (m *MemorySource) Fetches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetches
}

// Fetch implements Source.
func (m *MemorySource) Fetch(ctx context.Context, userID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}
