package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Records are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	closed  bool
	stop    chan struct{}

	// now is overridable for tests.
	now func() time.Time
}

type memoryEntry struct {
	rec     Record
	expires time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore, *time.Duration)

// WithSweepInterval sets how often expired records are dropped.
// Default: 1 minute.
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(_ *MemoryStore, interval *time.Duration) {
		*interval = d
	}
}

// NewMemoryStore creates an empty store with a background sweeper.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	interval := time.Minute
	for _, opt := range opts {
		opt(m, &interval)
	}
	go m.sweepLoop(interval)
	return m
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, rec *Record, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if ttl <= 0 {
		delete(m.entries, rec.ID)
		return nil
	}
	e := memoryEntry{rec: *rec, expires: m.now().Add(ttl)}
	e.rec.Version = RecordVersion
	m.entries[rec.ID] = e
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	e, ok := m.entries[id]
	if !ok || !m.now().Before(e.expires) {
		return nil, ErrRecordNotFound
	}
	rec := e.rec
	return &rec, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.entries, id)
	return nil
}

// Extend implements Store.
func (m *MemoryStore) Extend(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(m.entries, id)
		return nil
	}
	e.expires = m.now().Add(ttl)
	m.entries[id] = e
	return nil
}

// Close stops the sweeper and drops every record.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)
	m.entries = nil
	return nil
}

// Len returns the number of held records. Expired records count until the
// next sweep.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryStore) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, id)
		}
	}
}
