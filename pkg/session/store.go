package session

import (
	"context"
	"errors"
	"time"
)

// Store persists session records so that a session outlives the process that
// created it. Implementations must be safe for concurrent use.
type Store interface {
	// Save writes rec, replacing any record with the same ID. The record
	// expires ttl from now; a non-positive ttl deletes it.
	Save(ctx context.Context, rec *Record, ttl time.Duration) error

	// Load returns the record for id. It returns ErrRecordNotFound when the
	// record is missing or expired and ErrCorruptRecord when it cannot be
	// decoded.
	Load(ctx context.Context, id string) (*Record, error)

	// Delete removes the record. A missing record is not an error.
	Delete(ctx context.Context, id string) error

	// Extend moves the expiry of id to ttl from now without rewriting the
	// record. A missing record is not an error.
	Extend(ctx context.Context, id string, ttl time.Duration) error

	// Close releases the store. Later calls return ErrStoreClosed.
	Close() error
}

var (
	// ErrStoreClosed is returned by a closed store.
	ErrStoreClosed = errors.New("session store is closed")

	// ErrRecordNotFound is returned by Load for a missing or expired record.
	ErrRecordNotFound = errors.New("session record not found")

	// ErrCorruptRecord is returned by Load for a record that cannot be read.
	ErrCorruptRecord = errors.New("session record is corrupt")
)
