package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the persisted form of a Session. The cached profile is never
// part of it; it is refetched after a restart.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	// Version is the record format version.
	Version int `json:"version"`
}

// RecordVersion is written into every encoded record. Bump it when the
// format changes incompatibly.
const RecordVersion = 1

// Encode returns the JSON form of rec stamped with RecordVersion.
func (rec Record) Encode() ([]byte, error) {
	rec.Version = RecordVersion
	return json.Marshal(rec)
}

// DecodeRecord parses a record written by Encode. Records from a newer
// format version are rejected.
func DecodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.Version > RecordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptRecord, rec.Version)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrCorruptRecord)
	}
	return &rec, nil
}
