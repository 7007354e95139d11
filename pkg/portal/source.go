package portal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// FlagSource reads a boolean setting. A nil value with a nil error means the
// setting is unset.
type FlagSource interface {
	FetchFlag(ctx context.Context, key string) (*bool, error)
}

// FlagWriter stores a boolean setting.
type FlagWriter interface {
	SetFlag(ctx context.Context, key string, value bool) error
}

// ErrInvalidFlag is returned by sources when the stored value is not a boolean.
var ErrInvalidFlag = errors.New("portal: flag value is not a boolean")

func parseFlag(key, raw string) (*bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidFlag, key, raw)
	}
	return &v, nil
}

// =============================================================================
// Postgres
// =============================================================================

// DB is the subset of *pgxpool.Pool used by PostgresFlagSource.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresFlagSource reads settings from a key/value table:
//
//	CREATE TABLE app_settings (
//	    key        TEXT PRIMARY KEY,
//	    value      TEXT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresFlagSource struct {
	db    DB
	table string
}

// NewPostgresFlagSource creates a flag source over the app_settings table.
// An empty table name selects the default.
func NewPostgresFlagSource(db DB, table string) *PostgresFlagSource {
	if table == "" {
		table = "app_settings"
	}
	return &PostgresFlagSource{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// FetchFlag implements FlagSource.
func (s *PostgresFlagSource) FetchFlag(ctx context.Context, key string) (*bool, error) {
	var raw *string
	err := s.db.QueryRow(ctx,
		"SELECT value FROM "+s.table+" WHERE key = $1",
		key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query setting %s: %w", key, err)
	}
	if raw == nil {
		return nil, nil
	}
	return parseFlag(key, *raw)
}

// SetFlag implements FlagWriter.
func (s *PostgresFlagSource) SetFlag(ctx context.Context, key string, value bool) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO "+s.table+" (key, value, updated_at) VALUES ($1, $2, NOW()) "+
			"ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at",
		key, strconv.FormatBool(value),
	)
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// Redis
// =============================================================================

// DefaultRedisPrefix namespaces flag keys in Redis.
const DefaultRedisPrefix = "portal:settings:"

// RedisFlagSource reads settings stored as plain "true"/"false" strings.
type RedisFlagSource struct {
	client redis.Cmdable
	prefix string
}

// NewRedisFlagSource creates a flag source over client. An empty prefix
// selects DefaultRedisPrefix.
func NewRedisFlagSource(client redis.Cmdable, prefix string) *RedisFlagSource {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisFlagSource{client: client, prefix: prefix}
}

// FetchFlag implements FlagSource.
func (s *RedisFlagSource) FetchFlag(ctx context.Context, key string) (*bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return parseFlag(key, raw)
}

// SetFlag implements FlagWriter.
func (s *RedisFlagSource) SetFlag(ctx context.Context, key string, value bool) error {
	if err := s.client.Set(ctx, s.prefix+key, strconv.FormatBool(value), 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// Static
// =============================================================================

// StaticSource is an in-process flag store for development and tests.
type StaticSource struct {
	mu     sync.Mutex
	values map[string]bool
	err    error
	delay  time.Duration
	calls  int
}

// NewStaticSource creates an empty StaticSource; every flag starts unset.
func NewStaticSource() *StaticSource {
	return &StaticSource{values: make(map[string]bool)}
}

// FetchFlag implements FlagSource.
func (s *StaticSource) FetchFlag(ctx context.Context, key string) (*bool, error) {
	s.mu.Lock()
	s.calls++
	err, delay := s.err, s.delay
	v, ok := s.values[key]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// SetFlag implements FlagWriter.
func (s *StaticSource) SetFlag(_ context.Context, key string, value bool) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

// Unset removes key.
func (s *StaticSource) Unset(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// FailWith makes subsequent fetches return err. A nil err clears it.
func (s *StaticSource) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// SetDelay makes each fetch wait d before answering.
func (s *StaticSource) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Calls reports the number of FetchFlag calls.
func (s *StaticSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
