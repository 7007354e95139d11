package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is prepended to session ids to form Redis keys.
const DefaultRedisPrefix = "portal:session:"

// RedisStore keeps records as JSON strings with a Redis TTL, so several
// portal processes can share sessions.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	closed atomic.Bool
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisPrefix overrides DefaultRedisPrefix. An empty prefix is ignored.
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a store on client. Close does not close the client.
func NewRedisStore(client redis.Cmdable, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key holding the record for id.
func (s *RedisStore) Key(id string) string {
	return s.prefix + id
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if ttl <= 0 {
		return s.Delete(ctx, rec.ID)
	}
	data, err := rec.Encode()
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	return s.client.Set(ctx, s.Key(rec.ID), data, ttl).Err()
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	data, err := s.client.Get(ctx, s.Key(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrRecordNotFound
	case err != nil:
		return nil, err
	}
	return DecodeRecord(data)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.client.Del(ctx, s.Key(id)).Err()
}

// Extend implements Store. EXPIRE on a missing key is a no-op in Redis.
func (s *RedisStore) Extend(ctx context.Context, id string, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if ttl <= 0 {
		return s.Delete(ctx, id)
	}
	return s.client.Expire(ctx, s.Key(id), ttl).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.closed.Store(true)
	return nil
}
