package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, opts ...RedisStoreOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, opts...), mr
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore(WithSweepInterval(time.Hour)) },
		"redis": func(t *testing.T) Store {
			s, _ := newRedisStore(t)
			return s
		},
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			store := mk(t)
			ctx := context.Background()
			created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
			rec := &Record{ID: "s-1", UserID: "u-1", Email: "ca@firm.test", CreatedAt: created, LastActive: created}

			if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
				t.Fatalf("Load(missing) err = %v, want ErrRecordNotFound", err)
			}

			if err := store.Save(ctx, rec, time.Hour); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := store.Load(ctx, "s-1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.UserID != "u-1" || got.Email != "ca@firm.test" || !got.CreatedAt.Equal(created) {
				t.Fatalf("Load = %+v", got)
			}
			if got.Version != RecordVersion {
				t.Fatalf("Version = %d, want %d", got.Version, RecordVersion)
			}

			if err := store.Extend(ctx, "s-1", 2*time.Hour); err != nil {
				t.Fatalf("Extend: %v", err)
			}
			if err := store.Extend(ctx, "missing", time.Hour); err != nil {
				t.Fatalf("Extend(missing): %v", err)
			}

			if err := store.Delete(ctx, "s-1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := store.Delete(ctx, "s-1"); err != nil {
				t.Fatalf("Delete twice: %v", err)
			}
			if _, err := store.Load(ctx, "s-1"); !errors.Is(err, ErrRecordNotFound) {
				t.Fatalf("Load after Delete err = %v", err)
			}

			if err := store.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := store.Save(ctx, rec, time.Hour); !errors.Is(err, ErrStoreClosed) {
				t.Fatalf("Save after Close err = %v, want ErrStoreClosed", err)
			}
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(WithSweepInterval(time.Hour))
	defer store.Close()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Save(ctx, &Record{ID: "s-1"}, 10*time.Minute)
	now = now.Add(9 * time.Minute)
	if err := store.Extend(ctx, "s-1", 10*time.Minute); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	now = now.Add(9 * time.Minute)
	if _, err := store.Load(ctx, "s-1"); err != nil {
		t.Fatalf("Load inside the extended ttl: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Load(ctx, "s-1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expired record err = %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d before sweep, want 1", store.Len())
	}
	store.sweep()
	if store.Len() != 0 {
		t.Fatalf("Len = %d after sweep, want 0", store.Len())
	}
}

func TestMemoryStore_SavesCopy(t *testing.T) {
	store := NewMemoryStore(WithSweepInterval(time.Hour))
	defer store.Close()
	ctx := context.Background()

	rec := &Record{ID: "s-1", UserID: "u-1"}
	_ = store.Save(ctx, rec, time.Hour)
	rec.UserID = "u-2"

	got, _ := store.Load(ctx, "s-1")
	got.Email = "changed"
	again, _ := store.Load(ctx, "s-1")
	if again.UserID != "u-1" || again.Email != "" {
		t.Fatalf("stored record aliased the caller's: %+v", again)
	}
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &Record{ID: "s-1"}, 10*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL(store.Key("s-1")); ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("TTL = %v", ttl)
	}

	mr.FastForward(11 * time.Minute)
	if _, err := store.Load(ctx, "s-1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Load after expiry err = %v", err)
	}

	if err := store.Save(ctx, &Record{ID: "s-2"}, 0); err != nil {
		t.Fatalf("Save with zero ttl: %v", err)
	}
	if mr.Exists(store.Key("s-2")) {
		t.Fatal("a record without ttl must not be stored")
	}
}

func TestRedisStore_Prefix(t *testing.T) {
	store, mr := newRedisStore(t, WithRedisPrefix("test:"))
	_ = store.Save(context.Background(), &Record{ID: "abc"}, time.Minute)
	if !mr.Exists("test:abc") {
		t.Fatal("custom prefix not applied")
	}

	store, _ = newRedisStore(t, WithRedisPrefix(""))
	if store.Key("x") != DefaultRedisPrefix+"x" {
		t.Fatalf("Key = %q, empty prefix must keep the default", store.Key("x"))
	}
}

func TestRedisStore_CorruptRecord(t *testing.T) {
	store, mr := newRedisStore(t)
	if err := mr.Set(store.Key("s-1"), "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Load(context.Background(), "s-1"); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("err = %v, want ErrCorruptRecord", err)
	}
}

func TestManager_DropsCorruptRecord(t *testing.T) {
	store, mr := newRedisStore(t)
	if err := mr.Set(store.Key("s-1"), `{"version":99,"id":"s-1"}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	m := newTestManager(t, store, nil)

	if _, err := m.Get(context.Background(), "s-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if mr.Exists(store.Key("s-1")) {
		t.Fatal("an unreadable record must be deleted")
	}
}

func TestDecodeRecord(t *testing.T) {
	data, err := Record{ID: "s-1", UserID: "u-1"}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeRecord(data)
	if err != nil || got.UserID != "u-1" || got.Version != RecordVersion {
		t.Fatalf("DecodeRecord = %+v, %v", got, err)
	}

	for _, bad := range []string{`{"version":99,"id":"s-1"}`, `not json`, `{"user_id":"u-1"}`} {
		if _, err := DecodeRecord([]byte(bad)); !errors.Is(err, ErrCorruptRecord) {
			t.Errorf("DecodeRecord(%s) err = %v, want ErrCorruptRecord", bad, err)
		}
	}
}
