package main

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/practicedesk/portal/internal/config"
	"github.com/practicedesk/portal/internal/errors"
	portalstatus "github.com/practicedesk/portal/pkg/portal"
	"github.com/practicedesk/portal/pkg/profile"
	"github.com/practicedesk/portal/pkg/session"
)

// loadConfig resolves the configuration. A missing file at the default path
// is not an error; the environment alone is used.
func loadConfig(opts *rootOptions, explicit bool) (*config.Config, error) {
	path := opts.configPath
	if !explicit && path != "" {
		if _, err := os.Stat(path); stderrors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return config.Resolve(path, nil)
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// backends holds the connections a command opened.
type backends struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}
	if cfg.HasDatabase() {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, errors.New("E201").Wrap(err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, errors.New("E201").Wrap(err).
				WithSuggestion("Check DATABASE_URL and that Postgres accepts connections")
		}
		b.db = pool
	}
	if cfg.HasRedis() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			b.Close()
			return nil, errors.New("E202").Wrap(err).
				WithSuggestion("Check REDIS_ADDR and that Redis is running")
		}
		b.redis = client
	}
	return b, nil
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		b.db.Close()
	}
}

func (b *backends) requireDatabase() error {
	if b.db == nil {
		return errors.New("E201").
			WithDetail("This command needs Postgres, but database.url is empty.").
			WithSuggestion("Set DATABASE_URL")
	}
	return nil
}

func (b *backends) profiles(cfg *config.Config) profile.Source {
	return profile.NewPostgresSource(b.db, profile.WithTable(cfg.Database.ProfilesTable))
}

// flagStore is a flag source that can also be written.
type flagStore interface {
	portalstatus.FlagSource
	portalstatus.FlagWriter
}

func (b *backends) flags(cfg *config.Config) flagStore {
	switch cfg.Portal.FlagSource {
	case config.StorePostgres:
		return portalstatus.NewPostgresFlagSource(b.db, cfg.Database.SettingsTable)
	case config.StoreRedis:
		return portalstatus.NewRedisFlagSource(b.redis, "")
	default:
		return portalstatus.NewStaticSource()
	}
}

func (b *backends) sessionStore(cfg *config.Config) session.Store {
	if cfg.Session.Store == config.StoreRedis {
		return session.NewRedisStore(b.redis, session.WithRedisPrefix(cfg.Redis.Prefix))
	}
	return session.NewMemoryStore()
}
