package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultTable is the table holding profile rows.
const DefaultTable = "profiles"

// Querier is the subset of *pgxpool.Pool and *pgx.Conn used by PostgresSource.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSource reads profiles from a Postgres table with the schema:
//
//	CREATE TABLE profiles (
//	    id           UUID PRIMARY KEY,
//	    role         TEXT NOT NULL,
//	    is_active    BOOLEAN NOT NULL DEFAULT TRUE,
//	    display_name TEXT NOT NULL DEFAULT '',
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresSource struct {
	db    Querier
	query string
}

// PostgresOption configures a PostgresSource.
type PostgresOption func(*PostgresSource)

// WithTable overrides the profile table name.
func WithTable(table string) PostgresOption {
	return func(s *PostgresSource) {
		if table != "" {
			s.query = selectProfileSQL(table)
		}
	}
}

// NewPostgresSource creates a profile source backed by db.
func NewPostgresSource(db Querier, opts ...PostgresOption) *PostgresSource {
	s := &PostgresSource{
		db:    db,
		query: selectProfileSQL(DefaultTable),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func selectProfileSQL(table string) string {
	return fmt.Sprintf(
		"SELECT id::text, role, is_active, display_name, updated_at FROM %s WHERE id = $1 LIMIT 1",
		pgx.Identifier{table}.Sanitize(),
	)
}

// Fetch loads the profile row for userID.
func (s *PostgresSource) Fetch(ctx context.Context, userID string) (*Profile, error) {
	var (
		p       Profile
		rawRole string
		updated time.Time
	)
	err := s.db.QueryRow(ctx, s.query, userID).Scan(&p.ID, &rawRole, &p.IsActive, &p.DisplayName, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	role, err := ParseRole(rawRole)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.ID, err)
	}
	p.Role = role
	p.UpdatedAt = updated.UTC()
	return &p, nil
}
