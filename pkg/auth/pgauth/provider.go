package pgauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/practicedesk/portal/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

// PurposePasswordReset is the purpose claim of reset tokens.
const PurposePasswordReset = "password_reset"

// DB is the subset of *pgxpool.Pool used by Provider.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config configures a Provider.
type Config struct {
	// SigningKey signs reset tokens (HS256). Required.
	SigningKey []byte

	// Issuer is the iss claim of reset tokens. Default: "practicedesk-portal".
	Issuer string

	// ResetTTL is how long a reset link stays valid. Default: 1 hour.
	ResetTTL time.Duration

	// BcryptCost is the hashing cost for new passwords. Default: bcrypt.DefaultCost.
	BcryptCost int
}

func (c *Config) applyDefaults() {
	if c.Issuer == "" {
		c.Issuer = "practicedesk-portal"
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = time.Hour
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
}

// ErrNoSigningKey is returned by New without a signing key.
var ErrNoSigningKey = errors.New("pgauth: signing key is required")

// Provider is an auth.Provider over the auth_users table:
//
//	CREATE TABLE auth_users (
//	    id                  UUID PRIMARY KEY,
//	    email               TEXT NOT NULL UNIQUE,
//	    password_hash       TEXT NOT NULL,
//	    password_changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
// Reset tokens are single use: a token issued before the last password change
// is rejected.
type Provider struct {
	db     DB
	mailer Mailer
	config Config
	logger *slog.Logger
	now    func() time.Time

	dummyHash []byte
}

var _ auth.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithMailer sets the reset mail transport. Default: LogMailer.
func WithMailer(m Mailer) Option {
	return func(p *Provider) {
		if m != nil {
			p.mailer = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Postgres-backed identity provider.
func New(db DB, cfg Config, opts ...Option) (*Provider, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, ErrNoSigningKey
	}
	cfg.applyDefaults()

	p := &Provider{
		db:     db,
		config: cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pgauth")
	if p.mailer == nil {
		p.mailer = &LogMailer{Logger: p.logger}
	}

	// Compared against on unknown emails so both paths cost one bcrypt run.
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("pgauth: %w", err)
	}
	p.dummyHash = hash
	return p, nil
}

// HashPassword returns the bcrypt hash of password at the configured cost.
func (p *Provider) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.config.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type userRow struct {
	id    string
	email string
	hash  string
}

func (p *Provider) lookup(ctx context.Context, email string) (*userRow, error) {
	var u userRow
	err := p.db.QueryRow(ctx,
		"SELECT id::text, email, password_hash FROM auth_users WHERE lower(email) = $1",
		auth.NormalizeEmail(email),
	).Scan(&u.id, &u.email, &u.hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query auth user: %w", err)
	}
	return &u, nil
}

// SignIn implements auth.Provider.
func (p *Provider) SignIn(ctx context.Context, email, password string) (auth.Identity, error) {
	u, err := p.lookup(ctx, email)
	if err != nil {
		return auth.Identity{}, err
	}
	if u == nil {
		_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(password))
		return auth.Identity{}, auth.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.hash), []byte(password)) != nil {
		return auth.Identity{}, auth.ErrInvalidCredentials
	}

	p.logger.Info("user signed in", "user_id", u.id)
	return auth.Identity{UserID: u.id, Email: u.email}, nil
}

// SignOut implements auth.Provider. Credentials carry no server-side session,
// so there is nothing to revoke.
func (p *Provider) SignOut(ctx context.Context, id auth.Identity) error {
	p.logger.Debug("user signed out", "user_id", id.UserID)
	return nil
}

type resetClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// RequestPasswordReset implements auth.Provider.
func (p *Provider) RequestPasswordReset(ctx context.Context, email, resetURL string) error {
	u, err := p.lookup(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		p.logger.Debug("password reset requested for unknown email")
		return nil
	}

	token, err := p.issueResetToken(u.id)
	if err != nil {
		return err
	}

	link, err := url.Parse(resetURL)
	if err != nil {
		return fmt.Errorf("parse reset url: %w", err)
	}
	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()

	if err := p.mailer.SendPasswordReset(ctx, u.email, link.String()); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

func (p *Provider) issueResetToken(userID string) (string, error) {
	now := p.now()
	claims := resetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.config.ResetTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Purpose: PurposePasswordReset,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.config.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

// ResetPassword implements auth.Provider.
func (p *Provider) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < auth.MinPasswordLength {
		return auth.ErrWeakPassword
	}

	var claims resetClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.config.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		p.logger.Debug("rejected reset token", "error", err)
		return auth.ErrInvalidResetToken
	}
	if claims.Purpose != PurposePasswordReset || claims.Subject == "" || claims.IssuedAt == nil {
		return auth.ErrInvalidResetToken
	}

	hash, err := p.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tag, err := p.db.Exec(ctx,
		"UPDATE auth_users SET password_hash = $2, password_changed_at = $3 "+
			"WHERE id = $1 AND password_changed_at < $4",
		claims.Subject, hash, p.now().Truncate(time.Second), claims.IssuedAt.Time,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Unknown user, or the token predates the last password change.
		return auth.ErrInvalidResetToken
	}

	p.logger.Info("password reset", "user_id", claims.Subject, "token_id", claims.ID)
	return nil
}
