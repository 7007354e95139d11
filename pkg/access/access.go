package access

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/practicedesk/portal/pkg/profile"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// User-facing reasons carried by invalid decisions.
const (
	ReasonDatabaseError   = "Database error"
	ReasonProfileNotFound = "Profile not found. Please contact an administrator."
	ReasonInactive        = "Account inactive. Please contact an administrator."
)

// DefaultTimeout bounds a single profile fetch. Expiry is reported as a
// database error.
const DefaultTimeout = 5 * time.Second

// ErrEmptyUserID is returned when Validate is called without a user id.
var ErrEmptyUserID = errors.New("access: empty user id")

// FailurePolicy names how a component resolves errors from its backend.
type FailurePolicy string

const (
	// FailClosed treats an unknown state as a denial.
	FailClosed FailurePolicy = "fail-closed"
	// FailOpen treats an unknown state as permitted.
	FailOpen FailurePolicy = "fail-open"
)

// Policy is the failure policy of access validation. A backend error revokes
// access rather than leaving a possibly revoked session alive.
const Policy = FailClosed

// Decision is the verdict on whether a user may keep using the portal.
// Reason is empty for valid decisions.
type Decision struct {
	Valid  bool
	Reason string
}

// Allow is the decision for an active, existing profile.
var Allow = Decision{Valid: true}

// Deny returns an invalid decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Valid: false, Reason: reason}
}

func (d Decision) String() string {
	if d.Valid {
		return "valid"
	}
	return "invalid: " + d.Reason
}

// Observer receives one call per completed validation. The result label is
// "valid" or the short outcome ("database_error", "not_found", "inactive").
type Observer interface {
	ObserveValidation(result string, duration time.Duration)
}

// Validator decides whether a user's profile grants access.
// It is read-only and safe for concurrent use; callers are responsible
// for debouncing repeated calls.
type Validator struct {
	profiles profile.Source
	timeout  time.Duration
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithTimeout sets the per-call fetch timeout. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		v.timeout = d
	}
}

// WithObserver registers an observer for completed validations.
func WithObserver(o Observer) Option {
	return func(v *Validator) {
		v.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(v *Validator) {
		if tp != nil {
			v.tracer = tp.Tracer(tracerName)
		}
	}
}

const tracerName = "github.com/practicedesk/portal/pkg/access"

// NewValidator creates a Validator reading profiles from src.
func NewValidator(src profile.Source, opts ...Option) *Validator {
	v := &Validator{
		profiles: src,
		timeout:  DefaultTimeout,
		tracer:   otel.Tracer(tracerName),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "access")
	return v
}

// Validate returns the access decision for userID.
//
// Infrastructure failures, including the fetch timeout, are folded into an
// invalid decision with ReasonDatabaseError. The error return is non-nil only
// for an empty user id or when the caller's context is already done.
func (v *Validator) Validate(ctx context.Context, userID string) (Decision, error) {
	d, _, err := v.Check(ctx, userID)
	return d, err
}

// Check is Validate that also returns the fetched profile. The profile is nil
// unless the fetch succeeded.
func (v *Validator) Check(ctx context.Context, userID string) (Decision, *profile.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return Decision{}, nil, ErrEmptyUserID
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, nil, err
	}

	ctx, span := v.tracer.Start(ctx, "access.validate")
	defer span.End()

	start := time.Now()
	fetchCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	p, err := v.profiles.Fetch(fetchCtx, userID)
	d, result := decide(p, err)

	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The caller went away; its result is discarded anyway.
			span.SetStatus(codes.Error, "canceled")
			return Decision{}, nil, ctxErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile fetch failed")
		v.logger.Warn("profile fetch failed", "user_id", userID, "error", err)
	}

	span.SetAttributes(
		attribute.Bool("access.valid", d.Valid),
		attribute.String("access.result", result),
	)
	if v.observer != nil {
		v.observer.ObserveValidation(result, time.Since(start))
	}

	if !d.Valid {
		return d, nil, nil
	}
	return d, p, nil
}

func decide(p *profile.Profile, err error) (Decision, string) {
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return Deny(ReasonProfileNotFound), "not_found"
	case err != nil:
		return Deny(ReasonDatabaseError), "database_error"
	case p == nil:
		return Deny(ReasonProfileNotFound), "not_found"
	case !p.IsActive:
		return Deny(ReasonInactive), "inactive"
	default:
		return Allow, "valid"
	}
}
