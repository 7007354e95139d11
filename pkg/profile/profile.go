package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the authorization role of a portal user.
type Role string

const (
	RoleClient     Role = "client"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ErrNotFound is returned by a Source when no profile row exists for the user.
var ErrNotFound = errors.New("profile not found")

// ErrUnknownRole is returned by ParseRole for values outside the role set.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleClient, RoleStaff, RoleAdmin, RoleSuperAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// IsAdmin reports whether the role belongs to the administrative tier.
// Administrators keep access to the portal while it is in maintenance.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) String() string {
	return string(r)
}

// Profile holds the authorization facts about a user. It is distinct from
// the authentication identity: a user can hold a valid identity while their
// profile is inactive or missing.
type Profile struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"is_active"`
	DisplayName string    `json:"display_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a copy of the profile so callers cannot mutate a cached value.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Source fetches profiles from the remote store.
//
// Fetch must filter to exactly one row by id. It returns ErrNotFound when no
// row exists and any other error for infrastructure failures.
type Source interface {
	Fetch(ctx context.Context, userID string) (*Profile, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, userID string) (*Profile, error)

// Fetch calls f(ctx, userID).
func (f SourceFunc) Fetch(ctx context.Context, userID string) (*Profile, error) {
	return f(ctx, userID)
}
