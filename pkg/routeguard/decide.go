package routeguard

import "github.com/practicedesk/portal/pkg/profile"

// Outcome is the result of evaluating a protected route.
type Outcome int

const (
	// Loading renders a placeholder until the missing state arrives.
	Loading Outcome = iota
	// RedirectSignIn sends the user to the sign-in page.
	RedirectSignIn
	// RedirectMaintenance sends the user to the maintenance page.
	RedirectMaintenance
	// RedirectUnauthorized sends the user to the unauthorized page.
	RedirectUnauthorized
	// Render serves the protected content.
	Render
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case RedirectSignIn:
		return "redirect_sign_in"
	case RedirectMaintenance:
		return "redirect_maintenance"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Input is the resolved state a route decision is made from.
type Input struct {
	// SessionLoaded is false until the session store has answered.
	SessionLoaded bool
	// SignedIn reports whether a session with a user exists.
	SignedIn bool
	// Profile is the current user's profile; nil while it is loading.
	Profile *profile.Profile

	// PortalLoaded is false until the portal status has been polled once.
	PortalLoaded bool
	PortalActive bool

	// AllowedRoles restricts the route; empty means any role.
	AllowedRoles []profile.Role
}

// Rules are the named, auditable policy switches of the gate.
type Rules struct {
	// SuperAdminBypass lets super_admin pass every role restriction, listed
	// or not.
	SuperAdminBypass bool
}

// DefaultRules returns the production rules.
func DefaultRules() Rules {
	return Rules{SuperAdminBypass: true}
}

// Allows reports whether role satisfies allowed under r.
func (r Rules) Allows(role profile.Role, allowed []profile.Role) bool {
	if len(allowed) == 0 {
		return true
	}
	if r.SuperAdminBypass && role == profile.RoleSuperAdmin {
		return true
	}
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}

// Decide evaluates in against rules. The first matching rule wins:
//
//  1. session or portal status not loaded yet: Loading
//  2. no session: RedirectSignIn
//  3. profile not fetched yet: Loading
//  4. inactive profile: RedirectSignIn
//  5. portal inactive and role not admin or super_admin: RedirectMaintenance
//  6. role not allowed: RedirectUnauthorized
//  7. Render
func Decide(in Input, rules Rules) Outcome {
	switch {
	case !in.SessionLoaded || !in.PortalLoaded:
		return Loading
	case !in.SignedIn:
		return RedirectSignIn
	case in.Profile == nil:
		return Loading
	case !in.Profile.IsActive:
		return RedirectSignIn
	case !in.PortalActive && !in.Profile.Role.IsAdmin():
		return RedirectMaintenance
	case !rules.Allows(in.Profile.Role, in.AllowedRoles):
		return RedirectUnauthorized
	default:
		return Render
	}
}
