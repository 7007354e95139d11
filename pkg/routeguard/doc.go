// Package routeguard decides what a request for a protected page gets.
//
// Decide is a pure function over already-resolved state and never fails.
// Gate wraps it as HTTP middleware: it reads the session placed in the
// request context by sessionauth, the user's profile (from the session cache
// or fetched on demand) and the portal status, and then renders, redirects
// with 303 See Other, or serves a self-refreshing loading page.
//
//	r.With(gate.Protect(profile.RoleStaff)).Get("/staff", staffHome)
package routeguard
