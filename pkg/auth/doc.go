// Package auth defines the identity provider contract of the portal.
//
// The provider owns credentials: it signs users in and out and runs the
// password reset flow. What a signed-in user may see is decided elsewhere,
// by package access from the user's profile.
//
// Implementations:
//
//   - pgauth: credentials in Postgres, bcrypt hashes, signed reset tokens
//   - sessionauth: the cookie middleware that binds requests to sessions
package auth
