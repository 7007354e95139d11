// Package access decides whether a signed-in user may keep using the portal.
//
// The Validator reads the user's profile and returns a Decision:
//
//   - backend failure or timeout: invalid, "Database error"
//   - no profile row: invalid, "Profile not found. ..."
//   - inactive profile: invalid, "Account inactive. ..."
//   - otherwise: valid
//
// Validation fails closed (see Policy). The portal status flag in package
// portal deliberately uses the opposite policy.
package access
