// Package portal tracks the global switch that opens or closes the portal to
// non-admin users.
package portal
