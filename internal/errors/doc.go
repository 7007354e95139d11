// Package errors provides coded, actionable errors for the portal CLI and
// process startup.
//
// Each code maps to a registered template with a short message, a longer
// detail and a documentation URL:
//   - E1xx: configuration errors
//   - E2xx: backend errors (database, Redis, collector)
//   - E3xx: command-line usage errors
//
// # Usage
//
//	err := errors.New("E121").
//	    WithDetail("session.maxAge: time: invalid duration \"ten\"").
//	    WithSuggestion("Use a Go duration such as \"12h\"")
//
//	errors.PrintError(err)
//	// ERROR E121: Invalid duration
//	//
//	//   session.maxAge: time: invalid duration "ten"
//	//
//	//   Hint: Use a Go duration such as "12h"
package errors
