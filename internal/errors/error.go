package errors

import (
	"errors"
	"fmt"
)

// Category groups error codes.
type Category string

const (
	CategoryConfig  Category = "config"
	CategoryBackend Category = "backend"
	CategoryCLI     Category = "cli"
)

// PortalError is a coded error with an optional hint and wrapped cause.
type PortalError struct {
	// Code is the registered identifier, e.g. "E120".
	Code string

	Category Category

	// Message is a short description.
	Message string

	// Detail is a longer explanation.
	Detail string

	// Suggestion tells the operator how to fix it.
	Suggestion string

	DocURL string

	Wrapped error
}

// Error implements the error interface.
func (e *PortalError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *PortalError) Unwrap() error {
	return e.Wrapped
}

// WithDetail sets the detailed explanation.
func (e *PortalError) WithDetail(d string) *PortalError {
	e.Detail = d
	return e
}

// WithSuggestion sets the fix hint.
func (e *PortalError) WithSuggestion(s string) *PortalError {
	e.Suggestion = s
	return e
}

// Wrap sets the underlying cause.
func (e *PortalError) Wrap(err error) *PortalError {
	e.Wrapped = err
	return e
}

// New creates a PortalError from a registered code.
func New(code string) *PortalError {
	template, ok := registry[code]
	if !ok {
		return &PortalError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &PortalError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates an uncoded PortalError with a formatted message.
func Newf(category Category, format string, args ...any) *PortalError {
	return &PortalError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in a PortalError with code. An err that already is a
// PortalError is returned as is.
func FromError(err error, code string) *PortalError {
	if err == nil {
		return nil
	}
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe
	}
	return New(code).Wrap(err)
}
