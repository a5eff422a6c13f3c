// Package shared contains common domain errors used across all layers.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidInput = errors.New("invalid input")

	// Authentication and authorization errors
	ErrAuthFailed      = errors.New("upstream authentication failed")
	ErrCookiesExpired  = errors.New("session cookies expired")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Upstream errors
	ErrUpstreamProtocol  = errors.New("upstream protocol violation")
	ErrUpstreamTransport = errors.New("upstream transport failure")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "sync", "glasir", "store"
	Op      string // Operation that failed, e.g., "InitialSync", "FetchWeek"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// UpstreamHTTPError reports an unexpected HTTP status from the upstream site.
// It matches ErrUpstreamTransport for 5xx and timeout-class statuses, and
// ErrUpstreamProtocol otherwise.
type UpstreamHTTPError struct {
	Op         string
	URL        string
	StatusCode int
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("glasir.%s: unexpected status %d from %s", e.Op, e.StatusCode, e.URL)
}

// Is implements errors.Is() matching against the upstream error kinds.
func (e *UpstreamHTTPError) Is(target error) bool {
	if target == ErrUpstreamTransport {
		return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
	}
	return target == ErrUpstreamProtocol
}

// UserMessage extracts a client-safe message from an error chain: the
// outermost DomainError message when one exists, otherwise a generic
// phrase for the matched kind. Wrapped transport details stay internal.
func UserMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}

	switch {
	case errors.Is(err, ErrCookiesExpired):
		return "Cookies expired"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrAlreadyExists):
		return "Already exists"
	case errors.Is(err, ErrUnauthenticated):
		return "Unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrAuthFailed):
		return "Upstream authentication failed"
	case errors.Is(err, ErrUpstreamTransport):
		return "Upstream temporarily unavailable"
	case errors.Is(err, ErrUpstreamProtocol):
		return "Upstream returned an unexpected response"
	case IsValidation(err):
		return "Invalid request"
	default:
		return "Internal server error"
	}
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidInput)
}
