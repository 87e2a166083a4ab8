// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Learner state errors
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrMalformedRecord        = errors.New("malformed record")
	ErrUnknownActivity        = errors.New("unknown activity")
	ErrInvariantViolation     = errors.New("invariant violation")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "registry", "medium"
	Op      string // Operation that failed, e.g., "Save", "SelectActivity"
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

// Learner state errors
var (
	ErrNegativeReward       = NewDomainError("progress", "AddStars", ErrInvariantViolation, "reward amount cannot be negative")
	ErrStarOverflow         = NewDomainError("progress", "AddStars", ErrInvariantViolation, "star total would overflow")
	ErrInvalidProgressTotal = NewDomainError("progress", "SetActivityProgress", ErrInvariantViolation, "progress total must be positive")
	ErrInvalidSettings      = NewDomainError("progress", "UpdateSettings", ErrInvalidInput, "invalid settings")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsPersistence checks if the error came from the storage medium.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistenceUnavailable)
}

// IsUnknownActivity checks if the caller asked for an unregistered activity kind.
func IsUnknownActivity(err error) bool {
	return errors.Is(err, ErrUnknownActivity)
}

// IsInvariantViolation checks if a request was rejected at a domain boundary.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
