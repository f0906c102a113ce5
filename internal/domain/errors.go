package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a generation request or task fails validation.
	// It is usually wrapped in a ValidationError naming the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidResolution is returned when a resolution is not one of the supported tiers.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrInvalidAspectRatio is returned when an aspect ratio is not supported.
	ErrInvalidAspectRatio = errors.New("invalid aspect ratio")

	// ErrInvalidTaskStatus is returned when a status string is not a known task status.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrEmptyTaskID is returned when a task is built without a provider task ID.
	ErrEmptyTaskID = errors.New("task ID cannot be empty")
)

// ValidationError describes a single invalid field of a request.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError. When err is nil the error
// wraps ErrValidation.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped error so errors.Is(err, ErrValidation) holds
// for every ValidationError.
func (e *ValidationError) Unwrap() []error {
	if errors.Is(e.Err, ErrValidation) {
		return []error{e.Err}
	}
	return []error{e.Err, ErrValidation}
}
