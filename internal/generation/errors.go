package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by providers.
var (
	// ErrProviderUnavailable is returned when the provider cannot be reached
	// or answers with a non-2xx status.
	ErrProviderUnavailable = errors.New("image provider unavailable")

	// ErrProviderRejected is returned when the provider answers but refuses the
	// request, or its answer lacks a task ID.
	ErrProviderRejected = errors.New("image provider rejected the request")

	// ErrInvalidConfig is returned when the provider configuration is invalid.
	ErrInvalidConfig = errors.New("invalid provider configuration")
)

// ProviderError carries the provider's own message alongside one of the
// sentinel kinds above.
type ProviderError struct {
	Kind       error
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewUnavailableError wraps a transport failure or non-2xx answer.
func NewUnavailableError(statusCode int, message string, err error) *ProviderError {
	return &ProviderError{
		Kind:       ErrProviderUnavailable,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// NewRejectedError wraps a refusal reported in the provider's response body.
func NewRejectedError(message string) *ProviderError {
	return &ProviderError{
		Kind:    ErrProviderRejected,
		Message: message,
	}
}

// ProviderMessage returns the provider's message from err, if any.
func ProviderMessage(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return ""
}
