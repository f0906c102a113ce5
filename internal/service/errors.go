package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/phrazzld/banana-api/internal/store"
	"github.com/phrazzld/banana-api/internal/upload"
)

// ServiceError wraps unexpected failures of a service operation with context.
//
// Error handling principles:
// 1. Expected conditions (validation, upload, provider, not found) are returned
// as their package sentinels so the API layer can map them with errors.Is
// 2. Anything else is wrapped in ServiceError
type ServiceError struct {
	// Operation is the operation that failed (e.g., "create_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("generation service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError returns known sentinel errors unchanged and wraps anything
// else in a ServiceError.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if isExpected(err) {
		return err
	}
	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

func isExpected(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		upload.ErrUnsupportedMediaType,
		upload.ErrPayloadTooLarge,
		generation.ErrProviderUnavailable,
		generation.ErrProviderRejected,
		store.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
