package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update operation fails for a reason
	// other than a missing record or a version conflict.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStaleWrite is returned by a conditional update when the stored record
	// has been written since the caller read it. The caller should re-read the
	// record and decide again.
	ErrStaleWrite = errors.New("stale write: record was modified concurrently")

	// ErrTaskNotFound indicates that the requested generation task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: generation task", ErrNotFound)
)

// IsNotFoundError reports whether err means the task does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStaleWriteError reports whether err is a lost optimistic-concurrency race.
func IsStaleWriteError(err error) bool {
	return errors.Is(err, ErrStaleWrite)
}

// TaskError records which task store operation failed and why. It wraps the
// cause so the sentinels above still match with errors.Is.
type TaskError struct {
	Op      string
	Message string
	Err     error
}

func (e *TaskError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("task store %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("task store %s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError creates a TaskError for op.
func NewTaskError(op, message string, err error) *TaskError {
	return &TaskError{Op: op, Message: message, Err: err}
}
