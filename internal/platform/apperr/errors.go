// Package apperr defines the error taxonomy shared by the scheduling and
// patient domains and its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled is returned when a caller-supplied confirmation declines an
// irreversible operation.
var ErrCancelled = errors.New("operation cancelled: confirmation required")

// ValidationError lists every rule the input violated.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, ", ")
}

// NewValidation builds a ValidationError from one or more reasons.
func NewValidation(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

// ConflictError reports that the target slot is already occupied, or that a
// record identifier is already taken.
type ConflictError struct {
	Resource   string
	Key        string
	ExistingID string
	// Reason replaces the default message when set.
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.ExistingID != "" {
		return fmt.Sprintf("%s %s is already taken (by %s)", e.Resource, e.Key, e.ExistingID)
	}
	return fmt.Sprintf("%s %s is already taken", e.Resource, e.Key)
}

// NotFoundError reports that an edit or delete target no longer exists.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// StoreError wraps a failure of the persistence collaborator. The message of
// the underlying error is opaque to the core.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps err as a StoreError unless it is nil or already classified.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Classified reports whether err already belongs to the taxonomy.
func Classified(err error) bool {
	var (
		ve *ValidationError
		ce *ConflictError
		ne *NotFoundError
		se *StoreError
	)
	return errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &ne) ||
		errors.As(err, &se) || errors.Is(err, ErrCancelled)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func IsStore(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
