// Package errs defines the error kinds every order-facing operation reports.
// Callers classify with errors.Is against the Err* kinds and errors.As to
// reach the details.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrConflict                = errors.New("concurrent modification")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrNotFound and ErrForbidden are wrapped with fmt.Errorf for lookups
	// and catalog permissions.
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports malformed input. Nothing was written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation is shorthand for &ValidationError{Field: field, Reason: reason}.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError reports an action the order's status or the
// acting principal does not allow. Reason is one of the order package's
// sentinel errors.
type InvalidTransitionError struct {
	OrderID string
	From    string
	Action  string
	Actor   string
	Reason  error
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s order %s (status %s, actor %s): %v", e.Action, e.OrderID, e.From, e.Actor, e.Reason)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func (e *InvalidTransitionError) Unwrap() error { return e.Reason }

// ConflictError reports a lost optimistic-concurrency race. The operation
// may be retried after reloading.
type ConflictError struct {
	AggregateID     string
	ExpectedVersion int
	Err             error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s was modified concurrently (expected version %d)", e.AggregateID, e.ExpectedVersion)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

// CollaboratorUnavailableError reports a failing dependency such as the
// event store or the catalog.
type CollaboratorUnavailableError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorUnavailableError) Is(target error) bool {
	return target == ErrCollaboratorUnavailable
}

func (e *CollaboratorUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err unless it already carries one of the kinds above.
func Unavailable(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &CollaboratorUnavailableError{Collaborator: collaborator, Err: err}
}

// Classified reports whether err is one of the kinds defined here.
func Classified(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrCollaboratorUnavailable) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden)
}

// Kind returns a short label for metrics and API error codes.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCollaboratorUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}
