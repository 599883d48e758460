package domain

import (
	"errors"
	"fmt"
)

// ErrUndoEmpty is returned when Undo is requested with no recorded mutations.
var ErrUndoEmpty = errors.New("undo log is empty")

// ErrNotFound is returned when a referenced entity is not present in the store.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError reports malformed or missing input detected before any
// optimistic mutation is applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// IsGuard reports whether err is (or wraps) a GuardError.
func IsGuard(err error) bool {
	var g GuardError
	return errors.As(err, &g)
}
