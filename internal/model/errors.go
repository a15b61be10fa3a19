package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	// ErrLocked is returned for preference mutations once lockAfter has
	// sealed the instance.
	ErrLocked = errors.New("meeting assist is locked")
	// ErrStaleCallback marks a solver callback whose correlation id refers
	// to a meeting already past Solving; acknowledged but never reapplied.
	ErrStaleCallback = errors.New("stale or duplicate callback")
	// ErrUnknownCorrelation marks a callback whose correlation id matches
	// nothing we submitted; rejected, never applied blindly.
	ErrUnknownCorrelation = errors.New("unknown correlation id")
)

// Invalid wraps a message in ErrValidation.
func Invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
