package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes surfaced to callers. Wrap them with
// fmt.Errorf("...: %w", ...) and test with errors.Is.
var (
	// ErrNotFound marks a missing room, turn, branch, or memory.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a failed ownership check.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument marks a request the caller can fix.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict marks a detected concurrent mutation.
	ErrConflict = errors.New("conflict")
	// ErrUpstream marks a generation-call failure. It never propagates to the
	// chat response path; summarization logs it and moves on.
	ErrUpstream = errors.New("upstream failure")
	// ErrStore marks a persistence failure.
	ErrStore = errors.New("store failure")
)

// NotFoundf wraps ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Forbiddenf wraps ErrForbidden with a formatted reason.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrForbidden)...)
}

// InvalidArgumentf wraps ErrInvalidArgument with a formatted reason.
func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

// Storef wraps a persistence error so handlers map it to a 500.
func Storef(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrStore)
}
