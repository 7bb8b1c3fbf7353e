package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write would break an integrity invariant;
	// the record is surfaced for investigation, never silently overwritten.
	ErrConflict = errors.New("record conflict")
	// ErrInsufficientData indicates an analysis cannot conclude yet. It is a
	// legitimate pending state, not a failure; callers retry later.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrLeaseHeld indicates another worker owns the pair's transition lease.
	ErrLeaseHeld = errors.New("lease held by another worker")
	// ErrEscalated indicates automation is halted pending manual clearance.
	ErrEscalated = errors.New("pair is escalated pending manual clearance")
	// ErrNotEligible indicates a lead does not match a campaign's segment.
	ErrNotEligible = errors.New("lead does not match campaign segment")
)

// ValidationError reports malformed configuration, rejected synchronously at
// authoring time.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
