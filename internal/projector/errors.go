package projector

import (
	"errors"
	"fmt"
)

// Error is a failure to project one event. The projection transaction is
// always rolled back, cursor included.
//
// Permanent errors come from malformed ledger data and will fail the same
// way on every redelivery. Everything else, typically the database, is
// transient and worth retrying.
type Error struct {
	EventID   string
	Key       string
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Key != "" {
		return fmt.Sprintf("project event %s (%s, key=%s): %v", e.EventID, kind, e.Key, e.Err)
	}
	return fmt.Sprintf("project event %s (%s): %v", e.EventID, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a permanent projection error.
// Uses errors.As to handle wrapped errors.
func IsPermanent(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return false
}

// errDecode marks failures that must become permanent errors.
type errDecode struct{ err error }

func (e errDecode) Error() string { return e.err.Error() }
func (e errDecode) Unwrap() error { return e.err }

func decodeError(format string, args ...any) error {
	return errDecode{err: fmt.Errorf(format, args...)}
}
