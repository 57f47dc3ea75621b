package family

import (
	"errors"
	"fmt"

	"github.com/roach88/gameroom/internal/bucket"
)

// ApplyError is returned when a transaction cannot be applied.
//
// Kinds:
//   - INVALID_TRANSACTION: bad payload, unknown action, missing or
//     duplicate entity, failed role guard. Never retry.
//   - SERIALIZATION: stored bucket bytes are corrupt.
//   - INTERNAL: the ledger context failed.
type ApplyError struct {
	Kind    ApplyErrorKind
	Message string
	Err     error
}

// ApplyErrorKind categorizes apply failures.
type ApplyErrorKind string

const (
	// ErrInvalidTransaction rejects the transaction outright.
	ErrInvalidTransaction ApplyErrorKind = "INVALID_TRANSACTION"

	// ErrSerialization reports corrupt state.
	ErrSerialization ApplyErrorKind = "SERIALIZATION"

	// ErrInternal reports a ledger I/O failure.
	ErrInternal ApplyErrorKind = "INTERNAL"
)

// Error implements the error interface.
func (e *ApplyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ApplyError) Unwrap() error {
	return e.Err
}

// InvalidTransaction builds an INVALID_TRANSACTION error.
func InvalidTransaction(format string, args ...any) *ApplyError {
	return &ApplyError{Kind: ErrInvalidTransaction, Message: fmt.Sprintf(format, args...)}
}

// FromStore classifies an error returned by a state.Store.
func FromStore(op string, err error) *ApplyError {
	var ae *ApplyError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, bucket.ErrInvalidSerialization) {
		return &ApplyError{Kind: ErrSerialization, Message: op, Err: err}
	}
	// state.ErrStore and anything unrecognized
	return &ApplyError{Kind: ErrInternal, Message: op, Err: err}
}

// IsInvalidTransaction reports whether err rejects the transaction.
func IsInvalidTransaction(err error) bool {
	return KindOf(err) == ErrInvalidTransaction
}

// IsSerialization reports whether err comes from corrupt state.
func IsSerialization(err error) bool {
	return KindOf(err) == ErrSerialization
}

// IsInternal reports whether err comes from the ledger itself.
func IsInternal(err error) bool {
	return KindOf(err) == ErrInternal
}

// KindOf returns the kind of an ApplyError in err's chain, or "".
func KindOf(err error) ApplyErrorKind {
	var ae *ApplyError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
