package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/gameroom/internal/family"
)

// Exit codes of the gameroom binary.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // rejected transaction, missing row, failed scenario or projection
	ExitCommandError = 2 // bad flags or config, unreadable feed, unreachable store
)

// Error codes reported in error responses.
const (
	CodeRejected   = "E_REJECTED"
	CodeNotFound   = "E_NOT_FOUND"
	CodeProjection = "E_PROJECTION"
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command error to the process exit code. Errors
// without an ExitError in their chain exit with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Texter is implemented by results with a human-readable rendering.
type Texter interface {
	Text(w io.Writer)
}

// Response is the JSON envelope of every command result.
type Response struct {
	Status string     `json:"status"` // "ok" or "error"
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed command. Kind is the ApplyError kind of a
// rejected transaction.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or JSON. Failures a
// caller should see on stdout (rejections, missing rows, failed
// projections) are reported through it before the command returns.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool // print error details in text mode
}

// Success writes data. Text mode uses the Texter rendering when data has
// one and fmt's default format otherwise.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	if t, ok := data.(Texter); ok {
		t.Text(f.Writer)
		return nil
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Rejected reports a transaction the family refused and returns the
// ExitFailure error for it.
func (f *OutputFormatter) Rejected(err error) error {
	kind := family.KindOf(err)
	_ = f.report(ErrorBody{Code: CodeRejected, Message: err.Error(), Kind: string(kind)})
	return WrapExitError(ExitFailure, "transaction rejected", err)
}

// NotFound reports a missing read model row.
func (f *OutputFormatter) NotFound(what string, err error) error {
	_ = f.report(ErrorBody{Code: CodeNotFound, Message: what + " not found"})
	return WrapExitError(ExitFailure, what, err)
}

// ProjectionFailed reports a feed that stopped with the events it got
// through.
func (f *OutputFormatter) ProjectionFailed(err error, progress any) error {
	_ = f.report(ErrorBody{Code: CodeProjection, Message: err.Error(), Details: progress})
	return WrapExitError(ExitFailure, "projection failed", err)
}

func (f *OutputFormatter) report(body ErrorBody) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "error", Error: &body})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", body.Code, body.Message); err != nil {
		return err
	}
	if f.Verbose && body.Details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", body.Details)
		return err
	}
	return nil
}
