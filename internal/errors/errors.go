// Package errors provides sentinel errors and exit codes for the dbtlearn CLI.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation covers bad configuration, selectors and partition keys.
	ErrValidation = errors.New("validation error")

	// ErrNotFound covers a missing manifest, model, asset group, run or binary.
	ErrNotFound = errors.New("not found")

	// ErrToolFailed means a dbt invocation exited non-zero.
	ErrToolFailed = errors.New("dbt invocation failed")

	// ErrVersion means the dbt binary is older than the supported minimum.
	ErrVersion = errors.New("version mismatch")
)

// Process exit codes. 3 and 4 are unused.
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitValidationError = 2
	ExitNotFound        = 5
	ExitVersionMismatch = 6
	ExitToolFailed      = 7
)

// ExitError carries the process exit code for err.
type ExitError struct {
	Err  error
	Code int

	// Printed is set when the command already reported the error, so main
	// exits without printing it again.
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCodeFromError maps err to an exit code: an explicit ExitError wins,
// then the sentinel it wraps.
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	for _, m := range sentinelCodes {
		if errors.Is(err, m.sentinel) {
			return m.code
		}
	}
	return ExitGeneralError
}

var sentinelCodes = []struct {
	sentinel error
	code     int
}{
	{ErrValidation, ExitValidationError},
	{ErrNotFound, ExitNotFound},
	{ErrVersion, ExitVersionMismatch},
	{ErrToolFailed, ExitToolFailed},
}

// DetailError is a user-facing error with the file and field it concerns
// and a suggested fix.
type DetailError struct {
	// Message says what is wrong.
	Message string

	// Location is the file the error refers to, if any.
	Location string

	// Field is the config key, selector or flag at fault, if any.
	Field string

	// Hint suggests a fix.
	Hint string

	// Cause is the wrapped sentinel or underlying error.
	Cause error
}

// Kind names the error category from its cause.
func (e *DetailError) Kind() string {
	switch {
	case errors.Is(e.Cause, ErrValidation):
		return "validation failed"
	case errors.Is(e.Cause, ErrNotFound):
		return "not found"
	case errors.Is(e.Cause, ErrVersion):
		return "unsupported version"
	case errors.Is(e.Cause, ErrToolFailed):
		return "dbt failed"
	default:
		return "error"
	}
}

func (e *DetailError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", e.Kind())
	if e.Location != "" {
		fmt.Fprintf(&b, "  Location: %s\n", e.Location)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "  Field: %s\n", e.Field)
	}
	fmt.Fprintf(&b, "\n  %s\n", e.Message)
	if e.Hint != "" {
		fmt.Fprintf(&b, "\nHint: %s\n", e.Hint)
	}
	return b.String()
}

func (e *DetailError) Unwrap() error {
	return e.Cause
}

// NewValidationError returns a DetailError wrapping ErrValidation.
func NewValidationError(message, location, field, hint string) error {
	return &DetailError{Message: message, Location: location, Field: field, Hint: hint, Cause: ErrValidation}
}

// NewNotFoundError returns a DetailError wrapping ErrNotFound.
func NewNotFoundError(message, location, hint string) error {
	return &DetailError{Message: message, Location: location, Hint: hint, Cause: ErrNotFound}
}

// Wrap prefixes sentinel with message.
func Wrap(sentinel error, message string) error {
	return fmt.Errorf("%s: %w", message, sentinel)
}
