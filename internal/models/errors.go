package models

import (
	"errors"
	"fmt"
)

// ValidationError reports invalid caller-supplied input. It is returned
// before any work is attempted, so a caller seeing one knows nothing was
// fetched, merged, or persisted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ParseError reports a single unreadable token or row. Loaders recover by
// dropping the row and counting it; a ParseError never aborts a load.
type ParseError struct {
	Token string
	Field string // "date", "gold", "silver" or "" for the whole row
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cannot parse %s from %q", e.Field, e.Token)
	}
	return fmt.Sprintf("cannot parse %q", e.Token)
}

// FetchError is a terminal remote-fetch failure: retries exhausted, a
// non-retryable status, or an unreadable body. Data assembled before the
// failure is still returned alongside it.
type FetchError struct {
	Status   int // last HTTP status, 0 for transport-level failures
	Attempts int
	Cause    error
}

func (e *FetchError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Cause)
	}
	return fmt.Sprintf("fetch failed: %v", e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// IsFetch reports whether err is or wraps a FetchError.
func IsFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
