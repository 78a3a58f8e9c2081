package corc

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed or missing numeric input.
// Callers that receive one are expected to fall back to the estimate path.
type ValidationError struct {
	// Field is the JSON name of the offending input.
	Field string

	// Reason describes what is wrong with the value.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
