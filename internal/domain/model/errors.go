package model

import (
	"errors"
	"fmt"
)

// Sentinel kinds for prediction errors. Callers branch with errors.Is.
var (
	// ErrModelUnavailable marks a per-model failure absorbed inside the
	// resilience layer; it surfaces to callers only in aggregate.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrEnsembleUnavailable means zero healthy models contributed.
	ErrEnsembleUnavailable = errors.New("ensemble unavailable: no healthy models contributed")
)

// ValidationError reports malformed request input. It is never retried and
// surfaces to the caller immediately.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a named request field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
