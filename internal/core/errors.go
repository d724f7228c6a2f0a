package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrZeroDate           = errors.New("date cannot be zero")
	ErrEmptyCategory      = errors.New("empty category")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrNegativeWeight     = errors.New("negative category weight")
	ErrNegativeFloor      = errors.New("negative category floor")
	ErrPlanNotFound       = errors.New("budget plan not found")
)

// ValidationError marks input rejected at the boundary: the grid is left
// unmodified and the caller should not retry the same input.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError for a field with a literal reason.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// WrapValidation builds a ValidationError around an underlying error.
func WrapValidation(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// ConfigurationError marks a weight set, threshold or profile rejected at
// load time, before any grid is built.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// ConflictError signals a stale plan version during an optimistic update.
// The caller is expected to re-read the plan and retry; the engine itself
// performs no hidden retries.
type ConflictError struct {
	UserID  string
	Year    int
	Month   int
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: plan %s %04d-%02d version %d is stale",
		e.UserID, e.Year, e.Month, e.Version)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
