package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError is returned when an operation is rejected because of its
// input or the current state. State is left unchanged.
type ValidationError struct {
	Op     string
	Reason string
	Err    error
}

// NewValidationError builds a ValidationError wrapping ErrValidation
func NewValidationError(op, reason string) *ValidationError {
	return &ValidationError{Op: op, Reason: reason, Err: ErrValidation}
}

// NewTransitionError builds a ValidationError wrapping ErrInvalidTransition
func NewTransitionError(op, reason string) *ValidationError {
	return &ValidationError{Op: op, Reason: reason, Err: ErrInvalidTransition}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrValidation
	}
	return e.Err
}

// Is lets errors.Is(err, ErrValidation) match every ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError is returned when a referenced entity does not exist
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DataShapeError marks an alert missing expected raw_data structure
type DataShapeError struct {
	AlertID string
	Missing []string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("alert %s: raw_data missing %s", e.AlertID, strings.Join(e.Missing, ", "))
}

// Has reports whether the named section is missing
func (e *DataShapeError) Has(section string) bool {
	for _, m := range e.Missing {
		if m == section {
			return true
		}
	}
	return false
}

// ConfigurationError marks a missing or invalid setting detected at start-up
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
