package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the routing engine.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrUnknownScenario   = errors.New("unknown scenario")
	ErrInvalidK          = errors.New("invalid route count")

	ErrGraphUnavailable         = errors.New("road network unavailable")
	ErrIncidentStoreUnavailable = errors.New("incident store unavailable")
	ErrMalformedEdge            = errors.New("malformed edge attributes")

	ErrSessionNotFound = errors.New("route session not found")
	ErrInvalidFeedback = errors.New("invalid trip feedback")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
