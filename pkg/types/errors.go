package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks lookups for entities that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition marks state machine edges that are not allowed
	// from the entity's current state. Background jobs treat this as a
	// no-op; the API surfaces it as a client error.
	ErrInvalidTransition = errors.New("invalid transition")
)

func invalidTransition(entity, transition, from string) error {
	return fmt.Errorf("%w: %s cannot %s from state %q", ErrInvalidTransition, entity, transition, from)
}

// ValidationError aggregates input problems for one request. The messages
// are returned to the caller verbatim.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// NewValidationError builds a ValidationError from one or more messages.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}
