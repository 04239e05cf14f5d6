package resolver

import (
	"errors"
	"fmt"
)

// ErrNoCompanion is returned when a capability has no companion and its
// arguments therefore cannot be resolved.
var ErrNoCompanion = errors.New("resolver: capability has no companion")

// NoCompanionError identifies the capability that lacks a companion.
type NoCompanionError struct {
	Capability string
}

func (e *NoCompanionError) Error() string {
	return fmt.Sprintf("resolver: capability %q has no companion", e.Capability)
}

// Unwrap returns ErrNoCompanion.
func (e *NoCompanionError) Unwrap() error {
	return ErrNoCompanion
}

// UnresolvedFieldError is returned when no source could supply a required field.
type UnresolvedFieldError struct {
	Capability string
	Field      string
	// Err is the asker's failure, if asking was how resolution ended.
	Err error
}

func (e *UnresolvedFieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolver: missing required field %q for %q: %v", e.Field, e.Capability, e.Err)
	}
	return fmt.Sprintf("resolver: missing required field %q for %q", e.Field, e.Capability)
}

// Unwrap returns the underlying asker error, if any.
func (e *UnresolvedFieldError) Unwrap() error {
	return e.Err
}

// ResolverExhaustedError is returned when arguments are still incomplete
// after the cycle budget is spent.
type ResolverExhaustedError struct {
	Capability string
	MaxCycles  int
}

func (e *ResolverExhaustedError) Error() string {
	return fmt.Sprintf("resolver: exceeded %d cycles for %q", e.MaxCycles, e.Capability)
}
