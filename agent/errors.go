package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for coordinator termination conditions.
var (
	// ErrMaxSteps indicates the generator kept requesting capabilities past
	// the step limit.
	ErrMaxSteps = errors.New("agent: maximum steps reached")

	// ErrNilGenerator is returned by New when no generator is supplied.
	ErrNilGenerator = errors.New("agent: generator is required")

	// ErrNilSource is returned by New when no capability source is supplied.
	ErrNilSource = errors.New("agent: capability source is required")
)

// UnknownCapabilityError is returned when the generator requests a
// capability that is not in the catalog. It ends the turn.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("agent: unknown capability: %s", e.Name)
}

// CapabilityExecutionError wraps a capability failure after retries. It is
// reported to the generator as a note and does not end the turn.
type CapabilityExecutionError struct {
	Name string
	Err  error
}

func (e *CapabilityExecutionError) Error() string {
	return fmt.Sprintf("agent: %s execution failed: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *CapabilityExecutionError) Unwrap() error {
	return e.Err
}

// ResolutionError wraps an argument resolution failure for a capability.
// It ends the turn.
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("agent: resolve arguments for %s: %v", e.Name, e.Err)
}

// Unwrap returns the resolver's error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}
