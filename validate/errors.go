package validate

import (
	"fmt"
	"strings"
)

// SchemaError reports required fields absent from a set of arguments.
type SchemaError struct {
	MissingFields []string
}

// Error returns a message listing the missing fields.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("validate: missing required fields: %s", strings.Join(e.MissingFields, ", "))
}

// SchemaCompileError is returned when a capability's parameter schema cannot
// be parsed or compiled.
type SchemaCompileError struct {
	Capability string
	Err        error
}

func (e *SchemaCompileError) Error() string {
	return fmt.Sprintf("validate: compile schema for %s: %v", e.Capability, e.Err)
}

// Unwrap returns the underlying compiler error.
func (e *SchemaCompileError) Unwrap() error {
	return e.Err
}
