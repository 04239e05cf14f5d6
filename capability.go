package toolflow

import (
	"context"
	"encoding/json"
	"slices"
)

// Func executes a capability with fully resolved arguments.
// The returned value is serialized to JSON before it is shown to the model,
// so it should be a map, struct, slice or scalar.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Capability defines a named action the model may invoke.
type Capability struct {
	// Name is the unique identifier for the capability.
	Name string
	// Description explains what the capability does (helps the model decide when to use it).
	Description string
	// Parameters is a JSON Schema object defining the arguments.
	Parameters json.RawMessage
	// OutputSchema optionally describes the shape of the result.
	OutputSchema json.RawMessage
	// Outputs lists the fields this capability produces. The resolver uses it
	// to find a peer that can supply a missing argument. When empty, the
	// top-level properties of OutputSchema are used instead.
	Outputs []string
	// Piece names the integration the capability belongs to (e.g. "slack").
	Piece string
	// Companion supplies aliases, prompts and field validity checks.
	// A capability without a companion cannot have its arguments resolved.
	Companion Companion
	// Invoke runs the capability.
	Invoke Func
}

// Produces reports whether the capability declares field as one of its outputs.
func (c Capability) Produces(field string) bool {
	return slices.Contains(c.OutputFields(), field)
}

// OutputFields returns the declared outputs, falling back to the top-level
// properties of OutputSchema.
func (c Capability) OutputFields() []string {
	if len(c.Outputs) > 0 {
		return c.Outputs
	}
	if len(c.OutputSchema) == 0 {
		return nil
	}
	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(c.OutputSchema, &schema); err != nil {
		return nil
	}
	fields := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		fields = append(fields, name)
	}
	slices.Sort(fields)
	return fields
}

// Metadata is the serializable description of a capability, without its
// implementation.
type Metadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Outputs     []string        `json:"outputs,omitempty"`
	Piece       string          `json:"piece,omitempty"`
}

// Metadata returns the serializable description of the capability.
func (c Capability) Metadata() Metadata {
	return Metadata{
		Name:        c.Name,
		Description: c.Description,
		Parameters:  c.Parameters,
		Outputs:     c.OutputFields(),
		Piece:       c.Piece,
	}
}

// Invocation is a request from the generator to run a capability.
type Invocation struct {
	// ID is a unique identifier for this invocation.
	ID string `json:"id"`
	// Name is the capability to run.
	Name string `json:"name"`
	// Arguments are the arguments the generator supplied. They may be partial.
	Arguments map[string]any `json:"arguments"`
	// RawArguments holds the generator's argument text when it could not be
	// decoded. Arguments is empty in that case.
	RawArguments string `json:"raw_arguments,omitempty"`
}

// ToolChoice controls how the model uses capabilities.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide when to invoke capabilities (default).
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone disables capability use for the request.
	ToolChoiceNone ToolChoice = "none"
	// ToolChoiceRequired forces the model to invoke a capability.
	ToolChoiceRequired ToolChoice = "required"
)
