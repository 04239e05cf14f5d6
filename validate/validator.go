// Package validate checks capability arguments against their JSON Schema and
// reports which required fields are absent.
//
// Only "required" violations matter: a value with the wrong type or outside an
// enum is left for the capability itself to reject. This keeps the resolver
// focused on gathering missing values instead of second-guessing the model.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	ai "github.com/spetersoncode/toolflow"
)

// Result is the outcome of validating a set of arguments.
type Result struct {
	// Valid is true when no required field is missing.
	Valid bool
	// MissingFields lists dotted paths of absent required fields.
	MissingFields []string
}

// Err returns a *SchemaError describing the missing fields, or nil if the
// result is valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &SchemaError{MissingFields: r.MissingFields}
}

// Validator validates arguments against capability parameter schemas.
// Compiled schemas are cached; it is safe for concurrent use.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// New creates a Validator with an empty schema cache.
func New() *Validator {
	return &Validator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate reports the required fields of c.Parameters that args does not
// supply. The returned error is non-nil only when the schema itself is broken.
func (v *Validator) Validate(c ai.Capability, args map[string]any) (Result, error) {
	if len(bytes.TrimSpace(c.Parameters)) == 0 {
		return Result{Valid: true}, nil
	}

	sch, err := v.compile(c.Name, c.Parameters)
	if err != nil {
		return Result{}, err
	}

	inst, err := normalize(args)
	if err != nil {
		return Result{}, fmt.Errorf("validate: %s: normalize arguments: %w", c.Name, err)
	}

	err = sch.Validate(inst)
	if err == nil {
		return Result{Valid: true}, nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return Result{}, fmt.Errorf("validate: %s: %w", c.Name, err)
	}

	missing := missingFields(verr)
	return Result{Valid: len(missing) == 0, MissingFields: missing}, nil
}

func (v *Validator) compile(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	key := name + "\x00" + string(schema)

	v.mu.RLock()
	sch, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return sch, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, &SchemaCompileError{Capability: name, Err: err}
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("parameters.json", doc); err != nil {
		return nil, &SchemaCompileError{Capability: name, Err: err}
	}
	sch, err = c.Compile("parameters.json")
	if err != nil {
		return nil, &SchemaCompileError{Capability: name, Err: err}
	}

	v.mu.Lock()
	v.cache[key] = sch
	v.mu.Unlock()
	return sch, nil
}

// normalize converts args into the generic JSON representation the schema
// library validates (map[string]any, []any, json.Number).
func normalize(args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

type missingGroup struct {
	location string
	fields   []string
}

// missingFields walks the error tree depth-first and turns every "required"
// violation into dotted paths. Groups are ordered by instance location.
//
// A failed anyOf or oneOf reports one error per alternative. Only the
// alternative missing the fewest fields is kept, the first one on a tie, so
// fields of the other alternatives are never asked for.
func missingFields(root *jsonschema.ValidationError) []string {
	groups := requiredGroups(root)

	slices.SortStableFunc(groups, func(a, b missingGroup) int {
		return strings.Compare(a.location, b.location)
	})

	var out []string
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, f := range g.fields {
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func requiredGroups(e *jsonschema.ValidationError) []missingGroup {
	var groups []missingGroup
	if req, ok := e.ErrorKind.(*kind.Required); ok {
		loc := strings.Join(e.InstanceLocation, ".")
		g := missingGroup{location: loc}
		for _, prop := range req.Missing {
			if loc == "" {
				g.fields = append(g.fields, prop)
			} else {
				g.fields = append(g.fields, loc+"."+prop)
			}
		}
		groups = append(groups, g)
	}

	switch e.ErrorKind.(type) {
	case *kind.AnyOf, *kind.OneOf:
		var best []missingGroup
		for i, alt := range e.Causes {
			g := requiredGroups(alt)
			if i == 0 || countFields(g) < countFields(best) {
				best = g
			}
		}
		return append(groups, best...)
	}

	for _, cause := range e.Causes {
		groups = append(groups, requiredGroups(cause)...)
	}
	return groups
}

func countFields(groups []missingGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.fields)
	}
	return n
}
