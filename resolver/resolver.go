// Package resolver fills in capability arguments the model left out.
//
// Resolution runs a bounded loop: validate the arguments, and for every
// missing required field try, in order, memory, retrieval, a peer capability
// that produces the field, and finally a human. The loop stops as soon as
// the arguments validate or the cycle budget is spent.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/event"
	"github.com/spetersoncode/toolflow/retry"
	"github.com/spetersoncode/toolflow/validate"
)

const genericPrompt = `I need "%s" to proceed. Please provide it.`

// Resolver completes capability arguments. A Resolver holds no per-call
// state and may be shared by concurrent turns.
type Resolver struct {
	validator *validate.Validator
	memory    ai.Memory
	retriever ai.Retriever
	asker     ai.Asker
	peers     PeerLister
	retry     retry.Config
	maxCycles int
	maxAsks   int
	sink      event.Sink
	logger    *slog.Logger
}

// New creates a Resolver. Without options it can only apply aliases and
// defaults; sources are added with WithMemory, WithRetriever, WithPeers
// and WithAsker.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		retry:     retry.Disabled(),
		maxCycles: DefaultMaxCycles,
		maxAsks:   DefaultMaxAsks,
		sink:      event.Discard,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.validator == nil {
		r.validator = validate.New()
	}
	return r
}

// MaxCycles returns the validation pass budget.
func (r *Resolver) MaxCycles() int {
	return r.maxCycles
}

// Resolve returns a copy of args completed so that it satisfies the required
// fields of c.Parameters. The caller's map is never modified.
func (r *Resolver) Resolve(ctx context.Context, c ai.Capability, args map[string]any) (map[string]any, error) {
	return r.resolve(ctx, c, args, make(map[string]bool))
}

// resolve tracks the capabilities currently being resolved in visited so a
// peer that needs the field it is being asked for is never re-entered.
func (r *Resolver) resolve(ctx context.Context, c ai.Capability, args map[string]any, visited map[string]bool) (map[string]any, error) {
	if c.Companion == nil {
		return nil, &NoCompanionError{Capability: c.Name}
	}

	visited[c.Name] = true
	defer delete(visited, c.Name)

	current, _ := clone(args).(map[string]any)
	if current == nil {
		current = make(map[string]any)
	}

	r.applyAliases(ctx, c, current)
	r.applyDefaults(ctx, c, current)

	for cycle := 1; cycle <= r.maxCycles; cycle++ {
		res, err := r.validator.Validate(c, current)
		if err != nil {
			return nil, err
		}
		if res.Valid {
			return current, nil
		}

		for _, field := range res.MissingFields {
			r.emit(ctx, event.Event{Type: event.FieldMissing, Capability: c.Name, Field: field, Cycle: cycle})

			value, err := r.resolveField(ctx, c, field, cycle, visited)
			if err != nil {
				return nil, err
			}
			setPath(current, field, clone(value))
		}
	}

	return nil, &ResolverExhaustedError{Capability: c.Name, MaxCycles: r.maxCycles}
}

// resolveField tries every source for field in order and returns the first
// non-empty value.
func (r *Resolver) resolveField(ctx context.Context, c ai.Capability, field string, cycle int, visited map[string]bool) (any, error) {
	resolved := func(v any, src event.Source, peer string) (any, error) {
		r.emit(ctx, event.Event{
			Type:       event.FieldResolved,
			Capability: c.Name,
			Field:      field,
			Source:     src,
			Peer:       peer,
			Cycle:      cycle,
		})
		return v, nil
	}

	if r.memory != nil {
		v, ok, err := r.memory.Get(ctx, field)
		if err != nil {
			return nil, fmt.Errorf("resolver: memory lookup %q: %w", field, err)
		}
		if ok && !isEmpty(v) {
			return resolved(v, event.SourceMemory, "")
		}
	}

	if r.retriever != nil {
		v, ok, err := r.retriever.Query(ctx, field)
		if err != nil {
			return nil, fmt.Errorf("resolver: retrieval %q: %w", field, err)
		}
		if ok && v != "" {
			return resolved(v, event.SourceRetrieval, "")
		}
	}

	if v, peer, ok, err := r.fromPeer(ctx, c, field, cycle, visited); err != nil {
		return nil, err
	} else if ok {
		return resolved(v, event.SourcePeer, peer)
	}

	if r.asker != nil {
		v, ok, err := r.ask(ctx, c, field)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.emit(ctx, event.Event{Type: event.FieldUnresolved, Capability: c.Name, Field: field, Cycle: cycle, Error: err})
			return nil, &UnresolvedFieldError{Capability: c.Name, Field: field, Err: err}
		}
		if ok {
			return resolved(v, event.SourcePrompt, "")
		}
	}

	r.emit(ctx, event.Event{Type: event.FieldUnresolved, Capability: c.Name, Field: field, Cycle: cycle})
	return nil, &UnresolvedFieldError{Capability: c.Name, Field: field}
}

// fromPeer runs the first producing capability that is not already being
// resolved. Peer failures are reported and treated as "not found".
func (r *Resolver) fromPeer(ctx context.Context, c ai.Capability, field string, cycle int, visited map[string]bool) (any, string, bool, error) {
	if r.peers == nil {
		return nil, "", false, nil
	}

	candidates := r.peers.Producing(field)
	idx := slices.IndexFunc(candidates, func(p ai.Capability) bool {
		return !visited[p.Name]
	})
	if idx < 0 {
		return nil, "", false, nil
	}
	peer := candidates[idx]

	v, err := r.runPeer(ctx, peer, field, visited)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", false, ctxErr
		}
		r.emit(ctx, event.Event{
			Type:       event.PeerFailed,
			Capability: c.Name,
			Field:      field,
			Peer:       peer.Name,
			Cycle:      cycle,
			Error:      err,
		})
		return nil, "", false, nil
	}

	r.remember(ctx, field, v)
	return v, peer.Name, true, nil
}

func (r *Resolver) runPeer(ctx context.Context, peer ai.Capability, field string, visited map[string]bool) (any, error) {
	if peer.Invoke == nil {
		return nil, fmt.Errorf("resolver: peer %q has no implementation", peer.Name)
	}

	args, err := r.resolve(ctx, peer, map[string]any{}, visited)
	if err != nil {
		return nil, err
	}

	result, err := retry.Do(ctx, r.retry, func(ctx context.Context) (any, error) {
		return peer.Invoke(ctx, args)
	}, retry.WithNotify(func(a retry.Attempt) {
		r.emit(ctx, event.Event{
			Type:       event.RetryAttempt,
			Capability: peer.Name,
			Attempt:    a.Number,
			Delay:      a.Delay,
			Error:      a.Err,
		})
	}))
	if err != nil {
		return nil, err
	}

	generic, err := toGeneric(result)
	if err != nil {
		return nil, fmt.Errorf("resolver: peer %q result: %w", peer.Name, err)
	}
	v, ok := getPath(generic, field)
	if !ok || isEmpty(v) {
		return nil, fmt.Errorf("resolver: peer %q did not return %q", peer.Name, field)
	}
	return v, nil
}

// ask prompts for field until the companion accepts the answer, the answer
// is empty, or the ask budget is spent.
func (r *Resolver) ask(ctx context.Context, c ai.Capability, field string) (string, bool, error) {
	prompt := c.Companion.PromptForField(field)
	if prompt == "" {
		prompt = fmt.Sprintf(genericPrompt, field)
	}

	for attempt := 1; attempt <= r.maxAsks; attempt++ {
		answer, err := r.asker.Ask(ctx, field, c, prompt)
		if err != nil {
			return "", false, err
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return "", false, nil
		}
		if c.Companion.IsValidValueForField(field, answer) {
			r.remember(ctx, field, answer)
			return answer, true, nil
		}
		r.logger.Debug("resolver: rejected answer",
			"capability", c.Name,
			"field", field,
			"attempt", attempt)
	}
	return "", false, nil
}

func (r *Resolver) remember(ctx context.Context, field string, v any) {
	if r.memory == nil {
		return
	}
	if err := r.memory.Set(ctx, field, v); err != nil {
		r.logger.Warn("resolver: memory write failed", "field", field, "error", err)
	}
}

// applyAliases copies alias values onto absent canonical fields. Canonical
// fields are visited in sorted order and aliases in declared order, so the
// first present alias wins.
func (r *Resolver) applyAliases(ctx context.Context, c ai.Capability, args map[string]any) {
	aliases := c.Companion.Aliases()
	canonicals := make([]string, 0, len(aliases))
	for k := range aliases {
		canonicals = append(canonicals, k)
	}
	slices.Sort(canonicals)

	for _, canonical := range canonicals {
		for _, alias := range aliases[canonical] {
			if _, has := args[canonical]; has {
				break
			}
			v, ok := args[alias]
			if !ok {
				continue
			}
			args[canonical] = v
			r.emit(ctx, event.Event{
				Type:       event.AliasApplied,
				Capability: c.Name,
				Field:      canonical,
				Message:    alias,
			})
		}
	}
}

// applyDefaults fills absent top-level properties with their schema default.
func (r *Resolver) applyDefaults(ctx context.Context, c ai.Capability, args map[string]any) {
	if len(c.Parameters) == 0 {
		return
	}
	var schema struct {
		Properties map[string]struct {
			Default json.RawMessage `json:"default"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(c.Parameters, &schema); err != nil {
		return
	}

	keys := make([]string, 0, len(schema.Properties))
	for k := range schema.Properties {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		raw := schema.Properties[key].Default
		if raw == nil {
			continue
		}
		if _, has := args[key]; has {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		args[key] = v
		r.emit(ctx, event.Event{Type: event.DefaultApplied, Capability: c.Name, Field: key})
	}
}

func (r *Resolver) emit(ctx context.Context, e event.Event) {
	event.EmitContext(ctx, r.sink, e)
}

// IsResolutionError reports whether err came from argument resolution rather
// than from the context or a storage backend.
func IsResolutionError(err error) bool {
	var (
		unresolved *UnresolvedFieldError
		exhausted  *ResolverExhaustedError
	)
	return errors.Is(err, ErrNoCompanion) || errors.As(err, &unresolved) || errors.As(err, &exhausted)
}
