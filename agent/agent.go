package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/capability"
	"github.com/spetersoncode/toolflow/event"
	"github.com/spetersoncode/toolflow/resolver"
	"github.com/spetersoncode/toolflow/retry"
)

const tracerName = "github.com/spetersoncode/toolflow/agent"

// Coordinator runs conversational turns: it asks the generator what to do,
// completes and runs the capabilities it requests, and feeds the results
// back until the generator answers without requesting anything.
type Coordinator struct {
	gen      ai.Generator
	catalog  *capability.Catalog
	triggers map[string]Trigger
	resolver *resolver.Resolver
	opts     *Options
	tracer   trace.Tracer
}

// New creates a Coordinator over the capabilities of src.
func New(gen ai.Generator, src Source, opts ...Option) (*Coordinator, error) {
	if gen == nil {
		return nil, ErrNilGenerator
	}
	o := ApplyOptions(opts...)
	if err := o.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	c := &Coordinator{
		gen:      gen,
		opts:     o,
		triggers: map[string]Trigger{},
	}

	switch s := src.(type) {
	case listSource:
		c.catalog = capability.NewCatalog(s, capability.WithLogger(o.Logger))
	case catalogSource:
		if s.catalog == nil {
			return nil, ErrNilSource
		}
		c.catalog = s.catalog
	case Bundle:
		c.catalog = capability.NewCatalog(s.Capabilities, capability.WithLogger(o.Logger))
		maps.Copy(c.triggers, s.Triggers)
	default:
		return nil, ErrNilSource
	}

	c.resolver = o.Resolver
	if c.resolver == nil {
		c.resolver = resolver.New(
			resolver.WithMemory(o.Memory),
			resolver.WithRetriever(o.Retriever),
			resolver.WithAsker(o.Asker),
			resolver.WithPeers(c.catalog),
			resolver.WithMaxCycles(o.MaxCycles),
			resolver.WithSink(o.Sink),
			resolver.WithLogger(o.Logger),
		)
	}

	tp := o.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c.tracer = tp.Tracer(tracerName)

	return c, nil
}

// Catalog returns the capabilities the coordinator can invoke.
func (c *Coordinator) Catalog() *capability.Catalog {
	return c.catalog
}

// Triggers returns the triggers supplied with a Bundle source.
func (c *Coordinator) Triggers() map[string]Trigger {
	return maps.Clone(c.triggers)
}

// SendMessage runs one turn for the user's text and returns the final
// answer. Per-call generator options are applied after the defaults.
//
// Unknown capabilities and argument resolution failures end the turn with
// an error. Capability failures are reported to the generator, which may
// try something else.
func (c *Coordinator) SendMessage(ctx context.Context, text string, opts ...ai.Option) (string, error) {
	ctx, span := c.tracer.Start(ctx, "agent.SendMessage",
		trace.WithAttributes(attribute.Int("agent.capabilities", c.catalog.Len())))
	defer span.End()

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	c.emit(ctx, event.Event{Type: event.TurnStart, Message: text})

	final, steps, err := c.run(ctx, text, opts)
	span.SetAttributes(attribute.Int("agent.steps", steps))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.emit(ctx, event.Event{Type: event.TurnError, Step: steps, Error: err})
		return "", err
	}

	c.emit(ctx, event.Event{Type: event.TurnEnd, Step: steps, Message: final})
	return final, nil
}

// SendMessageStream runs a turn in the background and returns a channel of
// its events. The final answer is the Message of the TurnEnd event; a
// failed turn ends with TurnError. The channel is closed when the turn ends.
//
// No event is dropped: the turn waits for the receiver. Callers that stop
// reading must cancel ctx.
func (c *Coordinator) SendMessageStream(ctx context.Context, text string, opts ...ai.Option) <-chan event.Event {
	ch := event.NewChannel()

	go func() {
		defer close(ch)
		_, _ = c.SendMessage(event.ContextWithSink(ctx, event.Blocking(ctx, ch)), text, opts...)
	}()

	return ch
}

func (c *Coordinator) run(ctx context.Context, text string, opts []ai.Option) (string, int, error) {
	prompt, err := c.buildPrompt(ctx, text)
	if err != nil {
		return "", 0, err
	}

	step := 0
	for {
		step++
		if c.opts.MaxSteps > 0 && step > c.opts.MaxSteps {
			return "", step - 1, ErrMaxSteps
		}

		c.emit(ctx, event.Event{Type: event.Generate, Step: step})

		genOpts := slices.Concat(c.opts.Defaults, opts, []ai.Option{ai.WithCapabilities(c.catalog.List())})
		gen, err := retry.Do(ctx, c.opts.Retry, func(ctx context.Context) (*ai.Generation, error) {
			return c.gen.Generate(ctx, prompt, genOpts...)
		}, c.retryOptions(ctx, "", step)...)
		if err != nil {
			return "", step, fmt.Errorf("agent: generate: %w", err)
		}

		if len(gen.Invocations) == 0 {
			c.store(ctx, text, gen.Text)
			return gen.Text, step, nil
		}

		for _, inv := range gen.Invocations {
			note, err := c.handle(ctx, inv, step)
			if err != nil {
				return "", step, err
			}
			prompt.Notes = append(prompt.Notes, note)
		}
	}
}

func (c *Coordinator) buildPrompt(ctx context.Context, text string) (ai.Prompt, error) {
	prompt := ai.Prompt{System: c.opts.Description, User: text}
	if c.opts.Memory == nil {
		return prompt, nil
	}

	history, err := c.opts.Memory.Context(ctx)
	if err != nil {
		return prompt, fmt.Errorf("agent: load conversation: %w", err)
	}
	prompt.History = history

	if fs, ok := c.opts.Memory.(ai.FactSource); ok {
		facts, err := fs.Facts(ctx, text)
		if err != nil {
			return prompt, fmt.Errorf("agent: load facts: %w", err)
		}
		prompt.Facts = facts
	}
	return prompt, nil
}

// repairArguments asks the generator to fix arguments that did not decode.
// When that fails too the invocation proceeds with what it has and the
// resolver gathers the missing fields.
func (c *Coordinator) repairArguments(ctx context.Context, inv ai.Invocation) map[string]any {
	var args map[string]any
	if err := ai.RepairJSON(ctx, c.gen, inv.RawArguments, &args); err != nil || args == nil {
		c.opts.Logger.Warn("agent: dropping malformed arguments",
			"capability", inv.Name, "invocation", inv.ID, "error", err)
		return inv.Arguments
	}
	return args
}

// handle runs one invocation and returns the note describing its outcome.
// The returned error is fatal to the turn.
func (c *Coordinator) handle(ctx context.Context, inv ai.Invocation, step int) (string, error) {
	if inv.ID == "" {
		inv.ID = ai.GenerateInvocationID()
	}
	c.emit(ctx, event.Event{Type: event.InvocationRequested, Step: step, Capability: inv.Name, InvocationID: inv.ID})

	target, ok := c.catalog.FindByName(inv.Name)
	if !ok {
		return "", &UnknownCapabilityError{Name: inv.Name}
	}

	if inv.RawArguments != "" {
		inv.Arguments = c.repairArguments(ctx, inv)
	}

	if c.requiresApproval(inv.Name) {
		if approved, reason := c.opts.Approver(ctx, inv); !approved {
			if reason == "" {
				reason = "rejected by the user"
			}
			c.emit(ctx, event.Event{
				Type:         event.CapabilityFailed,
				Step:         step,
				Capability:   inv.Name,
				InvocationID: inv.ID,
				Message:      reason,
			})
			return fmt.Sprintf("The capability %q was not approved: %s.", inv.Name, reason), nil
		}
	}

	args, err := c.resolver.Resolve(ctx, target, inv.Arguments)
	if err != nil {
		return "", &ResolutionError{Name: inv.Name, Err: err}
	}

	c.emit(ctx, event.Event{Type: event.CapabilityInvoked, Step: step, Capability: inv.Name, InvocationID: inv.ID})

	result, err := retry.Do(ctx, c.opts.Retry, func(ctx context.Context) (any, error) {
		return c.invoke(ctx, target, args)
	}, c.retryOptions(ctx, inv.Name, step)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		execErr := &CapabilityExecutionError{Name: inv.Name, Err: err}
		c.emit(ctx, event.Event{
			Type:         event.CapabilityFailed,
			Step:         step,
			Capability:   inv.Name,
			InvocationID: inv.ID,
			Error:        execErr,
		})
		return fmt.Sprintf("The capability %q failed because %v. Want me to try a different approach?", inv.Name, err), nil
	}

	rendered := render(result)
	c.emit(ctx, event.Event{
		Type:         event.CapabilityResult,
		Step:         step,
		Capability:   inv.Name,
		InvocationID: inv.ID,
		Message:      rendered,
	})
	return fmt.Sprintf("Result of %q: %s", inv.Name, rendered), nil
}

func (c *Coordinator) invoke(ctx context.Context, target ai.Capability, args map[string]any) (any, error) {
	if target.Invoke == nil {
		return nil, errors.New("capability has no implementation")
	}
	if c.opts.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.InvokeTimeout)
		defer cancel()
	}
	return target.Invoke(ctx, args)
}

func (c *Coordinator) retryOptions(ctx context.Context, name string, step int) []retry.Option {
	notify := retry.WithNotify(func(a retry.Attempt) {
		c.emit(ctx, event.Event{
			Type:       event.RetryAttempt,
			Step:       step,
			Capability: name,
			Attempt:    a.Number,
			Delay:      a.Delay,
			Error:      a.Err,
		})
	})
	return append(slices.Clone(c.opts.RetryOptions), notify)
}

func (c *Coordinator) requiresApproval(name string) bool {
	if c.opts.Approver == nil {
		return false
	}
	if len(c.opts.ApprovalRequired) == 0 {
		return true
	}
	return slices.Contains(c.opts.ApprovalRequired, name)
}

func (c *Coordinator) store(ctx context.Context, user, agent string) {
	if c.opts.Memory == nil {
		return
	}
	if err := c.opts.Memory.Store(ctx, user, agent); err != nil {
		c.opts.Logger.Warn("agent: failed to store turn", "error", err)
	}
}

func (c *Coordinator) emit(ctx context.Context, e event.Event) {
	event.EmitContext(ctx, c.opts.Sink, e)
}

// render serializes a capability result as compact JSON.
func render(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
