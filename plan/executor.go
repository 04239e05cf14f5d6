package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/agent"
	"github.com/spetersoncode/toolflow/capability"
	"github.com/spetersoncode/toolflow/event"
)

// ErrEmptyPlan is returned when Execute is given no steps.
var ErrEmptyPlan = errors.New("plan: no steps")

// StepError wraps the failure of one step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("plan: step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepResult is the answer of one step.
type StepResult struct {
	Step   string
	Output string
	// Err is set for failed steps when the executor continues on error.
	Err error
}

// Result collects the outcome of a plan.
type Result struct {
	Steps []StepResult
	// Context holds the merged JSON objects the steps answered with.
	Context map[string]any
}

// Executor runs plan steps in order, one coordinator turn per step.
type Executor struct {
	gen     ai.Generator
	catalog *capability.Catalog
	opts    *Options
}

// NewExecutor creates an executor running steps against catalog.
func NewExecutor(gen ai.Generator, catalog *capability.Catalog, opts ...Option) *Executor {
	return &Executor{gen: gen, catalog: catalog, opts: ApplyOptions(opts...)}
}

// Execute runs steps sequentially. Each step sees only the capabilities it
// names and the context merged from earlier steps. The first failing step
// ends the plan with a *StepError unless WithContinueOnError is set.
func (e *Executor) Execute(ctx context.Context, steps []Step) (*Result, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyPlan
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	result := &Result{Context: map[string]any{}}
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return result, &StepError{Step: step.Name, Err: err}
		}

		event.EmitContext(ctx, e.opts.Sink, event.Event{Type: event.PlanStepStart, Step: i + 1, Message: step.Name})

		output, err := e.runStep(ctx, step, result.Context)
		if err != nil {
			if !e.opts.ContinueOnError || ctx.Err() != nil {
				return result, &StepError{Step: step.Name, Err: err}
			}
			e.opts.Logger.Warn("plan: step failed, continuing", "step", step.Name, "error", err)
			result.Steps = append(result.Steps, StepResult{Step: step.Name, Err: err})
			continue
		}

		if obj, ok := jsonObject(output); ok {
			maps.Copy(result.Context, obj)
		}
		result.Steps = append(result.Steps, StepResult{Step: step.Name, Output: output})

		event.EmitContext(ctx, e.opts.Sink, event.Event{Type: event.PlanStepEnd, Step: i + 1, Message: step.Name})
		if e.opts.OnStepComplete != nil {
			e.opts.OnStepComplete(ctx, result.Steps[len(result.Steps)-1])
		}
	}
	return result, nil
}

func (e *Executor) runStep(ctx context.Context, step Step, shared map[string]any) (string, error) {
	if e.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.StepTimeout)
		defer cancel()
	}

	caps := e.catalog.Select(func(c ai.Capability) bool {
		return slices.Contains(step.Tools, c.Name)
	})
	opts := append(slices.Clone(e.opts.AgentOptions),
		agent.WithDescription("You are executing the following step: "+step.Description))

	coord, err := agent.New(e.gen, agent.FromList(caps...), opts...)
	if err != nil {
		return "", err
	}

	previous, _ := json.Marshal(shared)
	prompt := fmt.Sprintf("Step: %s\n%s\nPrevious context: %s\nProceed with this step.",
		step.Name, step.Description, previous)
	return coord.SendMessage(ctx, prompt)
}

func jsonObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(ai.CleanJSON(text)), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// Options configures an Executor.
type Options struct {
	// AgentOptions configure the coordinator of every step. A step's
	// description always replaces agent.WithDescription.
	AgentOptions []agent.Option

	// Timeout bounds the whole plan. Zero means none.
	Timeout time.Duration

	// StepTimeout bounds each step. Zero means none.
	StepTimeout time.Duration

	// ContinueOnError runs the remaining steps after a failure.
	ContinueOnError bool

	// OnStepComplete is called after each successful step.
	OnStepComplete func(ctx context.Context, r StepResult)

	Sink   event.Sink
	Logger *slog.Logger
}

// Option is a functional option for configuring an Executor.
type Option func(*Options)

// WithAgentOptions sets the options of every step's coordinator.
func WithAgentOptions(opts ...agent.Option) Option {
	return func(o *Options) {
		o.AgentOptions = append(o.AgentOptions, opts...)
	}
}

// WithTimeout sets the overall plan timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithStepTimeout sets the timeout of each step.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.StepTimeout = d
	}
}

// WithContinueOnError lets the plan continue after a failed step.
func WithContinueOnError(enabled bool) Option {
	return func(o *Options) {
		o.ContinueOnError = enabled
	}
}

// WithOnStepComplete sets a callback run after each successful step.
func WithOnStepComplete(fn func(ctx context.Context, r StepResult)) Option {
	return func(o *Options) {
		o.OnStepComplete = fn
	}
}

// WithSink sets where plan events are sent.
func WithSink(s event.Sink) Option {
	return func(o *Options) {
		o.Sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// ApplyOptions applies functional options to an Options struct with defaults.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		Sink:   event.Discard,
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
