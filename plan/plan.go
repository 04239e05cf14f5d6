// Package plan splits a task into steps with a generator and runs each step
// as its own coordinator turn, restricted to the capabilities the step
// names. Steps run in order; JSON objects a step answers with are merged
// into a shared context handed to the steps after it.
//
//	planner := plan.NewPlanner(llm, catalog)
//	executor := plan.NewExecutor(llm, catalog, plan.WithAgentOptions(agent.WithMemory(mem)))
//
//	steps, err := planner.Create(ctx, "find the releases channel and announce v2")
//	if err != nil {
//	    return err
//	}
//	result, err := executor.Execute(ctx, steps)
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/capability"
	"github.com/spetersoncode/toolflow/event"
	"github.com/spetersoncode/toolflow/retry"
)

// DefaultPlannerDescription is the system description of a planner.
const DefaultPlannerDescription = "You are a planner that breaks tasks into steps."

// Step is one unit of a plan.
type Step struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
}

// Planner asks a generator to break a task into steps.
type Planner struct {
	gen     ai.Generator
	catalog *capability.Catalog
	opts    *PlannerOptions
}

// NewPlanner creates a planner choosing from the capabilities in catalog.
func NewPlanner(gen ai.Generator, catalog *capability.Catalog, opts ...PlannerOption) *Planner {
	return &Planner{gen: gen, catalog: catalog, opts: applyPlannerOptions(opts...)}
}

// Create returns the steps for task. An answer that is not a JSON array of
// steps gets one repair attempt; after that the whole task becomes a single
// step with every capability.
// Capability names the catalog does not know are dropped.
func (p *Planner) Create(ctx context.Context, task string) ([]Step, error) {
	caps := p.catalog.List()
	prompt := ai.Prompt{System: p.opts.Description, User: planPrompt(task, caps)}

	gen, err := retry.Do(ctx, p.opts.Retry, func(ctx context.Context) (*ai.Generation, error) {
		return p.gen.Generate(ctx, prompt, p.opts.Generate...)
	}, p.opts.RetryOptions...)
	if err != nil {
		return nil, fmt.Errorf("plan: generate: %w", err)
	}

	var steps []Step
	if err := ai.RepairJSON(ctx, p.gen, gen.Text, &steps); err != nil || len(steps) == 0 {
		p.opts.Logger.Warn("plan: unusable plan, falling back to a single step", "error", err)
		names := make([]string, len(caps))
		for i, c := range caps {
			names[i] = c.Name
		}
		steps = []Step{{Name: "Task", Description: task, Tools: names}}
	}

	for i := range steps {
		if steps[i].Name == "" {
			steps[i].Name = fmt.Sprintf("Step %d", i+1)
		}
		steps[i].Tools = slices.DeleteFunc(steps[i].Tools, func(name string) bool {
			if _, ok := p.catalog.FindByName(name); ok {
				return false
			}
			p.opts.Logger.Warn("plan: dropping unknown capability", "step", steps[i].Name, "capability", name)
			return true
		})
	}

	event.EmitContext(ctx, p.opts.Sink, event.Event{Type: event.PlanCreated, Step: len(steps), Message: task})
	return steps, nil
}

func planPrompt(task string, caps []ai.Capability) string {
	var tools strings.Builder
	for _, c := range caps {
		fmt.Fprintf(&tools, "- %s: %s\n", c.Name, c.Description)
	}
	return fmt.Sprintf(`Given the following task:

%q

Break it into clear steps. Each step has a name, a description and the tools it needs, chosen from the list below.

Return only a JSON array in this exact format:

[{"name": "Step Name", "description": "What happens in this step", "tools": ["tool1", "tool2"]}]

Available tools:
%s
Do not add any other text besides the JSON.`, task, tools.String())
}

// PlannerOptions configures a Planner.
type PlannerOptions struct {
	Description  string
	Retry        retry.Config
	RetryOptions []retry.Option
	Generate     []ai.Option
	Sink         event.Sink
	Logger       *slog.Logger
}

// PlannerOption is a functional option for configuring a Planner.
type PlannerOption func(*PlannerOptions)

// WithDescription replaces DefaultPlannerDescription.
func WithDescription(d string) PlannerOption {
	return func(o *PlannerOptions) {
		o.Description = d
	}
}

// WithPlannerRetry sets the retry policy of the planning generation.
func WithPlannerRetry(cfg retry.Config, opts ...retry.Option) PlannerOption {
	return func(o *PlannerOptions) {
		o.Retry = cfg
		o.RetryOptions = append(o.RetryOptions, opts...)
	}
}

// WithGenerateOptions passes options to the planning generation.
func WithGenerateOptions(opts ...ai.Option) PlannerOption {
	return func(o *PlannerOptions) {
		o.Generate = append(o.Generate, opts...)
	}
}

// WithPlannerSink sets where plan events are sent.
func WithPlannerSink(s event.Sink) PlannerOption {
	return func(o *PlannerOptions) {
		o.Sink = s
	}
}

// WithPlannerLogger sets the logger.
func WithPlannerLogger(l *slog.Logger) PlannerOption {
	return func(o *PlannerOptions) {
		o.Logger = l
	}
}

func applyPlannerOptions(opts ...PlannerOption) *PlannerOptions {
	o := &PlannerOptions{
		Description: DefaultPlannerDescription,
		Retry:       retry.DefaultConfig(),
		Sink:        event.Discard,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
