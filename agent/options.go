package agent

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/event"
	"github.com/spetersoncode/toolflow/resolver"
	"github.com/spetersoncode/toolflow/retry"
)

// ApproverFunc is called before a capability runs when approval is required.
// It returns true to approve the invocation, or false with a reason. The
// reason is reported to the generator instead of a result.
type ApproverFunc func(ctx context.Context, inv ai.Invocation) (approved bool, reason string)

// Options contains the configuration of a Coordinator.
type Options struct {
	// Memory supplies conversation history and remembered values.
	Memory ai.Memory

	// Retriever is consulted for missing arguments after memory.
	Retriever ai.Retriever

	// Asker is the human fallback for missing arguments.
	Asker ai.Asker

	// Description becomes the system part of every prompt.
	Description string

	// Retry applies to generator calls and capability invocations.
	// Default is retry.DefaultConfig().
	Retry retry.Config

	// RetryOptions are passed to every retried call.
	RetryOptions []retry.Option

	// Resolver overrides the resolver built from Memory, Retriever and Asker.
	Resolver *resolver.Resolver

	// MaxCycles bounds argument resolution. Default is resolver.DefaultMaxCycles.
	MaxCycles int

	// MaxSteps limits the number of generations per turn. Default is 10.
	// Set to 0 for unlimited (not recommended).
	MaxSteps int

	// Timeout sets a deadline for each turn. Zero means none.
	Timeout time.Duration

	// InvokeTimeout bounds each capability attempt. Default is 30 seconds.
	// Zero means no per-attempt timeout.
	InvokeTimeout time.Duration

	// Approver enables human approval of invocations.
	Approver ApproverFunc

	// ApprovalRequired names the capabilities that need approval. When empty
	// and Approver is set, every capability does.
	ApprovalRequired []string

	// Sink receives every event of every turn.
	Sink event.Sink

	// Logger reports non-fatal failures. Default is slog.Default().
	Logger *slog.Logger

	// Defaults are generator options applied before per-call options.
	Defaults []ai.Option

	// TracerProvider creates the turn spans. Default is the global provider.
	TracerProvider trace.TracerProvider
}

// Option is a functional option for configuring a Coordinator.
type Option func(*Options)

// WithMemory sets the conversation and entity memory.
func WithMemory(m ai.Memory) Option {
	return func(o *Options) {
		o.Memory = m
	}
}

// WithRetriever sets the retrieval source for missing arguments.
func WithRetriever(r ai.Retriever) Option {
	return func(o *Options) {
		o.Retriever = r
	}
}

// WithAsker sets the human fallback for missing arguments.
func WithAsker(a ai.Asker) Option {
	return func(o *Options) {
		o.Asker = a
	}
}

// WithDescription sets the system description included in every prompt.
func WithDescription(d string) Option {
	return func(o *Options) {
		o.Description = d
	}
}

// WithRetry sets the retry policy for generator calls and invocations.
func WithRetry(cfg retry.Config, opts ...retry.Option) Option {
	return func(o *Options) {
		o.Retry = cfg
		o.RetryOptions = append(o.RetryOptions, opts...)
	}
}

// WithResolver replaces the default resolver.
func WithResolver(r *resolver.Resolver) Option {
	return func(o *Options) {
		o.Resolver = r
	}
}

// WithMaxCycles sets the argument resolution cycle budget.
func WithMaxCycles(n int) Option {
	return func(o *Options) {
		o.MaxCycles = n
	}
}

// WithMaxSteps sets the maximum number of generations per turn.
func WithMaxSteps(n int) Option {
	return func(o *Options) {
		o.MaxSteps = n
	}
}

// WithTimeout sets a deadline for each turn.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithInvokeTimeout bounds each capability attempt.
func WithInvokeTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.InvokeTimeout = d
	}
}

// WithApprover sets the human-in-the-loop approval function.
func WithApprover(fn ApproverFunc) Option {
	return func(o *Options) {
		o.Approver = fn
	}
}

// WithApprovalRequired limits approval to the named capabilities.
func WithApprovalRequired(names ...string) Option {
	return func(o *Options) {
		o.ApprovalRequired = names
	}
}

// WithSink sets where events are sent.
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

// WithDefaults sets generator options applied to every generation.
func WithDefaults(opts ...ai.Option) Option {
	return func(o *Options) {
		o.Defaults = append(o.Defaults, opts...)
	}
}

// WithTracerProvider sets the provider used to create turn spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

// ApplyOptions applies functional options to an Options struct with defaults.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		Retry:         retry.DefaultConfig(),
		MaxCycles:     resolver.DefaultMaxCycles,
		MaxSteps:      10,
		InvokeTimeout: 30 * time.Second,
		Sink:          event.Discard,
		Logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
