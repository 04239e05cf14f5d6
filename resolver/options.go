package resolver

import (
	"log/slog"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/event"
	"github.com/spetersoncode/toolflow/retry"
	"github.com/spetersoncode/toolflow/validate"
)

// DefaultMaxCycles is the default number of validation passes per resolution.
const DefaultMaxCycles = 3

// DefaultMaxAsks is the default number of times a field is asked for before
// an invalid answer is given up on.
const DefaultMaxAsks = 3

// PeerLister finds capabilities that produce a field.
// *capability.Catalog implements it.
type PeerLister interface {
	Producing(field string) []ai.Capability
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMemory sets the memory consulted first and written after peer and
// prompt resolution.
func WithMemory(m ai.Memory) Option {
	return func(r *Resolver) {
		r.memory = m
	}
}

// WithRetriever sets the retrieval source consulted after memory.
func WithRetriever(rt ai.Retriever) Option {
	return func(r *Resolver) {
		r.retriever = rt
	}
}

// WithAsker sets the human fallback.
func WithAsker(a ai.Asker) Option {
	return func(r *Resolver) {
		r.asker = a
	}
}

// WithPeers sets where producing capabilities are looked up.
func WithPeers(p PeerLister) Option {
	return func(r *Resolver) {
		r.peers = p
	}
}

// WithValidator shares a validator (and its schema cache).
func WithValidator(v *validate.Validator) Option {
	return func(r *Resolver) {
		r.validator = v
	}
}

// WithRetry sets the retry policy for peer invocations. Peers are invoked
// once by default.
func WithRetry(cfg retry.Config) Option {
	return func(r *Resolver) {
		r.retry = cfg
	}
}

// WithMaxCycles sets the number of validation passes per resolution.
func WithMaxCycles(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxCycles = n
		}
	}
}

// WithMaxAsks bounds how often a field is asked for when answers are rejected.
func WithMaxAsks(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAsks = n
		}
	}
}

// WithSink sets where resolution events are sent.
func WithSink(s event.Sink) Option {
	return func(r *Resolver) {
		r.sink = s
	}
}

// WithLogger sets the logger used for non-fatal storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}
