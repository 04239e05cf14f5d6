// Package event provides the structured event stream emitted by the agent,
// the resolver and the retry loop. Components accept a [Sink] and never log
// on their own, so tests can assert on behavior without parsing output.
package event

import (
	"context"
	"sync"
	"time"
)

// Type identifies the kind of event.
type Type string

// Turn lifecycle events
const (
	// TurnStart fires when a SendMessage call begins.
	TurnStart Type = "turn_start"

	// TurnEnd fires when a turn completes with final text.
	TurnEnd Type = "turn_end"

	// TurnError fires when a turn aborts with an error.
	TurnError Type = "turn_error"

	// Generate fires before each generator call.
	Generate Type = "generate"
)

// Capability lifecycle events
const (
	// InvocationRequested fires for each invocation the generator returned.
	InvocationRequested Type = "invocation_requested"

	// CapabilityInvoked fires right before a capability runs with resolved arguments.
	CapabilityInvoked Type = "capability_invoked"

	// CapabilityResult fires after a capability succeeds.
	CapabilityResult Type = "capability_result"

	// CapabilityFailed fires after a capability exhausts its retries.
	CapabilityFailed Type = "capability_failed"
)

// Argument resolution events
const (
	// AliasApplied fires when an alias value is copied to its canonical field.
	AliasApplied Type = "alias_applied"

	// DefaultApplied fires when a schema default fills an absent field.
	DefaultApplied Type = "default_applied"

	// FieldMissing fires for each missing field reported by validation.
	FieldMissing Type = "field_missing"

	// FieldResolved fires when a source supplies a missing field.
	FieldResolved Type = "field_resolved"

	// FieldUnresolved fires when no source could supply a field.
	FieldUnresolved Type = "field_unresolved"

	// PeerFailed fires when a producing peer could not supply a field.
	PeerFailed Type = "peer_failed"
)

// Plan events
const (
	// PlanCreated fires when a planner has split a task into steps.
	PlanCreated Type = "plan_created"

	// PlanStepStart fires before a plan step runs. Step is its 1-indexed
	// position and Message its name.
	PlanStepStart Type = "plan_step_start"

	// PlanStepEnd fires after a plan step answered.
	PlanStepEnd Type = "plan_step_end"
)

// RetryAttempt fires when an operation failed and will be retried.
const RetryAttempt Type = "retry_attempt"

// Source names where a resolved field came from.
type Source string

const (
	SourceMemory    Source = "memory"
	SourceRetrieval Source = "retrieval"
	SourcePeer      Source = "peer"
	SourcePrompt    Source = "prompt"
)

// Event represents an observable occurrence during a turn.
type Event struct {
	// Type identifies the kind of event.
	Type Type

	// Capability names the capability involved, if any.
	Capability string

	// InvocationID correlates capability events with the generator's request.
	InvocationID string

	// Field is the argument involved in resolution events.
	Field string

	// Source is where a resolved field came from (FieldResolved only).
	Source Source

	// Peer names the producing capability for peer resolution events.
	Peer string

	// Step is the generation round (1-indexed) within the turn.
	Step int

	// Cycle is the resolver cycle (1-indexed).
	Cycle int

	// Attempt is the failed attempt number (1-indexed) for RetryAttempt.
	Attempt int

	// Delay is the wait before the next attempt for RetryAttempt.
	Delay time.Duration

	// Error contains the error for failure events.
	Error error

	// Message contains additional context.
	Message string

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Sink receives events. Implementations must not block for long; Emit is
// called inline from the turn.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

// Emit stamps e and forwards it to s. A nil sink drops the event.
func Emit(s Sink, e Event) {
	if s == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.Emit(e)
}

type sinkKey struct{}

// ContextWithSink returns a context that carries s. Components emitting with
// EmitContext also forward their events to s, which lets a caller observe a
// single call without reconfiguring shared components.
func ContextWithSink(ctx context.Context, s Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

// SinkFromContext returns the sink carried by ctx, or nil.
func SinkFromContext(ctx context.Context) Sink {
	s, _ := ctx.Value(sinkKey{}).(Sink)
	return s
}

// EmitContext stamps e and sends it to s and to the sink carried by ctx.
func EmitContext(ctx context.Context, s Sink, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	Emit(s, e)
	Emit(SinkFromContext(ctx), e)
}

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Multi fans events out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

// Channel is a Sink backed by a buffered channel. Events are sent
// non-blocking; if the channel is full the event is dropped.
type Channel chan Event

// Emit sends e without blocking.
func (c Channel) Emit(e Event) {
	select {
	case c <- e:
	default:
		// Channel full - don't block
	}
}

// NewChannel creates a buffered event channel with standard capacity.
func NewChannel() Channel {
	return make(Channel, 100)
}

// Blocking returns a Sink that sends every event to ch, waiting for the
// receiver. Once ctx is done, remaining events are dropped so the sender
// never hangs on an abandoned receiver.
func Blocking(ctx context.Context, ch chan<- Event) Sink {
	return SinkFunc(func(e Event) {
		select {
		case ch <- e:
		case <-ctx.Done():
		}
	})
}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
