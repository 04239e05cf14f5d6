package input

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	ai "github.com/spetersoncode/toolflow"
)

// ErrTimeout is returned when no response arrived within the broker timeout.
var ErrTimeout = errors.New("input: request timed out")

// ErrCancelled is returned when the responder dismissed the request.
var ErrCancelled = errors.New("input: request cancelled")

// Kind identifies what a request asks for.
type Kind string

const (
	// KindField asks for the value of a missing argument.
	KindField Kind = "field"

	// KindApproval asks whether an invocation may run.
	KindApproval Kind = "approval"
)

// Request is a question waiting for a human.
type Request struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Field      string         `json:"field,omitempty"`
	Capability string         `json:"capability"`
	Prompt     string         `json:"prompt,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Response answers a Request.
type Response struct {
	RequestID string `json:"requestId"`
	Value     string `json:"value,omitempty"`
	Approved  bool   `json:"approved,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// Broker routes questions to an external responder (a web UI, a chat bot)
// and waits for answers delivered through Respond.
//
// Usage:
//
//	broker := input.NewBroker(input.WithOnSubmit(func(req input.Request) {
//	    notifyFrontend(req)
//	}))
//
//	// In your HTTP handler
//	broker.Respond(input.Response{RequestID: id, Value: value})
//
//	a, err := agent.New(gen, src,
//	    agent.WithAsker(broker),
//	    agent.WithApprover(broker.Approve),
//	)
type Broker struct {
	mu       sync.Mutex
	pending  map[string]pendingRequest
	timeout  time.Duration
	onSubmit func(Request)
}

type pendingRequest struct {
	req Request
	ch  chan Response
}

var _ ai.Asker = (*Broker)(nil)

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithTimeout sets how long a request waits for a response. Default is 5 minutes.
func WithTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) {
		b.timeout = d
	}
}

// WithOnSubmit sets a callback invoked whenever a request is submitted.
func WithOnSubmit(fn func(Request)) BrokerOption {
	return func(b *Broker) {
		b.onSubmit = fn
	}
}

// NewBroker creates a Broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		pending: make(map[string]pendingRequest),
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ask submits a field request and waits for its answer.
func (b *Broker) Ask(ctx context.Context, field string, capability ai.Capability, prompt string) (string, error) {
	resp, err := b.request(ctx, Request{
		Kind:       KindField,
		Field:      field,
		Capability: capability.Name,
		Prompt:     prompt,
	})
	if err != nil {
		return "", err
	}
	if resp.Cancelled {
		return "", ErrCancelled
	}
	return resp.Value, nil
}

// Approve submits an approval request for inv and waits for the decision.
// Errors and cancellations count as rejections.
func (b *Broker) Approve(ctx context.Context, inv ai.Invocation) (bool, string) {
	resp, err := b.request(ctx, Request{
		Kind:       KindApproval,
		Capability: inv.Name,
		Arguments:  inv.Arguments,
	})
	if err != nil {
		return false, err.Error()
	}
	if resp.Cancelled {
		return false, "cancelled"
	}
	return resp.Approved, resp.Reason
}

// Respond delivers a response to the pending request it names.
func (b *Broker) Respond(resp Response) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[resp.RequestID]
	if !ok {
		return fmt.Errorf("input: no pending request %q", resp.RequestID)
	}
	select {
	case p.ch <- resp:
	default:
	}
	return nil
}

// Pending returns the requests still waiting for an answer.
func (b *Broker) Pending() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Request, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.req)
	}
	return out
}

// PendingCount returns the number of pending requests.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Broker) request(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.CreatedAt = time.Now()

	ch := make(chan Response, 1)
	b.mu.Lock()
	b.pending[req.ID] = pendingRequest{req: req, ch: ch}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	if b.onSubmit != nil {
		b.onSubmit(req)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timeoutCtx.Done():
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		return Response{}, ErrTimeout
	}
}
