package toolflow

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces either final text or capability invocation requests
// for a prompt. Implementations must be safe to call again with the same
// input, since callers retry failed generations.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, opts ...Option) (*Generation, error)
}

// Generation is the result of one generator call.
type Generation struct {
	// Text is the model's textual answer. It is final when Invocations is empty.
	Text string `json:"text,omitempty"`
	// Invocations are the capability runs the model requested, in order.
	Invocations []Invocation `json:"invocations,omitempty"`
	// FinishReason is the provider's stop reason, if reported.
	FinishReason string `json:"finishReason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Usage contains token usage information for a request.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Fact is a remembered key/value pair surfaced to the model.
type Fact struct {
	Key   string
	Value any
}

// Prompt is the structured input for a generation.
type Prompt struct {
	// System holds static instructions describing the agent.
	System string
	// History is the remembered conversation context.
	History string
	// Facts are stored entity facts relevant to this turn.
	Facts []Fact
	// User is the raw user text for this turn.
	User string
	// Notes accumulate capability results and failure notices within a turn.
	Notes []string
}

// Text renders everything except the system instructions. Providers with a
// dedicated system channel send System separately and Text as the user turn.
func (p Prompt) Text() string {
	var b strings.Builder
	if p.History != "" {
		b.WriteString(p.History)
		b.WriteString("\n")
	}
	if len(p.Facts) > 0 {
		b.WriteString("Known facts:\n")
		for _, f := range p.Facts {
			fmt.Fprintf(&b, "- %s: %v\n", f.Key, f.Value)
		}
	}
	b.WriteString("User: ")
	b.WriteString(p.User)
	b.WriteString("\n")
	for _, n := range p.Notes {
		b.WriteString(n)
		b.WriteString("\n")
	}
	b.WriteString("Agent:")
	return b.String()
}

// String renders the whole prompt as a single block of text.
func (p Prompt) String() string {
	if p.System == "" {
		return p.Text()
	}
	return "System: " + p.System + "\n" + p.Text()
}
