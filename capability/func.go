package capability

import (
	"context"
	"encoding/json"
	"fmt"

	ai "github.com/spetersoncode/toolflow"
)

// FuncOption configures a capability built by NewFunc.
type FuncOption func(*ai.Capability)

// WithPiece sets the integration the capability belongs to.
func WithPiece(piece string) FuncOption {
	return func(c *ai.Capability) {
		c.Piece = piece
	}
}

// WithCompanion attaches a companion.
func WithCompanion(companion ai.Companion) FuncOption {
	return func(c *ai.Capability) {
		c.Companion = companion
	}
}

// WithOutputs declares the fields the capability produces.
func WithOutputs(fields ...string) FuncOption {
	return func(c *ai.Capability) {
		c.Outputs = fields
	}
}

// NewFunc builds a capability from a typed function. The parameter schema is
// reflected from T's struct tags and the arguments map is decoded into T
// before fn runs. When R is a struct, its schema becomes the output schema.
//
// Example:
//
//	type SendArgs struct {
//	    Channel string `json:"channel" desc:"Channel ID" required:"true"`
//	    Text    string `json:"text" required:"true"`
//	}
//
//	send, err := capability.NewFunc("sendMessage", "Send a Slack message",
//	    func(ctx context.Context, args SendArgs) (SendResult, error) {
//	        return post(ctx, args.Channel, args.Text)
//	    },
//	    capability.WithPiece("slack"),
//	    capability.WithCompanion(companion.Slack()),
//	)
func NewFunc[T, R any](name, description string, fn func(ctx context.Context, args T) (R, error), opts ...FuncOption) (ai.Capability, error) {
	params, err := ai.SchemaFor[T]()
	if err != nil {
		return ai.Capability{}, fmt.Errorf("capability: %s: %w", name, err)
	}

	c := ai.Capability{
		Name:        name,
		Description: description,
		Parameters:  params,
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			typed, err := decodeArgs[T](args)
			if err != nil {
				return nil, fmt.Errorf("capability: %s: decode arguments: %w", name, err)
			}
			return fn(ctx, typed)
		},
	}
	if out, err := ai.SchemaFor[R](); err == nil {
		c.OutputSchema = out
	}

	for _, opt := range opts {
		opt(&c)
	}
	return c, nil
}

// MustFunc is like NewFunc but panics on error.
func MustFunc[T, R any](name, description string, fn func(ctx context.Context, args T) (R, error), opts ...FuncOption) ai.Capability {
	c, err := NewFunc(name, description, fn, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func decodeArgs[T any](args map[string]any) (T, error) {
	var out T
	b, err := json.Marshal(args)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}
