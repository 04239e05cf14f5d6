package toolflow

import (
	"context"
	"time"
)

// Memory stores conversation turns and remembered entity values.
// Implementations must be safe for concurrent use.
type Memory interface {
	// Get returns the value stored under key, and false if there is none.
	Get(ctx context.Context, key string) (any, bool, error)
	// Set stores value under key.
	Set(ctx context.Context, key string, value any, opts ...SetOption) error
	// Context renders the remembered conversation for inclusion in a prompt.
	Context(ctx context.Context) (string, error)
	// Store appends a completed turn.
	Store(ctx context.Context, user, agent string) error
}

// FactSource is implemented by memories that can list stored entities
// relevant to some text.
type FactSource interface {
	Facts(ctx context.Context, query string) ([]Fact, error)
}

// SetOptions holds per-write memory settings.
type SetOptions struct {
	// TTL expires the value after the given duration. Zero keeps it forever.
	TTL time.Duration
	// Persist also writes the value to long-term (semantic) storage.
	Persist bool
}

// SetOption configures a memory write.
type SetOption func(*SetOptions)

// WithTTL expires the stored value after d.
func WithTTL(d time.Duration) SetOption {
	return func(o *SetOptions) {
		o.TTL = d
	}
}

// WithPersist also writes the value to long-term storage.
func WithPersist() SetOption {
	return func(o *SetOptions) {
		o.Persist = true
	}
}

// ApplySetOptions applies memory write options.
func ApplySetOptions(opts ...SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Retriever looks up a value for free text, typically from a vector store.
type Retriever interface {
	Query(ctx context.Context, text string) (string, bool, error)
}

// Asker requests a missing value from a human.
type Asker interface {
	Ask(ctx context.Context, field string, c Capability, prompt string) (string, error)
}

// Companion carries per-integration knowledge about a capability's fields.
type Companion interface {
	// Aliases maps canonical field names to alternative names the model may use.
	Aliases() map[string][]string
	// PromptForField returns the question to ask a human for field.
	PromptForField(field string) string
	// IsValidValueForField reports whether value is acceptable for field.
	IsValidValueForField(field string, value any) bool
}

// Embedder converts texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
