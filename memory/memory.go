// Package memory provides an in-process conversation memory: a rolling log of
// turns and a case-insensitive entity store with optional expiry and a
// long-term semantic fallback.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	ai "github.com/spetersoncode/toolflow"
)

// Semantic is long-term storage consulted on entity misses and written by
// persistent Set calls. The Qdrant retriever implements it.
type Semantic interface {
	Remember(ctx context.Context, key, value string) error
	Recall(ctx context.Context, key string) (string, bool, error)
}

type entity struct {
	value   any
	expires time.Time
}

func (e entity) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Memory is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	turns    []ai.Turn
	entities map[string]entity
	window   int
	semantic Semantic
	now      func() time.Time
}

var (
	_ ai.Memory     = (*Memory)(nil)
	_ ai.FactSource = (*Memory)(nil)
)

// Option configures a Memory.
type Option func(*Memory)

// WithWindow keeps only the last n turns. Zero keeps everything.
func WithWindow(n int) Option {
	return func(m *Memory) {
		m.window = n
	}
}

// WithSemantic sets the long-term store.
func WithSemantic(s Semantic) Option {
	return func(m *Memory) {
		m.semantic = s
	}
}

// WithClock overrides the time source used for turns and expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// New creates an empty Memory.
func New(opts ...Option) *Memory {
	m := &Memory{
		entities: make(map[string]entity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the live value for key. Keys are case-insensitive. Expired
// entries are removed. On a miss the semantic store is consulted when set.
func (m *Memory) Get(ctx context.Context, key string) (any, bool, error) {
	k := normalize(key)

	m.mu.Lock()
	e, ok := m.entities[k]
	if ok && e.expired(m.now()) {
		delete(m.entities, k)
		ok = false
	}
	m.mu.Unlock()

	if ok {
		return e.value, true, nil
	}
	if m.semantic == nil {
		return nil, false, nil
	}
	v, found, err := m.semantic.Recall(ctx, k)
	if err != nil {
		return nil, false, fmt.Errorf("memory: recall %q: %w", key, err)
	}
	if !found || v == "" {
		return nil, false, nil
	}
	return v, true, nil
}

// Set stores value under key. WithTTL expires it; WithPersist also writes it
// to the semantic store.
func (m *Memory) Set(ctx context.Context, key string, value any, opts ...ai.SetOption) error {
	o := ai.ApplySetOptions(opts...)
	k := normalize(key)

	e := entity{value: value}
	if o.TTL > 0 {
		e.expires = m.now().Add(o.TTL)
	}

	m.mu.Lock()
	m.entities[k] = e
	m.mu.Unlock()

	if o.Persist && m.semantic != nil {
		if err := m.semantic.Remember(ctx, k, Stringify(value)); err != nil {
			return fmt.Errorf("memory: persist %q: %w", key, err)
		}
	}
	return nil
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, normalize(key))
}

// Store appends a completed turn, trimming to the window.
func (m *Memory) Store(_ context.Context, user, agent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, ai.NewTurn(user, agent, m.now()))
	if m.window > 0 && len(m.turns) > m.window {
		m.turns = slices.Clone(m.turns[len(m.turns)-m.window:])
	}
	return nil
}

// Context renders the turns as "User: ...\nAgent: ..." lines.
func (m *Memory) Context(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Render(m.turns), nil
}

// Turns returns a copy of the stored turns, oldest first.
func (m *Memory) Turns() []ai.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.turns)
}

// Facts returns live entities whose key appears in query, ordered by key.
func (m *Memory) Facts(_ context.Context, query string) ([]ai.Fact, error) {
	q := strings.ToLower(query)
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var facts []ai.Fact
	for _, k := range slices.Sorted(maps.Keys(m.entities)) {
		e := m.entities[k]
		if e.expired(now) || !strings.Contains(q, k) {
			continue
		}
		facts = append(facts, ai.Fact{Key: k, Value: e.value})
	}
	return facts, nil
}

// Entities returns a snapshot of the live entities.
func (m *Memory) Entities() map[string]any {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any, len(m.entities))
	for k, e := range m.entities {
		if !e.expired(now) {
			out[k] = e.value
		}
	}
	return out
}

// ClearTurns forgets the conversation log.
func (m *Memory) ClearTurns() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// ClearEntities forgets every entity.
func (m *Memory) ClearEntities() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = make(map[string]entity)
}

// Clear forgets everything held in process. The semantic store is untouched.
func (m *Memory) Clear() {
	m.ClearTurns()
	m.ClearEntities()
}

// Render formats turns for a prompt.
func Render(turns []ai.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, "User: "+t.User+"\nAgent: "+t.Agent)
	}
	return strings.Join(lines, "\n")
}

// Stringify renders an entity value for text storage. Strings are kept as
// is; anything else is encoded as JSON.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
