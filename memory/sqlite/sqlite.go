// Package sqlite persists conversation memory in SQLite through the pure-Go
// modernc.org/sqlite driver. Turns and entities live in two tables, so a
// restarted process picks up where it left off.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/memory"
)

// Store is a durable ai.Memory. Entity values are stored as JSON, so
// numbers read back as float64 and structs as map[string]any.
type Store struct {
	db       *sql.DB
	window   int
	semantic memory.Semantic
	now      func() time.Time
}

var (
	_ ai.Memory     = (*Store)(nil)
	_ ai.FactSource = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithWindow limits Context to the last n turns. Zero renders every turn.
func WithWindow(n int) Option {
	return func(s *Store) {
		s.window = n
	}
}

// WithSemantic sets the long-term store used for persistent writes and misses.
func WithSemantic(sem memory.Semantic) Option {
	return func(s *Store) {
		s.semantic = sem
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens the database at dsn and prepares the schema. ":memory:" is
// accepted and pinned to a single connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	s, err := New(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database and ensures the schema.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlite: db is nil")
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := ensureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the live value for key. Expired rows are deleted.
func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	k := normalize(key)

	var (
		raw     string
		expires sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value_json, expires_at FROM entities WHERE key = ?`, k,
	).Scan(&raw, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.recall(ctx, k)
	case err != nil:
		return nil, false, fmt.Errorf("sqlite: get %q: %w", key, err)
	}

	if expires.Valid && s.now().UnixNano() >= expires.Int64 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE key = ?`, k); err != nil {
			return nil, false, fmt.Errorf("sqlite: expire %q: %w", key, err)
		}
		return s.recall(ctx, k)
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, fmt.Errorf("sqlite: decode %q: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) recall(ctx context.Context, k string) (any, bool, error) {
	if s.semantic == nil {
		return nil, false, nil
	}
	v, ok, err := s.semantic.Recall(ctx, k)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: recall %q: %w", k, err)
	}
	if !ok || v == "" {
		return nil, false, nil
	}
	return v, true, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key string, value any, opts ...ai.SetOption) error {
	o := ai.ApplySetOptions(opts...)
	k := normalize(key)

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlite: encode %q: %w", key, err)
	}
	var expires sql.NullInt64
	if o.TTL > 0 {
		expires = sql.NullInt64{Int64: s.now().Add(o.TTL).UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (key, value_json, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, k, string(raw), expires, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: set %q: %w", key, err)
	}

	if o.Persist && s.semantic != nil {
		if err := s.semantic.Remember(ctx, k, memory.Stringify(value)); err != nil {
			return fmt.Errorf("sqlite: persist %q: %w", key, err)
		}
	}
	return nil
}

// Store appends a turn.
func (s *Store) Store(ctx context.Context, user, agent string) error {
	t := ai.NewTurn(user, agent, s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, user_text, agent_text, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.User, t.Agent, t.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: store turn: %w", err)
	}
	return nil
}

// Turns returns the stored turns, oldest first, limited to the window.
func (s *Store) Turns(ctx context.Context) ([]ai.Turn, error) {
	query := `SELECT id, user_text, agent_text, created_at FROM turns ORDER BY seq DESC`
	var args []any
	if s.window > 0 {
		query += " LIMIT ?"
		args = append(args, s.window)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: turns: %w", err)
	}
	defer rows.Close()

	var turns []ai.Turn
	for rows.Next() {
		var (
			t  ai.Turn
			at int64
		)
		if err := rows.Scan(&t.ID, &t.User, &t.Agent, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan turn: %w", err)
		}
		t.At = time.Unix(0, at)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Context renders the windowed turns.
func (s *Store) Context(ctx context.Context) (string, error) {
	turns, err := s.Turns(ctx)
	if err != nil {
		return "", err
	}
	return memory.Render(turns), nil
}

// Facts returns live entities whose key appears in query, ordered by key.
func (s *Store) Facts(ctx context.Context, query string) ([]ai.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value_json FROM entities
		WHERE expires_at IS NULL OR expires_at > ?
		ORDER BY key
	`, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite: facts: %w", err)
	}
	defer rows.Close()

	q := strings.ToLower(query)
	var facts []ai.Fact
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan fact: %w", err)
		}
		if !strings.Contains(q, key) {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("sqlite: decode %q: %w", key, err)
		}
		facts = append(facts, ai.Fact{Key: key, Value: v})
	}
	return facts, rows.Err()
}

// Clear deletes every turn and entity.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns`); err != nil {
		return fmt.Errorf("sqlite: clear turns: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return fmt.Errorf("sqlite: clear entities: %w", err)
	}
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			user_text TEXT NOT NULL,
			agent_text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`, `
		CREATE TABLE IF NOT EXISTS entities (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL,
			expires_at INTEGER,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
