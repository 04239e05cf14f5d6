package toolflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replyGenerator answers every prompt with the same text and records prompts.
type replyGenerator struct {
	text    string
	err     error
	prompts []Prompt
}

func (g *replyGenerator) Generate(_ context.Context, p Prompt, _ ...Option) (*Generation, error) {
	g.prompts = append(g.prompts, p)
	if g.err != nil {
		return nil, g.err
	}
	return &Generation{Text: g.text}, nil
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n[1, 2]\n```", `[1, 2]`},
		{"trailing commas", "{\"a\": [1, 2,],\n}", "{\"a\": [1, 2]\n}"},
		{"commas in strings", `{"a": "x,}",}`, `{"a": "x,}"}`},
		{"escaped quote", `{"a": "say \",]\"",}`, `{"a": "say \",]\""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}

func TestDecodeArguments(t *testing.T) {
	t.Run("empty and null", func(t *testing.T) {
		for _, raw := range []string{"", "  ", "null"} {
			args, err := DecodeArguments([]byte(raw))
			require.NoError(t, err)
			assert.Equal(t, map[string]any{}, args)
		}
	})

	t.Run("tolerates model noise", func(t *testing.T) {
		args, err := DecodeArguments([]byte("```json\n{\"channel\": \"C1\",}\n```"))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"channel": "C1"}, args)
	})

	t.Run("truncated object", func(t *testing.T) {
		_, err := DecodeArguments([]byte(`{"channel": `))
		assert.Error(t, err)
	})
}

func TestRepairJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("valid text needs no generation", func(t *testing.T) {
		gen := &replyGenerator{}
		var v map[string]any
		require.NoError(t, RepairJSON(ctx, gen, "```json\n{\"a\": 1,}\n```", &v))
		assert.Equal(t, map[string]any{"a": float64(1)}, v)
		assert.Empty(t, gen.prompts)
	})

	t.Run("generator fixes the text", func(t *testing.T) {
		gen := &replyGenerator{text: `{"a": 1}`}
		var v map[string]any
		require.NoError(t, RepairJSON(ctx, gen, `{a: 1}`, &v))
		assert.Equal(t, map[string]any{"a": float64(1)}, v)
		require.Len(t, gen.prompts, 1)
		assert.Contains(t, gen.prompts[0].User, "Previous text:\n{a: 1}")
	})

	t.Run("still broken", func(t *testing.T) {
		gen := &replyGenerator{text: "sorry"}
		var v map[string]any
		assert.ErrorIs(t, RepairJSON(ctx, gen, `{a: 1}`, &v), ErrUnrepairableJSON)
	})

	t.Run("generator failure", func(t *testing.T) {
		boom := errors.New("boom")
		var v map[string]any
		assert.ErrorIs(t, RepairJSON(ctx, &replyGenerator{err: boom}, `{a`, &v), boom)
	})
}

func TestValidParameters(t *testing.T) {
	assert.True(t, ValidParameters(nil))
	assert.True(t, ValidParameters(json.RawMessage(`{"type": "object"}`)))
	assert.False(t, ValidParameters(json.RawMessage(`{"type":`)))
	assert.False(t, ValidParameters(json.RawMessage(`[]`)))
	assert.False(t, ValidParameters(json.RawMessage(`null`)))
}
