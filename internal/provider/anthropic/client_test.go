package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/toolflow"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New("test-key",
		WithBaseURL(server.URL+"/"),
		WithRequestOptions(option.WithMaxRetries(0)),
	)
}

func TestGenerate(t *testing.T) {
	t.Run("text and tool use", func(t *testing.T) {
		var body map[string]any
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/messages", r.URL.Path)
			raw, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(raw, &body))

			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{
				"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
				"content": [
					{"type": "text", "text": "Posting now."},
					{"type": "tool_use", "id": "toolu_1", "name": "sendMessage", "input": {"channel": "C123"}}
				],
				"stop_reason": "tool_use", "stop_sequence": null,
				"usage": {"input_tokens": 20, "output_tokens": 9}
			}`)
		})

		gen, err := c.Generate(context.Background(),
			ai.Prompt{System: "Be brief.", User: "post hi"},
			ai.WithMaxTokens(256),
			ai.WithCapabilities([]ai.Capability{{
				Name:       "sendMessage",
				Parameters: json.RawMessage(`{"type":"object","properties":{"channel":{"type":"string"}},"required":["channel"]}`),
			}}),
		)
		require.NoError(t, err)

		assert.Equal(t, "Posting now.", gen.Text)
		assert.Equal(t, "tool_use", gen.FinishReason)
		assert.Equal(t, ai.Usage{InputTokens: 20, OutputTokens: 9}, gen.Usage)
		require.Len(t, gen.Invocations, 1)
		assert.Equal(t, ai.Invocation{ID: "toolu_1", Name: "sendMessage", Arguments: map[string]any{"channel": "C123"}}, gen.Invocations[0])

		assert.EqualValues(t, 256, body["max_tokens"])
		assert.Equal(t, "claude-sonnet-4-5", body["model"])
		system := body["system"].([]any)[0].(map[string]any)
		assert.Equal(t, "Be brief.", system["text"])
		tool := body["tools"].([]any)[0].(map[string]any)
		assert.Equal(t, "sendMessage", tool["name"])
		assert.Equal(t, []any{"channel"}, tool["input_schema"].(map[string]any)["required"])
	})

	t.Run("server errors are transient", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`)
		})

		_, err := c.Generate(context.Background(), ai.Prompt{User: "hi"})
		require.Error(t, err)
		assert.True(t, ai.IsTransient(err))
		assert.Equal(t, 503, ai.StatusCodeOf(err))
	})

	t.Run("bad requests are user input errors", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`)
		})

		_, err := c.Generate(context.Background(), ai.Prompt{User: "hi"})
		assert.True(t, ai.IsUserInput(err))
	})
}

func TestConvertToolChoice(t *testing.T) {
	assert.NotNil(t, convertToolChoice(ai.ToolChoiceNone).OfNone)
	assert.NotNil(t, convertToolChoice(ai.ToolChoiceRequired).OfAny)
	assert.NotNil(t, convertToolChoice(ai.ToolChoiceAuto).OfAuto)
}

func TestConvertCapabilities(t *testing.T) {
	tools := convertCapabilities([]ai.Capability{
		{Name: "good", Parameters: json.RawMessage(`{"type":"object","properties":{"a":{"type":"string"}},"required":["a"]}`)},
		{Name: "broken", Parameters: json.RawMessage(`{"type":`)},
	})
	require.Len(t, tools, 1)
	assert.Equal(t, "good", tools[0].OfTool.Name)
	assert.Equal(t, []string{"a"}, tools[0].OfTool.InputSchema.Required)
}

func TestExtractInvocations(t *testing.T) {
	got := extractInvocations([]anthropic.ContentBlockUnion{
		{Type: "text", Text: "calling"},
		{Type: "tool_use", ID: "toolu_1", Name: "a", Input: json.RawMessage(`{"x": 1}`)},
		{Type: "tool_use", ID: "toolu_2", Name: "b", Input: json.RawMessage(`{"x": `)},
	})

	require.Len(t, got, 2)
	assert.Equal(t, map[string]any{"x": float64(1)}, got[0].Arguments)
	assert.Equal(t, map[string]any{}, got[1].Arguments)
	assert.Equal(t, `{"x": `, got[1].RawArguments)
}
