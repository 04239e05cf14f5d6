package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
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
	t.Run("returns invocations", func(t *testing.T) {
		var body map[string]any
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			raw, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(raw, &body))

			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{
				"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-5-mini",
				"choices": [{
					"index": 0, "finish_reason": "tool_calls",
					"message": {"role": "assistant", "content": "", "tool_calls": [
						{"id": "call_1", "type": "function", "function": {"name": "sendMessage", "arguments": "{\"channel\":\"C123\"}"}}
					]}
				}],
				"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
			}`)
		})

		gen, err := c.Generate(context.Background(),
			ai.Prompt{System: "Be brief.", User: "post hi"},
			ai.WithModel("gpt-test"),
			ai.WithCapabilities([]ai.Capability{{
				Name:        "sendMessage",
				Description: "Send a message",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"channel":{"type":"string"}}}`),
			}}),
			ai.WithToolChoice(ai.ToolChoiceRequired),
		)
		require.NoError(t, err)

		require.Len(t, gen.Invocations, 1)
		assert.Equal(t, ai.Invocation{ID: "call_1", Name: "sendMessage", Arguments: map[string]any{"channel": "C123"}}, gen.Invocations[0])
		assert.Equal(t, "tool_calls", gen.FinishReason)
		assert.Equal(t, ai.Usage{InputTokens: 12, OutputTokens: 7}, gen.Usage)

		assert.Equal(t, "gpt-test", body["model"])
		assert.Equal(t, "required", body["tool_choice"])
		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "User: post hi\nAgent:", messages[1].(map[string]any)["content"])
		tool := body["tools"].([]any)[0].(map[string]any)["function"].(map[string]any)
		assert.Equal(t, "sendMessage", tool["name"])
	})

	t.Run("returns text", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{
				"id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-5-mini",
				"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Done."}}],
				"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
			}`)
		})

		gen, err := c.Generate(context.Background(), ai.Prompt{User: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "Done.", gen.Text)
		assert.Empty(t, gen.Invocations)
	})

	t.Run("rate limits are transient", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error": {"message": "slow down", "type": "rate_limit_error"}}`)
		})

		_, err := c.Generate(context.Background(), ai.Prompt{User: "hi"})
		require.Error(t, err)
		assert.True(t, ai.IsTransient(err))
		assert.Equal(t, 429, ai.StatusCodeOf(err))
		assert.Equal(t, 2*time.Second, ai.RetryAfterOf(err))
	})

	t.Run("auth failures are permanent", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
		})

		_, err := c.Generate(context.Background(), ai.Prompt{User: "hi"})
		assert.True(t, ai.IsPermanent(err))
	})
}

func TestEmbed(t *testing.T) {
	t.Run("converts vectors", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{
				"object": "list", "model": "text-embedding-3-small",
				"data": [
					{"object": "embedding", "index": 0, "embedding": [0.5, 0.25]},
					{"object": "embedding", "index": 1, "embedding": [1, 0]}
				],
				"usage": {"prompt_tokens": 4, "total_tokens": 4}
			}`)
		})

		got, err := c.Embed(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0.5, 0.25}, {1, 0}}, got)
	})

	t.Run("requires input", func(t *testing.T) {
		_, err := New("k").Embed(context.Background(), nil)
		assert.ErrorIs(t, err, ai.ErrEmptyInput)
	})
}

func TestExtractInvocations(t *testing.T) {
	got := extractInvocations(openai.ChatCompletionMessage{ToolCalls: []openai.ChatCompletionMessageToolCall{
		{ID: "call_1", Function: openai.ChatCompletionMessageToolCallFunction{Name: "a", Arguments: ""}},
		{ID: "call_2", Function: openai.ChatCompletionMessageToolCallFunction{Name: "b", Arguments: "{\"channel\": \"C1\",}"}},
		{ID: "call_3", Function: openai.ChatCompletionMessageToolCallFunction{Name: "c", Arguments: "{\"channel\": "}},
	}})

	require.Len(t, got, 3)
	assert.Equal(t, ai.Invocation{ID: "call_1", Name: "a", Arguments: map[string]any{}}, got[0])
	assert.Equal(t, map[string]any{"channel": "C1"}, got[1].Arguments)
	assert.Empty(t, got[1].RawArguments)
	assert.Equal(t, map[string]any{}, got[2].Arguments)
	assert.Equal(t, "{\"channel\": ", got[2].RawArguments)
}

func TestConvertCapabilities(t *testing.T) {
	tools := convertCapabilities([]ai.Capability{
		{Name: "good", Parameters: json.RawMessage(`{"type":"object"}`)},
		{Name: "broken", Parameters: json.RawMessage(`{"type":`)},
		{Name: "bare"},
	})
	require.Len(t, tools, 2)
	assert.Equal(t, "good", tools[0].Function.Name)
	assert.Equal(t, "bare", tools[1].Function.Name)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Zero(t, parseRetryAfter(nil))
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"3"}}}
	assert.Equal(t, 3*time.Second, parseRetryAfter(resp))
	resp.Header.Set("Retry-After", "soon")
	assert.Zero(t, parseRetryAfter(resp))
}
