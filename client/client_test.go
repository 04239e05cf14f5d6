package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/toolflow"
)

func TestErrors(t *testing.T) {
	assert.Equal(t, "anthropic provider does not support embedding",
		(&ErrFeatureNotSupported{Provider: "anthropic", Feature: "embedding"}).Error())
	assert.Equal(t, `no API key configured for anthropic (required by model "claude-sonnet")`,
		(&ErrMissingAPIKey{Provider: "anthropic", Model: "claude-sonnet"}).Error())
	assert.Equal(t, "no API key configured for openai", (&ErrMissingAPIKey{Provider: "openai"}).Error())
	assert.Equal(t, "no model specified for image and no default configured", (&ErrNoModel{Operation: "image"}).Error())
	assert.Contains(t, (&ErrNoModel{Operation: "chat"}).Error(), "Defaults.Chat")
	assert.Equal(t, `cannot infer provider for model "llama"`, (&ErrUnknownProvider{Model: "llama"}).Error())
}

func TestProviderForModel(t *testing.T) {
	tests := []struct {
		model string
		want  ai.Provider
		ok    bool
	}{
		{"claude-sonnet-4-5", ai.ProviderAnthropic, true},
		{"gpt-5-mini", ai.ProviderOpenAI, true},
		{"o4-mini", ai.ProviderOpenAI, true},
		{"text-embedding-3-small", ai.ProviderOpenAI, true},
		{"gemini-2.5-flash", ai.ProviderGoogle, true},
		{"Gemini-Embedding-001", ai.ProviderGoogle, true},
		{"llama-3", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, ok := ProviderForModel(tt.model)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("no model", func(t *testing.T) {
		_, err := New(Config{}).Generate(ctx, ai.Prompt{User: "hi"})
		var target *ErrNoModel
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "chat", target.Operation)
	})

	t.Run("missing key", func(t *testing.T) {
		c := New(Config{Defaults: Defaults{Chat: "claude-sonnet-4-5"}})
		_, err := c.Generate(ctx, ai.Prompt{User: "hi"})
		var target *ErrMissingAPIKey
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "anthropic", target.Provider)
		assert.Equal(t, "claude-sonnet-4-5", target.Model)
	})

	t.Run("per request model wins", func(t *testing.T) {
		c := New(Config{
			APIKeys:  APIKeys{Anthropic: "k"},
			Defaults: Defaults{Chat: "claude-sonnet-4-5"},
		})
		_, err := c.Generate(ctx, ai.Prompt{User: "hi"}, ai.WithModel("gpt-5"))
		var target *ErrMissingAPIKey
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "openai", target.Provider)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Defaults: Defaults{Chat: "llama"}}).Generate(ctx, ai.Prompt{User: "hi"})
		var target *ErrUnknownProvider
		assert.ErrorAs(t, err, &target)
	})

	t.Run("explicit provider", func(t *testing.T) {
		c := New(Config{Defaults: Defaults{Chat: "my-finetune", ChatProvider: ai.ProviderOpenAI}})
		_, err := c.Generate(ctx, ai.Prompt{User: "hi"})
		var target *ErrMissingAPIKey
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "openai", target.Provider)
	})
}

func TestEmbed(t *testing.T) {
	ctx := context.Background()

	t.Run("no model", func(t *testing.T) {
		_, err := New(Config{}).Embed(ctx, []string{"a"})
		var target *ErrNoModel
		assert.ErrorAs(t, err, &target)
	})

	t.Run("anthropic cannot embed", func(t *testing.T) {
		c := New(Config{Defaults: Defaults{Embedding: "claude-embed", EmbeddingProvider: ai.ProviderAnthropic}})
		_, err := c.Embed(ctx, []string{"a"})
		var target *ErrFeatureNotSupported
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "anthropic", target.Provider)
	})

	t.Run("missing key", func(t *testing.T) {
		c := New(Config{Defaults: Defaults{Embedding: "text-embedding-3-small"}})
		_, err := c.Embed(ctx, []string{"a"})
		var target *ErrMissingAPIKey
		assert.ErrorAs(t, err, &target)
	})
}

func TestLazyClients(t *testing.T) {
	c := New(Config{APIKeys: APIKeys{Anthropic: "a", OpenAI: "o"}}, WithDefaultMaxTokens(100), WithDefaultTemperature(0.1))
	assert.Len(t, c.defaultOpts, 2)

	first, err := c.anthropic("claude")
	require.NoError(t, err)
	second, err := c.anthropic("claude")
	require.NoError(t, err)
	assert.Same(t, first, second)

	oc, err := c.openai("gpt")
	require.NoError(t, err)
	assert.NotNil(t, oc)
}
