package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/retry"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearKeys(t *testing.T) {
	t.Helper()
	for _, name := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearKeys(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
	assert.Equal(t, "gpt-5-mini", cfg.LLM.Model)
	assert.Nil(t, cfg.LLM.Temperature)
	assert.Equal(t, 20, cfg.Memory.Window)
	assert.Empty(t, cfg.Memory.SQLitePath)
	assert.Equal(t, "toolflow", cfg.Qdrant.Collection)
	assert.Equal(t, 3, cfg.Qdrant.TopK)
	assert.InDelta(t, 0.7, cfg.Qdrant.ScoreThreshold, 1e-6)
	assert.False(t, cfg.RetrievalEnabled())
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, 3, cfg.Agent.MaxCycles)
	assert.Equal(t, 30*time.Second, cfg.Agent.InvokeTimeout)
	assert.Equal(t, retry.DefaultConfig(), cfg.Retry())
	assert.Empty(t, cfg.ClientOptions())
}

func TestLoadFile(t *testing.T) {
	clearKeys(t)
	path := writeFile(t, `
log:
  level: debug
  format: json
llm:
  model: claude-sonnet-4-5
  temperature: 0.3
  max_tokens: 512
memory:
  window: 5
  sqlite_path: /tmp/toolflow.db
qdrant:
  addr: localhost:6334
agent:
  retry:
    retries: 1
    base_delay: 250ms
    max_delay: 2s
mcp:
  servers:
    github:
      command: github-mcp
      args: ["stdio"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.3, *cfg.LLM.Temperature, 1e-9)
	assert.Len(t, cfg.ClientOptions(), 2)
	assert.Equal(t, 5, cfg.Memory.Window)
	assert.Equal(t, "/tmp/toolflow.db", cfg.Memory.SQLitePath)
	assert.True(t, cfg.RetrievalEnabled())
	assert.Equal(t, retry.Config{Retries: 1, BaseDelay: 250 * time.Millisecond, MaxDelay: 2 * time.Second}, cfg.Retry())

	// Unset keys keep their defaults.
	assert.Equal(t, 10, cfg.Agent.MaxSteps)

	require.Contains(t, cfg.MCP.Servers, "github")
	assert.Equal(t, "github-mcp", cfg.MCP.Servers["github"].Command)
	assert.Equal(t, []string{"stdio"}, cfg.MCP.Servers["github"].Args)
}

func TestLoadEnvironment(t *testing.T) {
	clearKeys(t)
	path := writeFile(t, "llm:\n  model: gpt-4o\n")

	t.Setenv("TOOLFLOW_LLM__MODEL", "gemini-2.5-flash")
	t.Setenv("TOOLFLOW_AGENT__RETRY__RETRIES", "5")
	t.Setenv("TOOLFLOW_QDRANT__SCORE_THRESHOLD", "0.85")
	t.Setenv("TOOLFLOW_AGENT__INVOKE_TIMEOUT", "5s")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Agent.Retry.Retries)
	assert.InDelta(t, 0.85, cfg.Qdrant.ScoreThreshold, 1e-6)
	assert.Equal(t, 5*time.Second, cfg.Agent.InvokeTimeout)
	assert.Equal(t, "sk-test", cfg.LLM.OpenAIKey)

	t.Run("prefixed key wins over the conventional name", func(t *testing.T) {
		t.Setenv("TOOLFLOW_LLM__OPENAI_API_KEY", "sk-prefixed")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "sk-prefixed", cfg.LLM.OpenAIKey)
	})
}

func TestLoadErrors(t *testing.T) {
	clearKeys(t)

	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"unknown log format", "log:\n  format: xml\n", "unknown log format"},
		{"unknown exporter", "telemetry:\n  exporter: zipkin\n", "unknown telemetry exporter"},
		{"otlp without endpoint", "telemetry:\n  exporter: otlp\n", "needs an endpoint"},
		{"unknown provider", "llm:\n  provider: ollama\n", "unknown provider"},
		{"negative window", "memory:\n  window: -1\n", "memory window"},
		{"threshold out of range", "qdrant:\n  score_threshold: 1.5\n", "score threshold"},
		{"bad retry policy", "agent:\n  retry:\n    base_delay: 0s\n", "base delay"},
		{"mcp server without transport", "mcp:\n  servers:\n    x:\n      args: [a]\n", `mcp server "x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config: load")
	})
}

func TestRetryOptions(t *testing.T) {
	clearKeys(t)
	noWait := retry.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })

	attempts := func(cfg *Config, failure error) int {
		calls := 0
		_ = retry.Run(context.Background(), cfg.Retry(), func(context.Context) error {
			calls++
			return failure
		}, append(cfg.RetryOptions(), noWait)...)
		return calls
	}

	t.Run("defaults stop on permanent errors", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.True(t, cfg.Agent.Retry.TransientOnly)
		assert.True(t, cfg.Agent.Retry.RetryAfter)

		assert.Equal(t, 1, attempts(cfg, ai.NewProviderError(ai.ProviderOpenAI, 401, 0, nil)))
		assert.Equal(t, 1, attempts(cfg, errors.New("channel_not_found: C9")))
		assert.Equal(t, 4, attempts(cfg, ai.NewProviderError(ai.ProviderOpenAI, 503, 0, nil)))
		assert.Equal(t, 4, attempts(cfg, errors.New("rate_limited")))
	})

	t.Run("retry after hint is honored", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		var delays []time.Duration
		record := retry.WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		})
		_ = retry.Run(context.Background(), retry.Config{Retries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Second},
			func(context.Context) error { return ai.NewProviderError(ai.ProviderAnthropic, 429, 3*time.Second, nil) },
			append(cfg.RetryOptions(), record)...)
		assert.Equal(t, []time.Duration{3 * time.Second}, delays)
	})

	t.Run("transient only can be disabled", func(t *testing.T) {
		t.Setenv("TOOLFLOW_AGENT__RETRY__TRANSIENT_ONLY", "false")
		t.Setenv("TOOLFLOW_AGENT__RETRY__RETRY_AFTER", "false")
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Empty(t, cfg.RetryOptions())
		assert.Equal(t, 4, attempts(cfg, ai.NewProviderError(ai.ProviderOpenAI, 401, 0, nil)))
	})
}

func TestClientConfig(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{
		Model:             "gpt-4o",
		Provider:          "OpenAI",
		EmbeddingModel:    "gemini-embedding-001",
		EmbeddingProvider: "google",
		AnthropicKey:      "a",
		OpenAIKey:         "o",
		GoogleKey:         "g",
	}}

	cc := cfg.Client()
	assert.Equal(t, "o", cc.APIKeys.OpenAI)
	assert.Equal(t, "a", cc.APIKeys.Anthropic)
	assert.Equal(t, "g", cc.APIKeys.Google)
	assert.Equal(t, "gpt-4o", cc.Defaults.Chat)
	assert.Equal(t, ai.ProviderOpenAI, cc.Defaults.ChatProvider)
	assert.Equal(t, ai.ProviderGoogle, cc.Defaults.EmbeddingProvider)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "llm.model", envKey("TOOLFLOW_LLM__MODEL"))
	assert.Equal(t, "agent.retry.base_delay", envKey("TOOLFLOW_AGENT__RETRY__BASE_DELAY"))
	assert.Equal(t, "llm.openai_api_key", envKey("TOOLFLOW_LLM__OPENAI_API_KEY"))
}
