// Package config loads toolflow settings from defaults, an optional YAML
// file and TOOLFLOW_ environment variables, in that order of precedence.
//
// Environment variables name a key by section and field separated by a
// double underscore:
//
//	TOOLFLOW_LLM__MODEL=claude-sonnet-4-5
//	TOOLFLOW_QDRANT__SCORE_THRESHOLD=0.8
//	TOOLFLOW_AGENT__RETRY__RETRIES=5
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/client"
	"github.com/spetersoncode/toolflow/retry"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TOOLFLOW_"

type Config struct {
	Log    LogConfig    `koanf:"log"`
	LLM    LLMConfig    `koanf:"llm"`
	Memory MemoryConfig `koanf:"memory"`
	Qdrant QdrantConfig `koanf:"qdrant"`
	Agent  AgentConfig  `koanf:"agent"`
	MCP    MCPConfig    `koanf:"mcp"`

	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type LLMConfig struct {
	Model             string   `koanf:"model"`
	Provider          string   `koanf:"provider"` // anthropic, openai, google; inferred from model when empty
	EmbeddingModel    string   `koanf:"embedding_model"`
	EmbeddingProvider string   `koanf:"embedding_provider"`
	Temperature       *float64 `koanf:"temperature"`
	MaxTokens         int      `koanf:"max_tokens"`
	AnthropicKey      string   `koanf:"anthropic_api_key"`
	OpenAIKey         string   `koanf:"openai_api_key"`
	GoogleKey         string   `koanf:"google_api_key"`
}

type MemoryConfig struct {
	Window     int    `koanf:"window"`
	SQLitePath string `koanf:"sqlite_path"` // empty keeps memory in process
}

type QdrantConfig struct {
	Addr           string  `koanf:"addr"` // empty disables retrieval
	Collection     string  `koanf:"collection"`
	TopK           int     `koanf:"top_k"`
	ScoreThreshold float32 `koanf:"score_threshold"`
}

type AgentConfig struct {
	Description   string        `koanf:"description"`
	MaxSteps      int           `koanf:"max_steps"`
	MaxCycles     int           `koanf:"max_cycles"`
	Timeout       time.Duration `koanf:"timeout"`
	InvokeTimeout time.Duration `koanf:"invoke_timeout"`
	Retry         RetryConfig   `koanf:"retry"`

	// ApprovalRequired names capabilities that need confirmation before they run.
	ApprovalRequired []string `koanf:"approval_required"`
}

type RetryConfig struct {
	Retries   int           `koanf:"retries"`
	BaseDelay time.Duration `koanf:"base_delay"`
	MaxDelay  time.Duration `koanf:"max_delay"`

	// TransientOnly stops retrying on errors retry.Transient rejects,
	// such as invalid credentials or a capability reporting a bad channel.
	TransientOnly bool `koanf:"transient_only"`
	// RetryAfter honors provider Retry-After hints longer than the backoff.
	RetryAfter bool `koanf:"retry_after"`
}

type MCPConfig struct {
	Servers map[string]MCPServer `koanf:"servers"`
}

// MCPServer describes a remote MCP server whose tools become capabilities.
// Command starts a stdio server; URL connects over SSE.
type MCPServer struct {
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
	Env     []string `koanf:"env"`
	URL     string   `koanf:"url"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"telemetry.exporter": "none",

	"llm.model":           "gpt-5-mini",
	"llm.embedding_model": "text-embedding-3-small",

	"memory.window": 20,

	"qdrant.collection":      "toolflow",
	"qdrant.top_k":           3,
	"qdrant.score_threshold": 0.7,

	"agent.max_steps":        10,
	"agent.max_cycles":       3,
	"agent.invoke_timeout":   "30s",
	"agent.retry.retries":    3,
	"agent.retry.base_delay": "1s",
	"agent.retry.max_delay":  "10s",

	"agent.retry.transient_only": true,
	"agent.retry.retry_after":    true,
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config: default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// TOOLFLOW_AGENT__RETRY__RETRIES -> agent.retry.retries
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	// Provider keys are also read under their conventional names.
	for key, name := range map[string]string{
		"llm.anthropic_api_key": "ANTHROPIC_API_KEY",
		"llm.openai_api_key":    "OPENAI_API_KEY",
		"llm.google_api_key":    "GOOGLE_API_KEY",
	} {
		if k.String(key) != "" {
			continue
		}
		if err := k.Load(env.Provider(name, ".", func(string) string { return key }), nil); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", name, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	switch c.Telemetry.Exporter {
	case "", "none", "stdout":
	case "otlp":
		if c.Telemetry.OTLPEndpoint == "" {
			return errors.New("config: otlp exporter needs an endpoint")
		}
	default:
		return fmt.Errorf("config: unknown telemetry exporter %q", c.Telemetry.Exporter)
	}
	if _, err := c.provider(c.LLM.Provider); err != nil {
		return err
	}
	if _, err := c.provider(c.LLM.EmbeddingProvider); err != nil {
		return err
	}
	if c.Memory.Window < 0 {
		return errors.New("config: memory window must not be negative")
	}
	if c.Agent.MaxCycles < 0 || c.Agent.MaxSteps < 0 {
		return errors.New("config: agent limits must not be negative")
	}
	if c.Qdrant.ScoreThreshold < 0 || c.Qdrant.ScoreThreshold > 1 {
		return errors.New("config: qdrant score threshold must be between 0 and 1")
	}
	for name, s := range c.MCP.Servers {
		if (s.Command == "") == (s.URL == "") {
			return fmt.Errorf("config: mcp server %q needs exactly one of command or url", name)
		}
	}
	return c.Retry().Validate()
}

func (c *Config) provider(name string) (ai.Provider, error) {
	switch p := ai.Provider(strings.ToLower(name)); p {
	case "", ai.ProviderAnthropic, ai.ProviderOpenAI, ai.ProviderGoogle:
		return p, nil
	default:
		return "", fmt.Errorf("config: unknown provider %q", name)
	}
}

// Retry returns the agent retry policy.
func (c *Config) Retry() retry.Config {
	return retry.Config{
		Retries:   c.Agent.Retry.Retries,
		BaseDelay: c.Agent.Retry.BaseDelay,
		MaxDelay:  c.Agent.Retry.MaxDelay,
	}
}

// RetryOptions returns the retry options matching the agent retry settings.
func (c *Config) RetryOptions() []retry.Option {
	var opts []retry.Option
	if c.Agent.Retry.TransientOnly {
		opts = append(opts, retry.WithRetryIf(retry.Transient))
	}
	if c.Agent.Retry.RetryAfter {
		opts = append(opts, retry.WithRetryAfter())
	}
	return opts
}

// Client returns the provider client configuration.
func (c *Config) Client() client.Config {
	chat, _ := c.provider(c.LLM.Provider)
	embedding, _ := c.provider(c.LLM.EmbeddingProvider)
	return client.Config{
		APIKeys: client.APIKeys{
			Anthropic: c.LLM.AnthropicKey,
			OpenAI:    c.LLM.OpenAIKey,
			Google:    c.LLM.GoogleKey,
		},
		Defaults: client.Defaults{
			Chat:              c.LLM.Model,
			Embedding:         c.LLM.EmbeddingModel,
			ChatProvider:      chat,
			EmbeddingProvider: embedding,
		},
	}
}

// ClientOptions returns the generation defaults for the provider client.
func (c *Config) ClientOptions() []client.ClientOption {
	var opts []client.ClientOption
	if c.LLM.Temperature != nil {
		opts = append(opts, client.WithDefaultTemperature(*c.LLM.Temperature))
	}
	if c.LLM.MaxTokens > 0 {
		opts = append(opts, client.WithDefaultMaxTokens(c.LLM.MaxTokens))
	}
	return opts
}

// RetrievalEnabled reports whether a Qdrant address is configured.
func (c *Config) RetrievalEnabled() bool {
	return c.Qdrant.Addr != ""
}
