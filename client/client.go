package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/internal/provider/anthropic"
	"github.com/spetersoncode/toolflow/internal/provider/google"
	"github.com/spetersoncode/toolflow/internal/provider/openai"
)

// Feature represents something a provider may support.
type Feature string

const (
	FeatureChat      Feature = "chat"
	FeatureEmbedding Feature = "embedding"
)

// providerFeatures defines which features each provider supports.
var providerFeatures = map[ai.Provider]map[Feature]bool{
	ai.ProviderAnthropic: {
		FeatureChat:      true,
		FeatureEmbedding: false,
	},
	ai.ProviderOpenAI: {
		FeatureChat:      true,
		FeatureEmbedding: true,
	},
	ai.ProviderGoogle: {
		FeatureChat:      true,
		FeatureEmbedding: true,
	},
}

// APIKeys holds API keys for different providers.
// Only configure keys for providers you intend to use.
type APIKeys struct {
	Anthropic string
	OpenAI    string
	Google    string
}

// Defaults holds default model identifiers. The provider is inferred from
// the model name unless set explicitly.
type Defaults struct {
	Chat      string
	Embedding string

	// ChatProvider overrides inference for Chat.
	ChatProvider ai.Provider
	// EmbeddingProvider overrides inference for Embedding.
	EmbeddingProvider ai.Provider
}

// Config holds configuration for creating a unified client.
type Config struct {
	APIKeys  APIKeys
	Defaults Defaults
}

// ErrFeatureNotSupported is returned when a feature is unavailable for the provider.
type ErrFeatureNotSupported struct {
	Provider string
	Feature  string
}

func (e *ErrFeatureNotSupported) Error() string {
	return fmt.Sprintf("%s provider does not support %s", e.Provider, e.Feature)
}

// ErrMissingAPIKey is returned when a model is used but no API key
// is configured for that model's provider.
type ErrMissingAPIKey struct {
	Provider string
	Model    string
}

func (e *ErrMissingAPIKey) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("no API key configured for %s (required by model %q)", e.Provider, e.Model)
	}
	return fmt.Sprintf("no API key configured for %s", e.Provider)
}

// ErrNoModel is returned when no model is specified and no default is configured.
type ErrNoModel struct {
	Operation string
}

func (e *ErrNoModel) Error() string {
	switch e.Operation {
	case "chat":
		return "no model specified for chat: set client.Config Defaults.Chat or use toolflow.WithModel()"
	case "embedding":
		return "no model specified for embedding: set client.Config Defaults.Embedding"
	}
	return fmt.Sprintf("no model specified for %s and no default configured", e.Operation)
}

// ErrUnknownProvider is returned when a model's provider cannot be inferred.
type ErrUnknownProvider struct {
	Model string
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("cannot infer provider for model %q", e.Model)
}

// ProviderForModel infers the provider from a model identifier.
func ProviderForModel(model string) (ai.Provider, bool) {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return ai.ProviderAnthropic, true
	case strings.HasPrefix(m, "gemini"), strings.HasPrefix(m, "text-embedding-004"):
		return ai.ProviderGoogle, true
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "o4"), strings.HasPrefix(m, "text-embedding"):
		return ai.ProviderOpenAI, true
	}
	return "", false
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDefaultTemperature sets the default temperature for generations.
// Per-request options override this default.
func WithDefaultTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.defaultOpts = append(c.defaultOpts, ai.WithTemperature(t))
	}
}

// WithDefaultMaxTokens sets the default max tokens for generations.
// Per-request options override this default.
func WithDefaultMaxTokens(n int) ClientOption {
	return func(c *Client) {
		c.defaultOpts = append(c.defaultOpts, ai.WithMaxTokens(n))
	}
}

// Client routes generations and embeddings to the provider owning the
// requested model. Provider clients are lazily initialized when first needed.
type Client struct {
	apiKeys     APIKeys
	defaults    Defaults
	defaultOpts []ai.Option

	mu              sync.Mutex
	anthropicClient *anthropic.Client
	openaiClient    *openai.Client
	googleClient    *google.Client
}

var (
	_ ai.Generator = (*Client)(nil)
	_ ai.Embedder  = (*Client)(nil)
)

// New creates a unified client with the given configuration.
func New(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		apiKeys:  cfg.APIKeys,
		defaults: cfg.Defaults,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate routes the prompt to the provider of the requested or default model.
func (c *Client) Generate(ctx context.Context, prompt ai.Prompt, opts ...ai.Option) (*ai.Generation, error) {
	all := append(append([]ai.Option{}, c.defaultOpts...), opts...)
	model := ai.ApplyOptions(all...).Model
	explicit := c.defaults.ChatProvider
	if model == "" {
		model = c.defaults.Chat
	} else {
		explicit = ""
	}
	if model == "" {
		return nil, &ErrNoModel{Operation: "chat"}
	}

	gen, err := c.generator(ctx, model, explicit)
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, prompt, append(all, ai.WithModel(model))...)
}

// Embed embeds texts with the default embedding model.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.defaults.Embedding
	if model == "" {
		return nil, &ErrNoModel{Operation: "embedding"}
	}
	provider, err := resolveProvider(model, c.defaults.EmbeddingProvider)
	if err != nil {
		return nil, err
	}
	if !providerFeatures[provider][FeatureEmbedding] {
		return nil, &ErrFeatureNotSupported{Provider: provider.String(), Feature: string(FeatureEmbedding)}
	}

	switch provider {
	case ai.ProviderOpenAI:
		oc, err := c.openai(model)
		if err != nil {
			return nil, err
		}
		return oc.Embed(ctx, texts)
	default:
		gc, err := c.google(ctx, model)
		if err != nil {
			return nil, err
		}
		return gc.Embed(ctx, texts)
	}
}

func (c *Client) generator(ctx context.Context, model string, explicit ai.Provider) (ai.Generator, error) {
	provider, err := resolveProvider(model, explicit)
	if err != nil {
		return nil, err
	}
	switch provider {
	case ai.ProviderAnthropic:
		return c.anthropic(model)
	case ai.ProviderOpenAI:
		return c.openai(model)
	case ai.ProviderGoogle:
		return c.google(ctx, model)
	}
	return nil, &ErrUnknownProvider{Model: model}
}

func resolveProvider(model string, explicit ai.Provider) (ai.Provider, error) {
	if explicit != "" {
		if _, ok := providerFeatures[explicit]; !ok {
			return "", fmt.Errorf("client: unsupported provider %q", explicit)
		}
		return explicit, nil
	}
	provider, ok := ProviderForModel(model)
	if !ok {
		return "", &ErrUnknownProvider{Model: model}
	}
	return provider, nil
}

func (c *Client) anthropic(model string) (*anthropic.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.anthropicClient != nil {
		return c.anthropicClient, nil
	}
	if c.apiKeys.Anthropic == "" {
		return nil, &ErrMissingAPIKey{Provider: "anthropic", Model: model}
	}
	c.anthropicClient = anthropic.New(c.apiKeys.Anthropic)
	return c.anthropicClient, nil
}

func (c *Client) openai(model string) (*openai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.openaiClient != nil {
		return c.openaiClient, nil
	}
	if c.apiKeys.OpenAI == "" {
		return nil, &ErrMissingAPIKey{Provider: "openai", Model: model}
	}
	var opts []openai.ClientOption
	if p, _ := ProviderForModel(c.defaults.Embedding); p == ai.ProviderOpenAI {
		opts = append(opts, openai.WithEmbeddingModel(c.defaults.Embedding))
	}
	c.openaiClient = openai.New(c.apiKeys.OpenAI, opts...)
	return c.openaiClient, nil
}

func (c *Client) google(ctx context.Context, model string) (*google.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.googleClient != nil {
		return c.googleClient, nil
	}
	if c.apiKeys.Google == "" {
		return nil, &ErrMissingAPIKey{Provider: "google", Model: model}
	}
	var opts []google.ClientOption
	if c.defaults.Embedding != "" && (c.defaults.EmbeddingProvider == ai.ProviderGoogle ||
		strings.HasPrefix(strings.ToLower(c.defaults.Embedding), "gemini")) {
		opts = append(opts, google.WithEmbeddingModel(c.defaults.Embedding))
	}
	gc, err := google.New(ctx, c.apiKeys.Google, opts...)
	if err != nil {
		return nil, err
	}
	c.googleClient = gc
	return gc, nil
}
