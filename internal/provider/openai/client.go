// Package openai adapts the OpenAI chat completions and embeddings APIs to
// the toolflow Generator and Embedder interfaces.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	ai "github.com/spetersoncode/toolflow"
)

// Default models.
const (
	DefaultChatModel      = "gpt-5-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// Client wraps the OpenAI SDK to implement ai.Generator and ai.Embedder.
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	dimensions     int
}

var (
	_ ai.Generator = (*Client)(nil)
	_ ai.Embedder  = (*Client)(nil)
)

// ClientOption configures the OpenAI client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	model          string
	embeddingModel string
	dimensions     int
	requestOptions []option.RequestOption
}

// WithModel sets the default chat model.
func WithModel(model string) ClientOption {
	return func(c *clientConfig) {
		c.model = model
	}
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) ClientOption {
	return func(c *clientConfig) {
		c.embeddingModel = model
	}
}

// WithDimensions truncates embeddings to n dimensions (text-embedding-3 models only).
func WithDimensions(n int) ClientOption {
	return func(c *clientConfig) {
		c.dimensions = n
	}
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) {
		c.requestOptions = append(c.requestOptions, option.WithBaseURL(url))
	}
}

// WithRequestOptions passes raw SDK request options through.
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(c *clientConfig) {
		c.requestOptions = append(c.requestOptions, opts...)
	}
}

// New creates a new OpenAI client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	cfg := clientConfig{
		model:          DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, cfg.requestOptions...)...)
	return &Client{
		client:         &client,
		model:          cfg.model,
		embeddingModel: cfg.embeddingModel,
		dimensions:     cfg.dimensions,
	}
}

// Generate sends the prompt and returns text or capability invocations.
func (c *Client) Generate(ctx context.Context, prompt ai.Prompt, opts ...ai.Option) (*ai.Generation, error) {
	options := ai.ApplyOptions(opts...)
	model := c.model
	if options.Model != "" {
		model = options.Model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.Text()))

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(*options.Temperature)
	}
	if len(options.Capabilities) > 0 {
		params.Tools = convertCapabilities(options.Capabilities)
		if options.ToolChoice != "" {
			params.ToolChoice = convertToolChoice(options.ToolChoice)
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	choice := resp.Choices[0]
	return &ai.Generation{
		Text:         choice.Message.Content,
		Invocations:  extractInvocations(choice.Message),
		FinishReason: string(choice.FinishReason),
		Usage: ai.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}
