// Package anthropic adapts the Anthropic Messages API to the toolflow
// Generator interface.
package anthropic

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	ai "github.com/spetersoncode/toolflow"
)

// DefaultChatModel is the model used when none is configured.
const DefaultChatModel = "claude-sonnet-4-5"

// defaultMaxTokens is required by the API when the caller sets none.
const defaultMaxTokens = 4096

// Client wraps the Anthropic SDK to implement ai.Generator.
type Client struct {
	client *anthropic.Client
	model  string
}

var _ ai.Generator = (*Client)(nil)

type clientConfig struct {
	model          string
	requestOptions []option.RequestOption
}

// ClientOption configures the Anthropic client.
type ClientOption func(*clientConfig)

// WithModel sets the default model for requests.
func WithModel(model string) ClientOption {
	return func(c *clientConfig) {
		c.model = model
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

// New creates a new Anthropic client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	cfg := clientConfig{model: DefaultChatModel}
	for _, opt := range opts {
		opt(&cfg)
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, cfg.requestOptions...)...)
	return &Client{client: &client, model: cfg.model}
}

// Generate sends the prompt and returns text or capability invocations.
func (c *Client) Generate(ctx context.Context, prompt ai.Prompt, opts ...ai.Option) (*ai.Generation, error) {
	options := ai.ApplyOptions(opts...)
	model := c.model
	if options.Model != "" {
		model = options.Model
	}

	maxTokens := int64(defaultMaxTokens)
	if options.MaxTokens > 0 {
		maxTokens = int64(options.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.Text())),
		},
	}
	// Empty text blocks are rejected by the API
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(*options.Temperature)
	}
	if len(options.Capabilities) > 0 {
		params.Tools = convertCapabilities(options.Capabilities)
		if options.ToolChoice != "" {
			params.ToolChoice = convertToolChoice(options.ToolChoice)
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &ai.Generation{
		Text:         text.String(),
		Invocations:  extractInvocations(resp.Content),
		FinishReason: string(resp.StopReason),
		Usage: ai.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	var wait time.Duration
	if apiErr.Response != nil {
		if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	return ai.NewProviderError(ai.ProviderAnthropic, apiErr.StatusCode, wait, err)
}
