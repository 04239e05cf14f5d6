// Package google adapts the Gemini API (google.golang.org/genai) to the
// toolflow Generator and Embedder interfaces.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	ai "github.com/spetersoncode/toolflow"
)

// Default models.
const (
	DefaultChatModel      = "gemini-2.5-flash"
	DefaultEmbeddingModel = "gemini-embedding-001"
)

// Client wraps the Google GenAI SDK to implement ai.Generator and ai.Embedder.
type Client struct {
	client         *genai.Client
	model          string
	embeddingModel string
	dimensions     int32
}

var (
	_ ai.Generator = (*Client)(nil)
	_ ai.Embedder  = (*Client)(nil)
)

type clientConfig struct {
	model          string
	embeddingModel string
	dimensions     int32
	baseURL        string
	httpClient     *http.Client
}

// ClientOption configures the Google client.
type ClientOption func(*clientConfig)

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

// WithDimensions sets the embedding output dimensionality.
func WithDimensions(n int) ClientOption {
	return func(c *clientConfig) {
		c.dimensions = int32(n)
	}
}

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = hc
	}
}

// New creates a new Gemini client with the given API key.
func New(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{
		model:          DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	return &Client{
		client:         client,
		model:          cfg.model,
		embeddingModel: cfg.embeddingModel,
		dimensions:     cfg.dimensions,
	}, nil
}

// Generate sends the prompt and returns text or capability invocations.
func (c *Client) Generate(ctx context.Context, prompt ai.Prompt, opts ...ai.Option) (*ai.Generation, error) {
	options := ai.ApplyOptions(opts...)
	model := c.model
	if options.Model != "" {
		model = options.Model
	}

	config := &genai.GenerateContentConfig{}
	if prompt.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: prompt.System}}}
	}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(options.MaxTokens)
	}
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		config.Temperature = &temp
	}
	if len(options.Capabilities) > 0 {
		config.Tools = convertCapabilities(options.Capabilities)
		if options.ToolChoice != "" {
			config.ToolConfig = convertToolChoice(options.ToolChoice)
		}
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt.Text()}},
	}}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}

	gen := &ai.Generation{}
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		gen.FinishReason = string(cand.FinishReason)
		if cand.Content != nil {
			var text strings.Builder
			for _, part := range cand.Content.Parts {
				text.WriteString(part.Text)
			}
			gen.Text = text.String()
			gen.Invocations = extractInvocations(cand.Content.Parts)
		}
	}
	if resp.UsageMetadata != nil {
		gen.Usage = ai.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return gen, nil
}

// wrapError categorizes a GenAI error. APIError does not expose headers, so
// Retry-After is not available.
func wrapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	return ai.NewProviderError(ai.ProviderGoogle, apiErr.Code, 0, err)
}
