package toolflow

// Options contains configuration for a generation request.
type Options struct {
	Model        string
	MaxTokens    int
	Temperature  *float64
	Capabilities []Capability
	ToolChoice   ToolChoice
}

// Option is a functional option for configuring generation requests.
type Option func(*Options)

// WithModel sets the model to use for the request.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature (0.0 to 2.0).
func WithTemperature(t float64) Option {
	return func(o *Options) {
		o.Temperature = &t
	}
}

// WithCapabilities sets the capabilities the model may invoke.
func WithCapabilities(caps []Capability) Option {
	return func(o *Options) {
		o.Capabilities = caps
	}
}

// WithToolChoice controls whether the model must, may or must not invoke capabilities.
func WithToolChoice(choice ToolChoice) Option {
	return func(o *Options) {
		o.ToolChoice = choice
	}
}

// ApplyOptions applies functional options to an Options struct.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
