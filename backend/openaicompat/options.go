package openaicompat

import (
	"net/http"
	"time"
)

type options struct {
	baseURL     string
	apiKey      string
	model       string
	temperature *float32
	maxTokens   int
	headers     map[string]string
	query       map[string]string
	timeout     time.Duration
	httpClient  *http.Client
}

func defaultOptions() options {
	return options{
		baseURL: "https://api.openai.com/v1",
		timeout: 60 * time.Second,
	}
}

// Option customises the client.
type Option func(*options)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithTemperature pins the sampling temperature. Deterministic utility
// backends are configured with 0.
func WithTemperature(t float32) Option {
	return func(o *options) { o.temperature = &t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = n }
}

// WithHeader adds a request header; Azure deployments authenticate with
// an api-key header instead of a bearer token.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithQueryParam adds a query parameter to every request, e.g. the Azure
// api-version.
func WithQueryParam(key, value string) Option {
	return func(o *options) {
		if o.query == nil {
			o.query = map[string]string{}
		}
		o.query[key] = value
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient overrides the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}
