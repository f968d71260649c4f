// Package llm provides text-generation provider abstractions.
//
// Provider interface - the abstract interface for text-generation providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error classification
//
// Retrying is not done here: SDK-level retries are disabled so the retry
// package owns the policy.

package llm

import (
	"context"
	"net/http"

	"github.com/richinex/chunkmill/diag"
)

// Provider generates text for one prompt/chunk pair.
type Provider interface {
	// Name returns the provider name (for logging/cache keys).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Generate sends a single user message whose text is prompt+chunk and
	// returns the generated text. Failures are *ProviderError, a
	// fault.ErrLocalResource error, or the context's error.
	Generate(ctx context.Context, prompt, chunk string) (string, error)
}

// clientOptions holds settings shared by every adapter constructor.
type clientOptions struct {
	baseURL    string
	httpClient *http.Client
	reporter   diag.Reporter
}

// Option configures an adapter.
type Option func(*clientOptions)

// WithBaseURL overrides the API endpoint (tests, proxies).
func WithBaseURL(url string) Option {
	return func(o *clientOptions) { o.baseURL = url }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithReporter sets the sink for classified failures.
func WithReporter(r diag.Reporter) Option {
	return func(o *clientOptions) { o.reporter = r }
}

func applyOptions(opts []Option) clientOptions {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	o.reporter = diag.OrNop(o.reporter)
	return o
}
