// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - SDK retry loop disabled; failures mapped to Kind

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/richinex/chunkmill/diag"
)

// defaultAnthropicMaxTokens is used when no limit is configured; the
// Messages API requires one.
const defaultAnthropicMaxTokens = 1024

// statusOverloaded is Anthropic's non-standard "overloaded" status.
const statusOverloaded = 529

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature *float64
	apiKey      string
	reporter    diag.Reporter
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature *float32, opts ...Option) *AnthropicProvider {
	o := applyOptions(opts)

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}

	tokens := int64(maxTokens)
	if tokens == 0 {
		tokens = defaultAnthropicMaxTokens
	}

	var temp *float64
	if temperature != nil {
		t := float64(*temperature)
		temp = &t
	}

	return &AnthropicProvider{
		client:      anthropic.NewClient(reqOpts...),
		model:       model,
		maxTokens:   tokens,
		temperature: temp,
		apiKey:      apiKey,
		reporter:    o.reporter,
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Generate sends prompt+chunk as one user message.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt, chunk string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt + chunk)),
		},
	}
	if p.temperature != nil {
		params.Temperature = anthropic.Float(*p.temperature)
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", report(p.reporter, p.classify(err))
	}

	if message.StopReason == anthropic.StopReasonRefusal {
		return "", report(p.reporter, newProviderError(p.Name(), p.apiKey, ContentRejected, 0, "Anthropic refused to process the request", nil))
	}

	var content strings.Builder
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(variant.Text)
		}
	}
	if strings.TrimSpace(content.String()) == "" {
		return "", report(p.reporter, newProviderError(p.Name(), p.apiKey, EmptyResponse, 0, "No content field in Anthropic response", nil))
	}
	return content.String(), nil
}

// anthropicErrorBody is the JSON error envelope of the Messages API.
type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps anthropic-sdk-go failures to the shared taxonomy.
func (p *AnthropicProvider) classify(err error) error {
	if out, ok := classifyTransport(p.Name(), p.apiKey, err); ok {
		return out
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return newProviderError(p.Name(), p.apiKey, Unexpected, 0, err.Error(), err)
	}

	var body anthropicErrorBody
	_ = json.Unmarshal([]byte(apiErr.RawJSON()), &body)
	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}

	kind := kindForStatus(apiErr.StatusCode)
	switch {
	case apiErr.StatusCode == statusOverloaded, body.Error.Type == "overloaded_error":
		kind = Unavailable
	case body.Error.Type == "rate_limit_error":
		kind = RateLimited
	}
	if kind == RateLimited {
		msg = "Anthropic rate limit exceeded. Please wait before retrying. " + msg
	}
	return newProviderError(p.Name(), p.apiKey, kind, apiErr.StatusCode, msg, err)
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
