// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Mapping of go-openai error types to Kind

package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/richinex/chunkmill/diag"
)

// OpenAIProvider implements the Provider interface for OpenAI.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature *float32
	apiKey      string
	reporter    diag.Reporter
}

// NewOpenAIProvider creates a new OpenAI provider. maxTokens 0 and a nil
// temperature leave the API defaults in place.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature *float32, opts ...Option) *OpenAIProvider {
	o := applyOptions(opts)

	config := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		config.HTTPClient = o.httpClient
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
		apiKey:      apiKey,
		reporter:    o.reporter,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Generate sends prompt+chunk as one user message.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt, chunk string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt + chunk},
		},
		MaxCompletionTokens: p.maxTokens,
	}
	if p.temperature != nil {
		req.Temperature = *p.temperature
		if req.Temperature == 0 {
			// go-openai omits a zero temperature; this is its documented stand-in.
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", report(p.reporter, p.classify(err))
	}

	if len(resp.Choices) == 0 {
		return "", report(p.reporter, newProviderError(p.Name(), p.apiKey, EmptyResponse, 0, "OpenAI returned no choices", nil))
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", report(p.reporter, newProviderError(p.Name(), p.apiKey, ContentRejected, 0, "response withheld by OpenAI's content filter", nil))
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", report(p.reporter, newProviderError(p.Name(), p.apiKey, EmptyResponse, 0, "OpenAI returned no valid content", nil))
	}
	return choice.Message.Content, nil
}

// classify maps go-openai failures to the shared taxonomy.
func (p *OpenAIProvider) classify(err error) error {
	if out, ok := classifyTransport(p.Name(), p.apiKey, err); ok {
		return out
	}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		kind := kindForStatus(apiErr.HTTPStatusCode)
		if fmt.Sprint(apiErr.Code) == "content_policy_violation" {
			kind = ContentRejected
		}
		return newProviderError(p.Name(), p.apiKey, kind, apiErr.HTTPStatusCode, apiErr.Message, err)
	case errors.As(err, &reqErr):
		return newProviderError(p.Name(), p.apiKey, kindForStatus(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode,
			fmt.Sprintf("request failed: %s", reqErr.HTTPStatus), err)
	default:
		return newProviderError(p.Name(), p.apiKey, Unexpected, 0, err.Error(), err)
	}
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
