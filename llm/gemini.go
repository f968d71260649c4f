// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - Block reasons and safety finishes mapped to ContentRejected

package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/richinex/chunkmill/diag"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature *float32
	apiKey      string
	reporter    diag.Reporter
	initErr     error // Stores client initialization error for deferred reporting
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature *float32, opts ...Option) *GeminiProvider {
	o := applyOptions(opts)

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}

	p := &GeminiProvider{
		model:       model,
		maxTokens:   int32(min(maxTokens, math.MaxInt32)),
		temperature: temperature,
		apiKey:      apiKey,
		reporter:    o.reporter,
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize Gemini client: %s", redact(err.Error(), apiKey))
		return p
	}
	p.client = client
	return p
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Generate sends prompt+chunk as one user message.
func (p *GeminiProvider) Generate(ctx context.Context, prompt, chunk string) (string, error) {
	if p.initErr != nil {
		return "", report(p.reporter, newProviderError(p.Name(), p.apiKey, Unexpected, 0, p.initErr.Error(), p.initErr))
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: p.maxTokens,
	}
	if p.temperature != nil {
		config.Temperature = genai.Ptr(*p.temperature)
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt+chunk, genai.RoleUser)}
	response, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", report(p.reporter, p.classify(err))
	}

	if fb := response.PromptFeedback; fb != nil && fb.BlockReason != "" {
		msg := fmt.Sprintf("prompt blocked by Gemini: %s", fb.BlockReason)
		return "", report(p.reporter, newProviderError(p.Name(), p.apiKey, ContentRejected, 0, msg, nil))
	}
	if len(response.Candidates) > 0 {
		switch reason := response.Candidates[0].FinishReason; reason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent,
			genai.FinishReasonBlocklist, genai.FinishReasonSPII:
			msg := fmt.Sprintf("response blocked by Gemini: %s", reason)
			return "", report(p.reporter, newProviderError(p.Name(), p.apiKey, ContentRejected, 0, msg, nil))
		}
	}

	text := response.Text()
	if strings.TrimSpace(text) == "" {
		return "", report(p.reporter, newProviderError(p.Name(), p.apiKey, EmptyResponse, 0, "Gemini returned no valid content", nil))
	}
	return text, nil
}

// classify maps genai failures to the shared taxonomy.
func (p *GeminiProvider) classify(err error) error {
	if out, ok := classifyTransport(p.Name(), p.apiKey, err); ok {
		return out
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return newProviderError(p.Name(), p.apiKey, Unexpected, 0, err.Error(), err)
	}

	kind := kindForStatus(apiErr.Code)
	switch apiErr.Status {
	case "RESOURCE_EXHAUSTED":
		kind = RateLimited
	case "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL":
		kind = Unavailable
	}
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Status
	}
	return newProviderError(p.Name(), p.apiKey, kind, apiErr.Code, msg, err)
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
