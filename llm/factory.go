// Provider Factory - builder-first API for creating providers.
//
// Quick Start:
//
//	// Simplest: use defaults, read API key from environment
//	openai, err := llm.ProviderOpenAI.FromEnv()
//	claude, err := llm.ProviderAnthropic.FromEnv()
//
//	// With custom model
//	mini, err := llm.ProviderOpenAI.Model(llm.ModelOpenAIGPT4oMini).FromEnv()
//
//	// Full configuration
//	custom, err := llm.ProviderGemini.
//	    Model(llm.ModelGemini15Flash).
//	    MaxTokens(2048).
//	    Temperature(0.3).
//	    Reporter(sink).
//	    FromEnv()
//
//	// With explicit API key
//	provider, err := llm.ProviderOpenAI.Model(llm.ModelOpenAIGPT4).APIKey("sk-...")

package llm

import (
	"net/http"
	"os"
	"strings"

	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/fault"
)

// ProviderType represents supported providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// ProviderTypes lists every supported provider in display order.
func ProviderTypes() []ProviderType {
	return []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// DisplayName returns the human-readable provider name.
func (p ProviderType) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderGemini:
		return "Gemini"
	default:
		return "Unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return ModelOpenAIGPT4
	case ProviderAnthropic:
		return ModelAnthropicClaude35Sonnet
	case ProviderGemini:
		return ModelGemini15Flash
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fault.Configurationf("unsupported provider: %s", s)
	}
}

// FromEnv creates a provider with defaults, reading API key from environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// APIKey creates a provider with an explicit API key (uses defaults for everything else).
func (p ProviderType) APIKey(key string) (Provider, error) {
	return NewProviderBuilder(p).APIKey(key)
}

// ProviderBuilder is a builder for configuring providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	maxTokens    uint32
	temperature  *float32
	baseURL      string
	httpClient   *http.Client
	reporter     diag.Reporter
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// MaxTokens sets maximum tokens for responses (0 = provider default).
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// BaseURL overrides the API endpoint.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// HTTPClient sets the HTTP client used by the SDK.
func (b *ProviderBuilder) HTTPClient(c *http.Client) *ProviderBuilder {
	b.httpClient = c
	return b
}

// Reporter sets the sink for classified failures.
func (b *ProviderBuilder) Reporter(r diag.Reporter) *ProviderBuilder {
	b.reporter = r
	return b
}

// FromEnv builds the provider, reading API key from environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fault.Configurationf("%s: %s environment variable not set", b.providerType, envVar)
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fault.Configurationf("%s: API key is empty", b.providerType)
	}
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}

	opts := []Option{WithReporter(b.reporter)}
	if b.baseURL != "" {
		opts = append(opts, WithBaseURL(b.baseURL))
	}
	if b.httpClient != nil {
		opts = append(opts, WithHTTPClient(b.httpClient))
	}

	switch b.providerType {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, model, b.maxTokens, b.temperature, opts...), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model, b.maxTokens, b.temperature, opts...), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, model, b.maxTokens, b.temperature, opts...), nil
	default:
		return nil, fault.Configurationf("unsupported provider type: %v", b.providerType)
	}
}
