package llm

// Model identifier constants for all supported providers.

// OpenAI model identifiers
const (
	// ModelOpenAIGPT4 is GPT-4, the default.
	ModelOpenAIGPT4 = "gpt-4"
	// ModelOpenAIGPT35Turbo is GPT-3.5 Turbo.
	ModelOpenAIGPT35Turbo = "gpt-3.5-turbo"
	// ModelOpenAIGPT4o is GPT-4o.
	ModelOpenAIGPT4o = "gpt-4o"
	// ModelOpenAIGPT4oMini is GPT-4o-mini.
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
)

// Anthropic model identifiers
const (
	// ModelAnthropicClaude35Sonnet is Claude 3.5 Sonnet (June 2024), the default.
	ModelAnthropicClaude35Sonnet = "claude-3-5-sonnet-20240620"
	// ModelAnthropicClaudeSonnet4 is Claude Sonnet 4.
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	// ModelAnthropicClaudeOpus45 is Claude Opus 4.5.
	ModelAnthropicClaudeOpus45 = "claude-opus-4-5-20251101"
)

// Gemini model identifiers
const (
	// ModelGemini15Flash is Gemini 1.5 Flash, the default.
	ModelGemini15Flash = "gemini-1.5-flash"
	// ModelGemini15Pro is Gemini 1.5 Pro.
	ModelGemini15Pro = "gemini-1.5-pro"
	// ModelGeminiFlash2 is Gemini 2.0 Flash.
	ModelGeminiFlash2 = "gemini-2.0-flash"
)

// Models returns the selectable models for a provider, default first.
func (p ProviderType) Models() []string {
	switch p {
	case ProviderOpenAI:
		return []string{ModelOpenAIGPT4, ModelOpenAIGPT35Turbo, ModelOpenAIGPT4o, ModelOpenAIGPT4oMini}
	case ProviderAnthropic:
		return []string{ModelAnthropicClaude35Sonnet, ModelAnthropicClaudeSonnet4, ModelAnthropicClaudeOpus45}
	case ProviderGemini:
		return []string{ModelGemini15Flash, ModelGemini15Pro, ModelGeminiFlash2}
	default:
		return nil
	}
}
