package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/richinex/chunkmill/chunk"
	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/llm"
)

func TestNewValidProvider(t *testing.T) {
	settings, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", settings.LLM.Provider)
	}
}

func TestNewWithAlias(t *testing.T) {
	settings, err := New("claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("unknown_provider")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	settings, err := New("gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.LLM.Model != llm.ProviderGemini.DefaultModel() {
		t.Errorf("expected default model, got %q", settings.LLM.Model)
	}
	if settings.LLM.Temperature != nil {
		t.Errorf("expected no temperature, got %v", *settings.LLM.Temperature)
	}
	if settings.Chunking.Size != 500 || settings.Chunking.By != chunk.Words {
		t.Errorf("unexpected chunking defaults: %+v", settings.Chunking)
	}
	if settings.Retry.MaxRetries != 10 || settings.Retry.InitialWait != 2*time.Second || settings.Retry.BackoffFactor != 2 {
		t.Errorf("unexpected retry defaults: %+v", settings.Retry)
	}
	if !settings.Retry.RetryTerminal {
		t.Error("expected terminal errors to be retried by default")
	}
	if settings.Runtime.Concurrency != 1 {
		t.Errorf("expected sequential processing by default, got %d", settings.Runtime.Concurrency)
	}
	if !settings.Cache.Persist || settings.Cache.Path == "" {
		t.Errorf("unexpected cache defaults: %+v", settings.Cache)
	}
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_MODEL", "claude-test")
	t.Setenv("LLM_TEMPERATURE", "0.25")
	t.Setenv("CHUNK_SIZE", "42")
	t.Setenv("CHUNK_BY", "paragraphs")
	t.Setenv("RETRY_MAX", "3")
	t.Setenv("RETRY_INITIAL_WAIT", "150ms")
	t.Setenv("RETRY_TERMINAL_ERRORS", "false")
	t.Setenv("PIPELINE_CONCURRENCY", "4")

	settings, err := New("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.LLM.Model != "claude-test" {
		t.Errorf("expected model from env, got %q", settings.LLM.Model)
	}
	if settings.LLM.Temperature == nil || *settings.LLM.Temperature != 0.25 {
		t.Errorf("expected temperature 0.25, got %v", settings.LLM.Temperature)
	}
	if settings.Chunking.Size != 42 || settings.Chunking.By != chunk.Paragraphs {
		t.Errorf("unexpected chunking: %+v", settings.Chunking)
	}
	if settings.Retry.MaxRetries != 3 || settings.Retry.InitialWait != 150*time.Millisecond {
		t.Errorf("unexpected retry: %+v", settings.Retry)
	}
	if settings.Retry.RetryTerminal {
		t.Error("expected terminal errors to be final")
	}
	if settings.Runtime.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", settings.Runtime.Concurrency)
	}
}

func TestNewWithInvalidEnvVar(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")

	_, err := New("openai")
	if err == nil {
		t.Error("expected error for invalid LLM_MAX_TOKENS")
	}
}

func TestNewRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"LLM_MAX_TOKENS", "3000000000"},
		{"CHUNK_SIZE", "0"},
		{"CHUNK_BY", "lines"},
		{"RETRY_MAX", "0"},
		{"RETRY_BACKOFF_FACTOR", "0.5"},
		{"RETRY_JITTER", "1.5"},
		{"PIPELINE_CONCURRENCY", "0"},
		{"CACHE_MAX_ENTRIES", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := New("openai")
			if !errors.Is(err, fault.ErrConfiguration) {
				t.Errorf("%s=%s: expected configuration error, got %v", tt.env, tt.value, err)
			}
		})
	}
}

func TestMustNewPanicsOnUnknownProvider(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustNew("nope")
}

func TestAPIKeyForValidProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	key, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "   ")

	_, err := APIKeyFor("google")
	if err == nil {
		t.Fatal("expected error for blank API key")
	}
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	_, err := APIKeyFor("unknown")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestModelFor(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	model, err := ModelFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != llm.ProviderOpenAI.DefaultModel() {
		t.Errorf("expected default model, got %q", model)
	}

	t.Setenv("OPENAI_MODEL", "gpt-4o")
	model, _ = ModelFor("gpt")
	if model != "gpt-4o" {
		t.Errorf("expected model from env, got %q", model)
	}
}

func TestSupportedProviders(t *testing.T) {
	got := SupportedProviders()
	want := []string{"anthropic", "gemini", "openai"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}

func TestRetryPolicyFromSettings(t *testing.T) {
	t.Setenv("RETRY_MAX", "4")
	t.Setenv("RETRY_MAX_WAIT", "5s")
	t.Setenv("RETRY_TERMINAL_ERRORS", "false")

	settings := MustNew("openai")
	policy := settings.RetryPolicy(nil)

	if policy.MaxRetries != 4 || policy.MaxWait != 5*time.Second {
		t.Errorf("unexpected policy: %+v", policy)
	}
	rejected := &llm.ProviderError{Provider: "openai", Kind: llm.ContentRejected}
	if policy.Retryable(rejected) {
		t.Error("content rejection must be final when terminal retries are off")
	}
	unavailable := &llm.ProviderError{Provider: "openai", Kind: llm.Unavailable}
	if !policy.Retryable(unavailable) {
		t.Error("unavailable must be retried")
	}
}

func TestProviderBuilderFromSettings(t *testing.T) {
	settings := MustNew("openai")
	b, err := settings.ProviderBuilder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	provider, err := b.APIKey("sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "openai" || provider.Model() != settings.LLM.Model {
		t.Errorf("unexpected provider %s/%s", provider.Name(), provider.Model())
	}
}

func TestLoadFileOverlays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkmill.yaml")
	content := `provider: claude
prompt: "Summarize: "
chunk_size: 50
chunk_by: sentences
retry:
  max: 2
  initial_wait: 10ms
cache:
  persist: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	settings := MustNew("openai")
	if err := LoadFile(path, &settings); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != llm.ProviderAnthropic.DefaultModel() {
		t.Errorf("switching provider should reset the model, got %q", settings.LLM.Model)
	}
	if settings.Prompt != "Summarize: " {
		t.Errorf("unexpected prompt %q", settings.Prompt)
	}
	if settings.Chunking.Size != 50 || settings.Chunking.By != chunk.Sentences {
		t.Errorf("unexpected chunking: %+v", settings.Chunking)
	}
	if settings.Retry.MaxRetries != 2 || settings.Retry.InitialWait != 10*time.Millisecond {
		t.Errorf("unexpected retry: %+v", settings.Retry)
	}
	if settings.Retry.BackoffFactor != 2 {
		t.Errorf("unset keys must keep their value, got factor %g", settings.Retry.BackoffFactor)
	}
	if settings.Cache.Persist {
		t.Error("expected persistence disabled")
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("chunk_size: [1, 2"), 0o644)
	invalid := filepath.Join(dir, "invalid.yaml")
	_ = os.WriteFile(invalid, []byte("chunk_size: -3\n"), 0o644)

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "nope.yaml")},
		{"malformed", bad},
		{"out of range", invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := MustNew("openai")
			err := LoadFile(tt.path, &settings)
			if !errors.Is(err, fault.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}
