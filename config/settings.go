// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation (envconfig)
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/richinex/chunkmill/chunk"
	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/llm"
	"github.com/richinex/chunkmill/retry"
)

// Settings holds all application configuration.
type Settings struct {
	LLM      LLMConfig
	Chunking ChunkingConfig
	Retry    RetryConfig
	Runtime  RuntimeConfig
	Cache    CacheConfig
	LogDir   string
	// Prompt is an optional default prompt (from a config file).
	Prompt string
}

// LLMConfig holds provider configuration.
type LLMConfig struct {
	Provider  string
	Model     string
	MaxTokens uint32
	// Temperature is nil when the provider default applies.
	Temperature *float64
}

// ChunkingConfig holds chunker configuration.
type ChunkingConfig struct {
	Size int
	By   chunk.Mode
}

// RetryConfig holds retry policy configuration.
type RetryConfig struct {
	MaxRetries    int
	InitialWait   time.Duration
	BackoffFactor float64
	MaxWait       time.Duration
	Jitter        float64
	// RetryTerminal retries content rejections and empty responses too.
	RetryTerminal bool
}

// RuntimeConfig holds pipeline execution configuration.
type RuntimeConfig struct {
	RequestTimeout time.Duration
	Concurrency    int
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	Path       string
	Persist    bool
	MaxEntries int
}

// envSpec is the flat environment schema. envconfig prefixes nested
// structs, so the grouped Settings is built from it by hand.
type envSpec struct {
	MaxTokens   uint32   `envconfig:"LLM_MAX_TOKENS" default:"0"`
	Temperature *float64 `envconfig:"LLM_TEMPERATURE"`

	ChunkSize int        `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkBy   chunk.Mode `envconfig:"CHUNK_BY" default:"words"`

	RetryMax           int           `envconfig:"RETRY_MAX" default:"10"`
	RetryInitialWait   time.Duration `envconfig:"RETRY_INITIAL_WAIT" default:"2s"`
	RetryBackoffFactor float64       `envconfig:"RETRY_BACKOFF_FACTOR" default:"2"`
	RetryMaxWait       time.Duration `envconfig:"RETRY_MAX_WAIT" default:"0s"`
	RetryJitter        float64       `envconfig:"RETRY_JITTER" default:"0"`
	RetryTerminal      bool          `envconfig:"RETRY_TERMINAL_ERRORS" default:"true"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	Concurrency    int           `envconfig:"PIPELINE_CONCURRENCY" default:"1"`

	CachePath       string `envconfig:"CACHE_PATH" default:".chunkmill/cache.db"`
	CachePersist    bool   `envconfig:"CACHE_PERSIST" default:"true"`
	CacheMaxEntries int    `envconfig:"CACHE_MAX_ENTRIES" default:"0"`

	LogDir string `envconfig:"LOG_DIR" default:"logs"`
}

// providerInfo holds configuration for a specific provider.
type providerInfo struct {
	kind     llm.ProviderType
	modelEnv string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {llm.ProviderOpenAI, "OPENAI_MODEL"},
	"anthropic": {llm.ProviderAnthropic, "ANTHROPIC_MODEL"},
	"gemini":    {llm.ProviderGemini, "GEMINI_MODEL"},
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	var env envSpec
	if err := envconfig.Process("", &env); err != nil {
		return Settings{}, fault.Configurationf("invalid environment: %v", err)
	}

	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.kind.DefaultModel()
	}

	settings := Settings{
		LLM: LLMConfig{
			Provider:    info.kind.String(),
			Model:       model,
			MaxTokens:   env.MaxTokens,
			Temperature: env.Temperature,
		},
		Chunking: ChunkingConfig{
			Size: env.ChunkSize,
			By:   env.ChunkBy,
		},
		Retry: RetryConfig{
			MaxRetries:    env.RetryMax,
			InitialWait:   env.RetryInitialWait,
			BackoffFactor: env.RetryBackoffFactor,
			MaxWait:       env.RetryMaxWait,
			Jitter:        env.RetryJitter,
			RetryTerminal: env.RetryTerminal,
		},
		Runtime: RuntimeConfig{
			RequestTimeout: env.RequestTimeout,
			Concurrency:    env.Concurrency,
		},
		Cache: CacheConfig{
			Path:       env.CachePath,
			Persist:    env.CachePersist,
			MaxEntries: env.CacheMaxEntries,
		},
		LogDir: env.LogDir,
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate checks value ranges. Errors wrap fault.ErrConfiguration.
func (s Settings) Validate() error {
	if _, err := getProviderInfo(s.LLM.Provider); err != nil {
		return err
	}
	switch {
	case s.LLM.MaxTokens > math.MaxInt32:
		return fault.Configurationf("max tokens must not exceed %d, got %d", math.MaxInt32, s.LLM.MaxTokens)
	case s.Chunking.Size <= 0:
		return fault.Configurationf("chunk size must be positive, got %d", s.Chunking.Size)
	case !s.Chunking.By.Valid():
		return fault.Configurationf("unsupported chunk mode %v", s.Chunking.By)
	case s.Retry.MaxRetries < 1:
		return fault.Configurationf("retry max must be at least 1, got %d", s.Retry.MaxRetries)
	case s.Retry.BackoffFactor < 1:
		return fault.Configurationf("retry backoff factor must be at least 1, got %g", s.Retry.BackoffFactor)
	case s.Retry.InitialWait < 0 || s.Retry.MaxWait < 0:
		return fault.Configurationf("retry waits must not be negative")
	case s.Retry.Jitter < 0 || s.Retry.Jitter >= 1:
		return fault.Configurationf("retry jitter must be in [0, 1), got %g", s.Retry.Jitter)
	case s.Runtime.RequestTimeout < 0:
		return fault.Configurationf("request timeout must not be negative")
	case s.Runtime.Concurrency < 1:
		return fault.Configurationf("pipeline concurrency must be at least 1, got %d", s.Runtime.Concurrency)
	case s.Cache.MaxEntries < 0:
		return fault.Configurationf("cache max entries must not be negative, got %d", s.Cache.MaxEntries)
	}
	return nil
}

// ProviderType returns the llm provider type for the configured provider.
func (s Settings) ProviderType() (llm.ProviderType, error) {
	info, err := getProviderInfo(s.LLM.Provider)
	if err != nil {
		return 0, err
	}
	return info.kind, nil
}

// ProviderBuilder returns a builder preconfigured with the LLM settings.
func (s Settings) ProviderBuilder() (*llm.ProviderBuilder, error) {
	kind, err := s.ProviderType()
	if err != nil {
		return nil, err
	}
	b := llm.NewProviderBuilder(kind).Model(s.LLM.Model).MaxTokens(s.LLM.MaxTokens)
	if s.LLM.Temperature != nil {
		b = b.Temperature(float32(*s.LLM.Temperature))
	}
	return b, nil
}

// RetryPolicy builds the retry policy described by the settings.
func (s Settings) RetryPolicy(reporter diag.Reporter) retry.Policy {
	return retry.Policy{
		MaxRetries:    s.Retry.MaxRetries,
		InitialWait:   s.Retry.InitialWait,
		BackoffFactor: s.Retry.BackoffFactor,
		MaxWait:       s.Retry.MaxWait,
		Jitter:        s.Retry.Jitter,
		Retryable:     retry.DefaultRetryable(s.Retry.RetryTerminal),
		Reporter:      reporter,
	}
}

// getProviderInfo returns configuration for a provider name or alias.
func getProviderInfo(provider string) (providerInfo, error) {
	kind, err := llm.ParseProviderType(provider)
	if err != nil {
		return providerInfo{}, fault.Configurationf("unknown provider: %q", provider)
	}
	return providers[kind.String()], nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	envVar := info.kind.EnvVar()
	key := strings.TrimSpace(os.Getenv(envVar))
	if key == "" {
		return "", fault.Configurationf("%s environment variable not set", envVar)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.kind.DefaultModel(), nil
}

// SupportedProviders returns the sorted list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	slices.Sort(result)
	return result
}
