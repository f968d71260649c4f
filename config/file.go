package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/richinex/chunkmill/chunk"
	"github.com/richinex/chunkmill/fault"
)

// fileSpec mirrors Settings for YAML; nil fields leave the current value.
type fileSpec struct {
	Provider    *string  `yaml:"provider"`
	Model       *string  `yaml:"model"`
	MaxTokens   *uint32  `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	Prompt      *string  `yaml:"prompt"`

	ChunkSize *int        `yaml:"chunk_size"`
	ChunkBy   *chunk.Mode `yaml:"chunk_by"`

	Retry *struct {
		Max            *int           `yaml:"max"`
		InitialWait    *time.Duration `yaml:"initial_wait"`
		BackoffFactor  *float64       `yaml:"backoff_factor"`
		MaxWait        *time.Duration `yaml:"max_wait"`
		Jitter         *float64       `yaml:"jitter"`
		TerminalErrors *bool          `yaml:"terminal_errors"`
	} `yaml:"retry"`

	RequestTimeout *time.Duration `yaml:"request_timeout"`
	Concurrency    *int           `yaml:"concurrency"`

	Cache *struct {
		Path       *string `yaml:"path"`
		Persist    *bool   `yaml:"persist"`
		MaxEntries *int    `yaml:"max_entries"`
	} `yaml:"cache"`

	LogDir *string `yaml:"log_dir"`
}

// LoadFile overlays the YAML file at path onto s and revalidates.
// A missing file is a configuration error; callers only pass paths the
// user asked for.
func LoadFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fault.Configurationf("config file %s not found", path)
		}
		return fault.Configurationf("failed to read config: %v", err)
	}

	var overlay fileSpec
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fault.Configurationf("failed to parse config %s: %v", path, err)
	}

	overlay.apply(s)
	return s.Validate()
}

func (f fileSpec) apply(s *Settings) {
	if f.Provider != nil && *f.Provider != s.LLM.Provider {
		if kind, err := getProviderInfo(*f.Provider); err == nil {
			s.LLM.Provider = kind.kind.String()
			s.LLM.Model = kind.kind.DefaultModel()
		} else {
			s.LLM.Provider = *f.Provider
		}
	}
	set(&s.LLM.Model, f.Model)
	set(&s.LLM.MaxTokens, f.MaxTokens)
	if f.Temperature != nil {
		t := *f.Temperature
		s.LLM.Temperature = &t
	}
	set(&s.Prompt, f.Prompt)

	set(&s.Chunking.Size, f.ChunkSize)
	set(&s.Chunking.By, f.ChunkBy)

	if r := f.Retry; r != nil {
		set(&s.Retry.MaxRetries, r.Max)
		set(&s.Retry.InitialWait, r.InitialWait)
		set(&s.Retry.BackoffFactor, r.BackoffFactor)
		set(&s.Retry.MaxWait, r.MaxWait)
		set(&s.Retry.Jitter, r.Jitter)
		set(&s.Retry.RetryTerminal, r.TerminalErrors)
	}

	set(&s.Runtime.RequestTimeout, f.RequestTimeout)
	set(&s.Runtime.Concurrency, f.Concurrency)

	if c := f.Cache; c != nil {
		set(&s.Cache.Path, c.Path)
		set(&s.Cache.Persist, c.Persist)
		set(&s.Cache.MaxEntries, c.MaxEntries)
	}

	set(&s.LogDir, f.LogDir)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
