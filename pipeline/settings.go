package pipeline

import (
	"time"

	"github.com/richinex/chunkmill/chunk"
	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/retry"
)

// Settings are the fully resolved parameters of one run.
type Settings struct {
	// Prompt is prepended verbatim to every chunk.
	Prompt    string
	ChunkSize int
	Mode      chunk.Mode
	Retry     retry.Policy
	// RequestTimeout bounds a single provider attempt; 0 disables it.
	RequestTimeout time.Duration
	// Concurrency is the number of chunks of a file resolved at once.
	Concurrency int
}

// DefaultSettings returns the reference settings: 500 words per chunk,
// the default retry policy and sequential processing.
func DefaultSettings(prompt string) Settings {
	return Settings{
		Prompt:         prompt,
		ChunkSize:      500,
		Mode:           chunk.Words,
		Retry:          retry.Default(),
		RequestTimeout: 60 * time.Second,
		Concurrency:    1,
	}
}

// Validate reports malformed settings. Errors wrap fault.ErrValidation.
func (s Settings) Validate() error {
	switch {
	case s.ChunkSize <= 0:
		return fault.Validationf("chunk size must be a positive integer, got %d", s.ChunkSize)
	case !s.Mode.Valid():
		return fault.Validationf("unsupported chunk mode %v", s.Mode)
	case s.Retry.MaxRetries < 1:
		return fault.Validationf("max retries must be at least 1, got %d", s.Retry.MaxRetries)
	case s.Retry.BackoffFactor < 1:
		return fault.Validationf("backoff factor must be at least 1, got %g", s.Retry.BackoffFactor)
	case s.RequestTimeout < 0:
		return fault.Validationf("request timeout must not be negative")
	case s.Concurrency < 1:
		return fault.Validationf("concurrency must be at least 1, got %d", s.Concurrency)
	}
	return nil
}

// TotalSteps returns the step count of a run over texts: one split, one
// step per chunk and one merge per file.
func TotalSteps(texts []string, size int, mode chunk.Mode) int {
	total := 0
	for _, text := range texts {
		total += chunk.Count(text, size, mode) + 2
	}
	return total
}
