// Package retry provides the bounded exponential-backoff wrapper around
// provider calls.
//
// Information Hiding:
// - Backoff algorithm (geometric growth, optional cap and jitter) hidden
// - Error classification delegated to a Retryable predicate
// - Exhaustion collapses to the failure marker instead of an error

package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/llm"
	"github.com/richinex/chunkmill/model"
)

// Defaults used by the reference configuration.
const (
	DefaultMaxRetries    = 10
	DefaultInitialWait   = 2 * time.Second
	DefaultBackoffFactor = 2.0
)

// Op is one attempt of the wrapped operation.
type Op func(ctx context.Context) (string, error)

// Policy configures retrying. The zero value never invokes the operation;
// use Default or set MaxRetries.
type Policy struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int
	// InitialWait is the wait after the first failure.
	InitialWait time.Duration
	// BackoffFactor multiplies the wait after every retry.
	BackoffFactor float64
	// MaxWait caps a single wait; 0 disables the cap.
	MaxWait time.Duration
	// Jitter spreads each wait by up to ±Jitter of its value; 0 disables it.
	Jitter float64
	// Retryable decides whether an error is retried. nil selects
	// DefaultRetryable(true).
	Retryable func(error) bool
	// Reporter receives retry and exhaustion notices.
	Reporter diag.Reporter

	sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the reference policy: 10 attempts, 2s initial wait, factor 2.
func Default() Policy {
	return Policy{
		MaxRetries:    DefaultMaxRetries,
		InitialWait:   DefaultInitialWait,
		BackoffFactor: DefaultBackoffFactor,
	}
}

// DefaultRetryable builds the classification predicate.
//
// Context cancellation, local resource exhaustion and configuration or
// validation errors are never retried. With retryTerminal every other error
// is retried; without it ContentRejected and EmptyResponse are final too.
func DefaultRetryable(retryTerminal bool) func(error) bool {
	return func(err error) bool {
		switch {
		case err == nil,
			errors.Is(err, context.Canceled),
			fault.IsLocalResource(err),
			errors.Is(err, fault.ErrConfiguration),
			errors.Is(err, fault.ErrValidation):
			return false
		case retryTerminal:
			return true
		}
		kind, ok := llm.KindOf(err)
		return !ok || (kind != llm.ContentRejected && kind != llm.EmptyResponse)
	}
}

// Run calls op until it succeeds, fails with a non-retryable error, or
// MaxRetries attempts have failed.
//
// Success returns the text as a successful Result. Exhaustion returns
// model.Failure() with a nil error. A non-retryable error is returned as
// is after a single attempt. Cancellation of ctx returns ctx.Err().
func (p Policy) Run(ctx context.Context, label string, op Op) (model.Result, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable(true)
	}
	reporter := diag.OrNop(p.Reporter)
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	wait := p.InitialWait
	for attempt := 0; attempt < p.MaxRetries; {
		if err := ctx.Err(); err != nil {
			return model.Result{}, err
		}

		text, err := op(ctx)
		if err == nil {
			return model.Success(text), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Result{}, ctxErr
		}
		if !retryable(err) {
			return model.Result{}, err
		}

		attempt++
		if attempt == p.MaxRetries {
			reporter.Report(diag.ProcessingError,
				fmt.Sprintf("Failed to execute %s after %d retries.", label, p.MaxRetries))
			return model.Failure(), nil
		}

		d := p.jittered(wait)
		reporter.Report(diag.ProcessingError,
			fmt.Sprintf("Error in %s: %v. Retrying %d/%d in %s...", label, err, attempt, p.MaxRetries, d))
		if err := sleep(ctx, d); err != nil {
			return model.Result{}, err
		}
		wait = p.next(wait)
	}
	return model.Failure(), nil
}

// next grows the wait geometrically, honouring MaxWait.
func (p Policy) next(wait time.Duration) time.Duration {
	grown := time.Duration(float64(wait) * p.BackoffFactor)
	if p.MaxWait > 0 && grown > p.MaxWait {
		return p.MaxWait
	}
	return grown
}

func (p Policy) jittered(wait time.Duration) time.Duration {
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	if p.Jitter <= 0 || wait <= 0 {
		return wait
	}
	spread := p.Jitter * (2*rand.Float64() - 1)
	return max(0, time.Duration(float64(wait)*(1+spread)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
