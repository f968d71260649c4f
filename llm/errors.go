// Provider error taxonomy shared by all adapters.
//
// Information Hiding:
// - SDK-specific error types never leave the adapter that produced them
// - Message bounding and credential redaction
// - Mapping of HTTP status codes and transport failures to Kind

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/fault"
)

// maxMessageRunes bounds ProviderError.Message.
const maxMessageRunes = 300

// Kind classifies a provider failure.
type Kind int

const (
	// Unexpected is any failure not covered by a more specific kind.
	Unexpected Kind = iota
	// RateLimited is HTTP 429 or a quota/resource-exhausted status.
	RateLimited
	// Unavailable covers network errors, timeouts and 5xx/overloaded responses.
	Unavailable
	// ContentRejected means the provider refused the content.
	ContentRejected
	// EmptyResponse is a successful call that returned blank text.
	EmptyResponse
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate limited"
	case Unavailable:
		return "unavailable"
	case ContentRejected:
		return "content rejected"
	case EmptyResponse:
		return "empty response"
	default:
		return "unexpected"
	}
}

// ProviderError is returned by every adapter for API-level failures.
type ProviderError struct {
	Provider string
	Kind     Kind
	// Status is the HTTP status code, 0 when no response was received.
	Status int
	// Message is bounded and never contains credentials.
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a ProviderError in err's chain.
func KindOf(err error) (Kind, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return Unexpected, false
}

// Retryable reports whether err is a transient provider failure
// (RateLimited or Unavailable).
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == RateLimited || kind == Unavailable)
}

// newProviderError builds a ProviderError with a redacted, bounded message.
func newProviderError(provider, secret string, kind Kind, status int, msg string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Status:   status,
		Message:  bound(redact(msg, secret)),
		Err:      err,
	}
}

// kindForStatus maps an HTTP status code to a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		return Unavailable
	default:
		return Unexpected
	}
}

// classifyTransport handles failures that look the same regardless of SDK.
// It returns handled=false when the SDK-specific switch must decide.
func classifyTransport(provider, secret string, err error) (out error, handled bool) {
	switch {
	case errors.Is(err, context.Canceled):
		return err, true
	case fault.IsLocalResource(err):
		return fault.LocalResource(err), true
	case errors.Is(err, context.DeadlineExceeded):
		return newProviderError(provider, secret, Unavailable, 0, "request timed out", err), true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newProviderError(provider, secret, Unavailable, 0, "failed to connect: "+err.Error(), err), true
	}
	return nil, false
}

// report sends a classified diagnostic for a failed call and returns err.
func report(r diag.Reporter, err error) error {
	var perr *ProviderError
	switch {
	case errors.As(err, &perr):
		class := diag.APIError
		if perr.Kind == EmptyResponse {
			class = diag.ProcessingError
		}
		r.Report(class, perr.Error())
	case fault.IsLocalResource(err):
		r.Report(diag.StorageError, "No space left on device.")
	}
	return err
}

func redact(msg, secret string) string {
	if secret == "" {
		return msg
	}
	return strings.ReplaceAll(msg, secret, "[REDACTED]")
}

func bound(msg string) string {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= maxMessageRunes {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:maxMessageRunes-3]) + "..."
}
