// Package diag provides the error/telemetry sink used across the pipeline.
//
// Information Hiding:
// - Log backend (zap cores, rotating error log file) hidden behind Reporter
// - User-facing message table hidden behind UserMessage
// - Reporting never fails from the caller's point of view

package diag

// Classification is a coarse error category shown to operators.
type Classification string

const (
	FileNotFound    Classification = "FileNotFound"
	APIError        Classification = "APIError"
	InvalidInput    Classification = "InvalidInput"
	ProcessingError Classification = "ProcessingError"
	StorageError    Classification = "StorageError"
	UnknownError    Classification = "UnknownError"
)

// Reporter accepts classified diagnostics. Implementations must not block
// for long and must never panic; callers do not depend on delivery.
type Reporter interface {
	Report(c Classification, message string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(c Classification, message string)

// Report calls f(c, message).
func (f ReporterFunc) Report(c Classification, message string) {
	f(c, message)
}

type nopReporter struct{}

func (nopReporter) Report(Classification, string) {}

// Nop returns a Reporter that discards everything.
func Nop() Reporter {
	return nopReporter{}
}

// OrNop returns r, or a no-op reporter when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop()
	}
	return r
}

// UserMessage is the operator-facing text for a classification.
type UserMessage struct {
	Message    string
	Suggestion string
}

// String joins message and suggestion.
func (m UserMessage) String() string {
	return m.Message + " " + m.Suggestion
}

var userMessages = map[Classification]UserMessage{
	FileNotFound: {
		Message:    "The file you are trying to access was not found.",
		Suggestion: "Please ensure you have provided the correct file.",
	},
	APIError: {
		Message:    "We're experiencing issues connecting to the AI service.",
		Suggestion: "Please check your internet connection and try again. If the problem persists, it might be a temporary service outage.",
	},
	InvalidInput: {
		Message:    "The input provided is invalid.",
		Suggestion: "Please verify that your file is in the correct format and try again.",
	},
	ProcessingError: {
		Message:    "An error occurred while processing your request.",
		Suggestion: "Please try again. If the issue continues, consider contacting support.",
	},
	StorageError: {
		Message:    "Insufficient storage space detected.",
		Suggestion: "Please free up some disk space and try again.",
	},
	UnknownError: {
		Message:    "An unexpected error occurred.",
		Suggestion: "Please try again or reach out to support for assistance.",
	},
}

// MessageFor returns the user-facing message for c, falling back to the
// UnknownError text for unrecognized classifications.
func MessageFor(c Classification) UserMessage {
	if m, ok := userMessages[c]; ok {
		return m
	}
	return userMessages[UnknownError]
}
