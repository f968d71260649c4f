// Package fault defines the error categories shared across packages.
//
// Information Hiding:
// - Sentinel values are the only public contract; callers test with errors.Is
// - Detection of local resource exhaustion (disk full, quota) is centralized here

package fault

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrConfiguration marks a missing or invalid credential or setting.
	// Surfaced before any chunk work begins; never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation marks malformed caller input such as a non-positive
	// chunk size or an unsupported chunk mode.
	ErrValidation = errors.New("validation error")

	// ErrLocalResource marks exhaustion of a local resource (disk space,
	// quota) while writing logs or cache entries.
	ErrLocalResource = errors.New("local resource error")
)

// Configurationf returns an error wrapping ErrConfiguration.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// LocalResource wraps err so that errors.Is(err, ErrLocalResource) holds.
// Returns nil for a nil error and err unchanged if it is already marked.
func LocalResource(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrLocalResource) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrLocalResource, err)
}

// IsLocalResource reports whether err is, or wraps, a local resource
// exhaustion: either an error already marked with ErrLocalResource or a raw
// ENOSPC/EDQUOT from the operating system.
func IsLocalResource(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLocalResource) {
		return true
	}
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT)
}

// MarkLocalResource wraps err with ErrLocalResource when it is a disk/quota
// exhaustion, and returns it unchanged otherwise.
func MarkLocalResource(err error) error {
	if err != nil && IsLocalResource(err) {
		return LocalResource(err)
	}
	return err
}
