// Package model provides domain types shared across packages.
package model

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// FailureMarker is substituted for a chunk's output when it could not be
// processed (retries exhausted, terminal provider error, cache write failure).
const FailureMarker = "[Failed to process this chunk.]"

// Chunk is one ordered slice of a file's text, as emitted by the chunker.
type Chunk struct {
	Index int
	Text  string
}

// Request fully determines a provider call and therefore its cache key.
// Two requests are the same key iff every field is byte-equal.
type Request struct {
	Provider string
	Model    string
	Prompt   string
	Chunk    string
}

// Combined returns the text sent to the provider: the prompt followed
// verbatim by the chunk.
func (r Request) Combined() string {
	return r.Prompt + r.Chunk
}

// Key returns an exact, injective encoding of the request: each field is
// length-prefixed so ("ab","c") and ("a","bc") differ. Equal keys imply
// equal requests.
func (r Request) Key() string {
	var b strings.Builder
	var lenBuf [8]byte
	for _, field := range []string{r.Provider, r.Model, r.Prompt, r.Chunk} {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(field)))
		b.Write(lenBuf[:])
		b.WriteString(field)
	}
	return b.String()
}

// Fingerprint returns a stable 16-character hex digest of Key.
// The digest is a lookup key only; stores compare the full tuple.
func (r Request) Fingerprint() string {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64String(r.Key()))
	return hex.EncodeToString(sum[:])
}

// Result is the outcome of resolving one chunk: either generated text or
// the terminal failure marker.
type Result struct {
	Text   string
	Failed bool
}

// Success creates a successful result.
func Success(text string) Result {
	return Result{Text: text}
}

// Failure creates the terminal failure result.
func Failure() Result {
	return Result{Text: FailureMarker, Failed: true}
}
