// Package chunk splits text into ordered chunks by words, sentences or paragraphs.
//
// Information Hiding:
// - Sentence segmentation algorithm (Punkt, English training data) hidden
// - Paragraph boundary detection hidden
// - Sequences are lazy and hold no state between invocations

package chunk

import (
	"fmt"
	"iter"
	"regexp"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"

	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/model"
)

// Mode selects how text is grouped into chunks.
type Mode int

const (
	// Words groups whitespace-separated tokens.
	Words Mode = iota
	// Sentences groups sentences.
	Sentences
	// Paragraphs emits one blank-line-delimited paragraph per chunk.
	Paragraphs
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case Words:
		return "words"
	case Sentences:
		return "sentences"
	case Paragraphs:
		return "paragraphs"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "words", "word":
		return Words, nil
	case "sentences", "sentence":
		return Sentences, nil
	case "paragraphs", "paragraph":
		return Paragraphs, nil
	default:
		return 0, fault.Validationf("unsupported chunk mode %q (one of %s)", s, strings.Join(Modes(), ", "))
	}
}

// Modes returns the supported mode names.
func Modes() []string {
	return []string{Words.String(), Sentences.String(), Paragraphs.String()}
}

// Valid reports whether m is a supported mode.
func (m Mode) Valid() bool {
	return m == Words || m == Sentences || m == Paragraphs
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid chunk mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so modes can be read
// from environment variables and YAML.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Split returns the chunks of text as a lazy sequence.
//
// Empty or whitespace-only text yields nothing. For Words and Sentences a
// size below 1 yields nothing; callers validate size before splitting.
// Paragraphs ignores size. Ranging the sequence again recomputes it.
func Split(text string, size int, mode Mode) iter.Seq[string] {
	return func(yield func(string) bool) {
		switch mode {
		case Words:
			group(strings.Fields(text), size, yield)
		case Sentences:
			group(splitSentences(text), size, yield)
		case Paragraphs:
			for _, p := range splitParagraphs(text) {
				if !yield(p) {
					return
				}
			}
		}
	}
}

// Chunks materializes Split into indexed chunks.
func Chunks(text string, size int, mode Mode) []model.Chunk {
	var chunks []model.Chunk
	for s := range Split(text, size, mode) {
		chunks = append(chunks, model.Chunk{Index: len(chunks), Text: s})
	}
	return chunks
}

// Count returns the number of chunks Split would yield.
func Count(text string, size int, mode Mode) int {
	n := 0
	for range Split(text, size, mode) {
		n++
	}
	return n
}

// group yields runs of size items joined with a single space.
func group(items []string, size int, yield func(string) bool) {
	if size < 1 {
		return
	}
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		if !yield(strings.Join(items[i:end], " ")) {
			return
		}
	}
}

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// splitParagraphs splits on blank lines. Surrounding newlines are removed
// but indentation is kept; whitespace-only paragraphs are dropped.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range blankLine.Split(text, -1) {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, strings.Trim(p, "\n"))
	}
	return out
}

// loadTokenizer builds the Punkt tokenizer once; its training data is large.
var loadTokenizer = sync.OnceValues(func() (*sentences.DefaultSentenceTokenizer, error) {
	return english.NewSentenceTokenizer(nil)
})

var sentenceEnd = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)

// splitSentences segments text into trimmed, non-empty sentences.
func splitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokenizer, err := loadTokenizer()
	if err != nil {
		return fallbackSentences(text)
	}

	var out []string
	for _, s := range tokenizer.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// fallbackSentences splits on terminal punctuation when the tokenizer's
// training data cannot be loaded.
func fallbackSentences(text string) []string {
	var out []string
	for _, s := range sentenceEnd.FindAllString(text, -1) {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
