package chunk

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/model"
)

func TestSplitWords(t *testing.T) {
	got := slices.Collect(Split("a b c d e", 2, Words))
	want := []string{"a b", "c d", "e"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Split words mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitWordsReconstructsTokens(t *testing.T) {
	text := "  The quick\tbrown fox\n\njumps over   the lazy dog  "
	tokens := strings.Fields(text)

	for size := 1; size <= len(tokens)+1; size++ {
		chunks := slices.Collect(Split(text, size, Words))

		var rebuilt []string
		for i, c := range chunks {
			words := strings.Fields(c)
			if i < len(chunks)-1 {
				assert.Len(t, words, size, "only the last chunk may be short (size %d)", size)
			} else {
				assert.LessOrEqual(t, len(words), size)
			}
			rebuilt = append(rebuilt, words...)
		}
		assert.Equal(t, strings.Join(tokens, " "), strings.Join(chunks, " "), "size %d", size)
		assert.Equal(t, tokens, rebuilt, "size %d", size)
	}
}

func TestSplitEmptyYieldsNothing(t *testing.T) {
	for _, mode := range []Mode{Words, Sentences, Paragraphs} {
		assert.Empty(t, slices.Collect(Split("", 3, mode)), mode.String())
		assert.Empty(t, slices.Collect(Split(" \n\t\n ", 3, mode)), mode.String())
	}
}

func TestSplitNonPositiveSizeYieldsNothing(t *testing.T) {
	assert.Empty(t, slices.Collect(Split("a b c", 0, Words)))
	assert.Empty(t, slices.Collect(Split("One. Two.", -1, Sentences)))
}

func TestSplitParagraphsIgnoresSize(t *testing.T) {
	text := "First paragraph\nstill first.\n\nSecond paragraph.\r\n\r\nThird.\n  \n\n\nFourth."
	want := []string{"First paragraph\nstill first.", "Second paragraph.", "Third.", "Fourth."}

	for _, size := range []int{-5, 0, 1, 2, 500} {
		got := slices.Collect(Split(text, size, Paragraphs))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("size %d (-want +got):\n%s", size, diff)
		}
	}
}

func TestSplitParagraphsKeepsIndentation(t *testing.T) {
	text := "    indented first\nline two  \n\n\tsecond para\n\n \t \n"
	got := slices.Collect(Split(text, 1, Paragraphs))
	want := []string{"    indented first\nline two  ", "\tsecond para"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Split paragraphs mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitSentences(t *testing.T) {
	text := "The cat sat on the mat. The dog ran into the yard. Birds were singing loudly. It was a sunny morning."
	got := slices.Collect(Split(text, 2, Sentences))
	want := []string{
		"The cat sat on the mat. The dog ran into the yard.",
		"Birds were singing loudly. It was a sunny morning.",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Split sentences mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitIsRestartable(t *testing.T) {
	seq := Split("one two three four five", 2, Words)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
}

func TestSplitStopsEarly(t *testing.T) {
	var seen []string
	for c := range Split("a b c d e f", 1, Words) {
		seen = append(seen, c)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestChunksIndexed(t *testing.T) {
	got := Chunks("a b c", 2, Words)
	want := []model.Chunk{{Index: 0, Text: "a b"}, {Index: 1, Text: "c"}}
	assert.Equal(t, want, got)
	assert.Equal(t, 2, Count("a b c", 2, Words))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"words", Words},
		{"Sentences", Sentences},
		{" PARAGRAPHS ", Paragraphs},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseMode("lines")
	assert.ErrorIs(t, err, fault.ErrValidation)
	assert.Contains(t, err.Error(), "words, sentences, paragraphs")
}

func TestModeTextRoundTrip(t *testing.T) {
	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("paragraphs")))
	assert.Equal(t, Paragraphs, m)

	b, err := Sentences.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "sentences", string(b))

	_, err = Mode(42).MarshalText()
	assert.Error(t, err)
}
