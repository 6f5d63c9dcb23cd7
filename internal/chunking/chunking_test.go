package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	chunks, err := Split("", Config{MaxChars: 100, OverlapChars: 10})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitShortInputSingleChunk(t *testing.T) {
	text := "short document"
	chunks, err := Split(text, Config{MaxChars: 100, OverlapChars: 10})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{Sequence: 0, Text: text, Start: 0, End: len([]rune(text))}, chunks[0])
}

func TestSplitExactBoundarySingleChunk(t *testing.T) {
	text := strings.Repeat("a", 50)
	chunks, err := Split(text, Config{MaxChars: 50, OverlapChars: 5})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	text := "Cats are mammals. Dogs are mammals too."
	chunks, err := Split(text, Config{MaxChars: 20, OverlapChars: 5})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	// The first cut lands after the first sentence, not mid-word at rune 20.
	assert.Equal(t, "Cats are mammals. ", chunks[0].Text)
	assert.Equal(t, 18, chunks[0].End)
	assert.Equal(t, 13, chunks[1].Start)
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph, somewhat longer than the first one."
	chunks, err := Split(text, Config{MaxChars: 40, OverlapChars: 8})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "First paragraph here.\n\n", chunks[0].Text)
}

func TestSplitFallsBackToWhitespace(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta"
	chunks, err := Split(text, Config{MaxChars: 20, OverlapChars: 4})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c.Text, " "), "chunk %d should end on whitespace: %q", c.Sequence, c.Text)
	}
}

func TestSplitHardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 95)
	chunks, err := Split(text, Config{MaxChars: 40, OverlapChars: 10})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, 40, chunks[0].End)
	assert.Equal(t, 30, chunks[1].Start)
}

func TestSplitInvariants(t *testing.T) {
	texts := []string{
		"Cats are mammals. Dogs are mammals too.",
		strings.Repeat("lorem ipsum dolor sit amet. ", 80),
		"para one\n\npara two\n\n" + strings.Repeat("word ", 300),
		strings.Repeat("nospace", 200),
		"unicode: héllo wörld, 東京 観光 ガイド. " + strings.Repeat("mixed 文字 content. ", 60),
	}
	cfg := Config{MaxChars: 120, OverlapChars: 20}

	for _, text := range texts {
		chunks, err := Split(text, cfg)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		runes := []rune(text)
		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, len(runes), chunks[len(chunks)-1].End)
		for i, c := range chunks {
			assert.Equal(t, i, c.Sequence)
			assert.LessOrEqual(t, c.End-c.Start, cfg.MaxChars)
			assert.Equal(t, string(runes[c.Start:c.End]), c.Text)
			if i > 0 {
				assert.Equal(t, chunks[i-1].End-cfg.OverlapChars, c.Start)
				assert.Greater(t, c.Start, chunks[i-1].Start, "chunking must make forward progress")
			}
		}

		rebuilt, err := Reassemble(chunks, cfg.OverlapChars)
		require.NoError(t, err)
		assert.Equal(t, text, rebuilt)
	}
}

func TestSplitRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative max", Config{MaxChars: -1}},
		{"negative overlap", Config{MaxChars: 100, OverlapChars: -1}},
		{"overlap equals max", Config{MaxChars: 50, OverlapChars: 50}},
		{"overlap exceeds max", Config{MaxChars: 50, OverlapChars: 60}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split("some text", tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, 1000, cfg.MaxChars)
	assert.Equal(t, 100, cfg.OverlapChars)

	small := Config{MaxChars: 50}
	small.ApplyDefaults()
	assert.Zero(t, small.OverlapChars)
}

func TestReassembleDetectsGaps(t *testing.T) {
	chunks := []Chunk{
		{Sequence: 0, Text: "abcde", Start: 0, End: 5},
		{Sequence: 1, Text: "xyz", Start: 9, End: 12},
	}
	_, err := Reassemble(chunks, 2)
	assert.Error(t, err)
}
