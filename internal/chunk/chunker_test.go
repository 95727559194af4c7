package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerr "github.com/cognidex/cognidex/internal/errors"
)

func newChunker(t *testing.T, maxTokens, overlap int) *TokenChunker {
	t.Helper()
	c, err := NewTokenChunker(DefaultEncoding, maxTokens, overlap)
	require.NoError(t, err)
	return c
}

func TestNewTokenChunker_RejectsBadWindows(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		overlap int
	}{
		{"overlap equals max", 10, 10},
		{"overlap above max", 10, 11},
		{"zero max", 0, 0},
		{"negative overlap", 10, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenChunker(DefaultEncoding, tt.max, tt.overlap)
			require.Error(t, err)
			assert.Equal(t, cerr.ErrCodeConfigInvalid, cerr.GetCode(err))
		})
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	c := newChunker(t, 10, 2)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c := newChunker(t, 50, 10)

	text := "the quick brown fox jumps over the lazy dog"
	chunks := c.Split(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplit_LongTextOverlappingWindows(t *testing.T) {
	c := newChunker(t, 10, 3)

	// Single-token words make window arithmetic predictable.
	words := make([]string, 40)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	// Every window except possibly the last carries maxTokens tokens.
	for i, ch := range chunks[:len(chunks)-1] {
		assert.Equal(t, c.MaxTokens(), c.CountTokens(ch), "chunk %d", i)
	}
	// No empty trailing chunk.
	assert.NotEmpty(t, strings.TrimSpace(chunks[len(chunks)-1]))

	// Consecutive windows share the overlap region.
	assert.LessOrEqual(t, c.CountTokens(chunks[len(chunks)-1]), c.MaxTokens())
}

func TestSplit_Deterministic(t *testing.T) {
	c := newChunker(t, 8, 2)

	text := strings.Repeat("some repeating content with several words in it ", 20)
	first := c.Split(text)
	second := c.Split(text)

	assert.Equal(t, first, second)
}

func TestSplit_ReconstructsWithoutLoss(t *testing.T) {
	c := newChunker(t, 10, 0)

	text := strings.Repeat("alpha beta gamma delta ", 15)
	chunks := c.Split(text)

	// With zero overlap the windows partition the token stream exactly.
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestCountTokens(t *testing.T) {
	c := newChunker(t, 10, 2)
	assert.Equal(t, 0, c.CountTokens(""))
	assert.Greater(t, c.CountTokens("hello world"), 0)
}
