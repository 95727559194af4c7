package answer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognidex/cognidex/internal/errors"
	"github.com/cognidex/cognidex/internal/retrieve"
	"github.com/cognidex/cognidex/internal/store"
)

type stubGenerator struct {
	answer    string
	err       error
	gotPrompt string
	calls     int
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.gotPrompt = prompt
	return s.answer, s.err
}

func (s *stubGenerator) Available(ctx context.Context) bool { return s.err == nil }
func (s *stubGenerator) Close() error                       { return nil }

func scoredChunks(texts ...string) []retrieve.ScoredChunk {
	out := make([]retrieve.ScoredChunk, len(texts))
	for i, text := range texts {
		out[i] = retrieve.ScoredChunk{Chunk: &store.DocumentChunk{ID: int64(i + 1), ChunkText: text}}
	}
	return out
}

func newTestComposer(gen *stubGenerator) *Composer {
	return NewComposer(gen, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBuildPrompt_JoinsChunksInRankedOrder(t *testing.T) {
	prompt := BuildPrompt("what is X?", scoredChunks("first chunk", "second chunk"))

	assert.Contains(t, prompt, "first chunk\n\nsecond chunk")
	assert.Contains(t, prompt, "Question: what is X?")
	assert.True(t, strings.HasPrefix(prompt, "Based on the following context"))
	assert.True(t, strings.HasSuffix(prompt, "Answer:"))
	// Ranked order preserved
	assert.Less(t, strings.Index(prompt, "first chunk"), strings.Index(prompt, "second chunk"))
}

func TestCompose_EmptyChunksSkipsGenerator(t *testing.T) {
	gen := &stubGenerator{answer: "should not be used"}
	c := newTestComposer(gen)

	got, err := c.Compose(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Equal(t, NoInformationFound, got)
	assert.Zero(t, gen.calls)
}

func TestCompose_ReturnsGeneratedAnswer(t *testing.T) {
	gen := &stubGenerator{answer: "X is a thing."}
	c := newTestComposer(gen)

	got, err := c.Compose(context.Background(), "what is X?", scoredChunks("X is a thing used for Y."))
	require.NoError(t, err)
	assert.Equal(t, "X is a thing.", got)
	assert.Contains(t, gen.gotPrompt, "X is a thing used for Y.")
}

func TestCompose_ModelFailureFallsBackToExcerpt(t *testing.T) {
	gen := &stubGenerator{err: errors.New(errors.ErrCodeGenerationFailed, "backend down", nil)}
	c := newTestComposer(gen)

	got, err := c.Compose(context.Background(), "query", scoredChunks("top ranked text", "other"))
	require.NoError(t, err)
	assert.Equal(t, "Based on the provided context: top ranked text", got)
}

func TestCompose_ExcerptTruncatesLongChunks(t *testing.T) {
	gen := &stubGenerator{err: errors.ModelUnavailable("down", nil)}
	c := newTestComposer(gen)

	long := strings.Repeat("a", 500)
	got, err := c.Compose(context.Background(), "query", scoredChunks(long))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, got, len("Based on the provided context: ")+excerptLimit+3)
}

func TestCompose_ExcerptKeepsRuneBoundaries(t *testing.T) {
	gen := &stubGenerator{err: errors.ModelUnavailable("down", nil)}
	c := newTestComposer(gen)

	// 3-byte runes that do not divide the truncation limit evenly
	long := strings.Repeat("世", 200)
	got, err := c.Compose(context.Background(), "query", scoredChunks(long))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), len("Based on the provided context: ")+excerptLimit+3)
}

func TestCompose_NonModelErrorPropagates(t *testing.T) {
	gen := &stubGenerator{err: errors.InternalError("boom", nil)}
	c := newTestComposer(gen)

	_, err := c.Compose(context.Background(), "query", scoredChunks("text"))
	require.Error(t, err)
}

func TestCompose_BlankGenerationFallsBack(t *testing.T) {
	gen := &stubGenerator{answer: "   "}
	c := newTestComposer(gen)

	got, err := c.Compose(context.Background(), "query", scoredChunks("text"))
	require.NoError(t, err)
	assert.Equal(t, "Based on the provided context: text", got)
}
