package retrieve

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognidex/cognidex/internal/errors"
	"github.com/cognidex/cognidex/internal/store"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, s.err
}

func (s *stubEmbedder) Dimensions() int                    { return len(s.vec) }
func (s *stubEmbedder) ModelName() string                  { return "stub" }
func (s *stubEmbedder) Available(ctx context.Context) bool { return s.err == nil }
func (s *stubEmbedder) Close() error                       { return nil }

type stubSearcher struct {
	hits []store.Hit
	gotK int
	err  error
}

func (s *stubSearcher) Search(tenantID int64, query []float32, k int) ([]store.Hit, error) {
	s.gotK = k
	return s.hits, s.err
}

type stubReader struct {
	chunks map[int64]*store.DocumentChunk
}

func (s *stubReader) GetChunks(ctx context.Context, tenantID int64, ids []int64) ([]*store.DocumentChunk, error) {
	var out []*store.DocumentChunk
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
}

func daysAgo(n int) *time.Time {
	t := fixedNow().AddDate(0, 0, -n)
	return &t
}

func newTestEngine(searcher *stubSearcher, reader *stubReader) *Engine {
	e := NewEngine(reader, searcher, &stubEmbedder{vec: []float32{1, 0}},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = fixedNow
	return e
}

func chunkRow(id int64, deprecated bool, lastUpdated *time.Time) *store.DocumentChunk {
	return &store.DocumentChunk{
		ID:            id,
		TenantID:      1,
		ChunkText:     "chunk",
		IsDeprecated:  deprecated,
		LastUpdatedAt: lastUpdated,
	}
}

func TestRetrieve_RanksByDistance(t *testing.T) {
	searcher := &stubSearcher{hits: []store.Hit{
		{ID: 1, Distance: 0.5},
		{ID: 2, Distance: 2.0},
	}}
	reader := &stubReader{chunks: map[int64]*store.DocumentChunk{
		1: chunkRow(1, false, nil),
		2: chunkRow(2, false, nil),
	}}
	e := newTestEngine(searcher, reader)

	got, err := e.Retrieve(context.Background(), 1, "query", Options{TopK: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Chunk.ID)
	assert.Equal(t, int64(2), got[1].Chunk.ID)
	assert.InDelta(t, 1.0/1.5, got[0].Similarity, 1e-9)
	assert.Equal(t, 1.0, got[0].Freshness)
	assert.Greater(t, got[0].FinalScore, got[1].FinalScore)
}

func TestRetrieve_OverfetchesTwiceTopK(t *testing.T) {
	searcher := &stubSearcher{}
	e := newTestEngine(searcher, &stubReader{})

	_, err := e.Retrieve(context.Background(), 1, "query", Options{TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, 10, searcher.gotK)
}

func TestRetrieve_SkipsStaleAndSentinelHits(t *testing.T) {
	searcher := &stubSearcher{hits: []store.Hit{
		{ID: store.NoMatchID, Distance: 0},
		{ID: 42, Distance: 0.1}, // no chunk row
		{ID: 7, Distance: 1.0},
	}}
	reader := &stubReader{chunks: map[int64]*store.DocumentChunk{
		7: chunkRow(7, false, nil),
	}}
	e := newTestEngine(searcher, reader)

	got, err := e.Retrieve(context.Background(), 1, "query", Options{TopK: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].Chunk.ID)
}

func TestRetrieve_ExcludeDeprecated(t *testing.T) {
	searcher := &stubSearcher{hits: []store.Hit{
		{ID: 1, Distance: 0.1},
		{ID: 2, Distance: 0.2},
	}}
	reader := &stubReader{chunks: map[int64]*store.DocumentChunk{
		1: chunkRow(1, true, nil),
		2: chunkRow(2, false, nil),
	}}
	e := newTestEngine(searcher, reader)

	got, err := e.Retrieve(context.Background(), 1, "query", Options{TopK: 2, ExcludeDeprecated: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Chunk.ID)
}

func TestRetrieve_DeprecatedPenaltyDemotes(t *testing.T) {
	// The deprecated chunk is closer, but the 0.1x penalty drops it below
	// the clean one.
	searcher := &stubSearcher{hits: []store.Hit{
		{ID: 1, Distance: 0.1},
		{ID: 2, Distance: 0.5},
	}}
	reader := &stubReader{chunks: map[int64]*store.DocumentChunk{
		1: chunkRow(1, true, nil),
		2: chunkRow(2, false, nil),
	}}
	e := newTestEngine(searcher, reader)

	got, err := e.Retrieve(context.Background(), 1, "query", Options{TopK: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Chunk.ID)
	assert.Equal(t, int64(1), got[1].Chunk.ID)
	assert.InDelta(t, 0.1*(1.0/1.1), got[1].Similarity, 1e-9)
}

func TestRetrieve_FreshnessWeightFavorsOlderContent(t *testing.T) {
	// Same distance, one chunk a year older. Positive weight must rank the
	// older one higher.
	searcher := &stubSearcher{hits: []store.Hit{
		{ID: 1, Distance: 1.0},
		{ID: 2, Distance: 1.0},
	}}
	reader := &stubReader{chunks: map[int64]*store.DocumentChunk{
		1: chunkRow(1, false, daysAgo(10)),
		2: chunkRow(2, false, daysAgo(375)),
	}}
	e := newTestEngine(searcher, reader)

	got, err := e.Retrieve(context.Background(), 1, "query", Options{TopK: 2, FreshnessWeight: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Chunk.ID)
	assert.Greater(t, got[0].Freshness, got[1].Freshness)
}

func TestRetrieve_StableTieOrder(t *testing.T) {
	searcher := &stubSearcher{hits: []store.Hit{
		{ID: 3, Distance: 1.0},
		{ID: 1, Distance: 1.0},
		{ID: 2, Distance: 1.0},
	}}
	reader := &stubReader{chunks: map[int64]*store.DocumentChunk{
		1: chunkRow(1, false, nil),
		2: chunkRow(2, false, nil),
		3: chunkRow(3, false, nil),
	}}
	e := newTestEngine(searcher, reader)

	got, err := e.Retrieve(context.Background(), 1, "query", Options{TopK: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Ties keep candidate order from the index
	assert.Equal(t, int64(3), got[0].Chunk.ID)
	assert.Equal(t, int64(1), got[1].Chunk.ID)
	assert.Equal(t, int64(2), got[2].Chunk.ID)
}

func TestRetrieve_InvalidTopK(t *testing.T) {
	e := newTestEngine(&stubSearcher{}, &stubReader{})

	_, err := e.Retrieve(context.Background(), 1, "query", Options{TopK: 0})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
	assert.True(t, errors.IsFatal(err))
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	e := newTestEngine(&stubSearcher{}, &stubReader{})

	_, err := e.Retrieve(context.Background(), 1, "   ", Options{TopK: 1})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestRetrieve_ModelUnavailableDegradesToEmpty(t *testing.T) {
	reader := &stubReader{}
	e := NewEngine(reader, &stubSearcher{},
		&stubEmbedder{err: errors.ModelUnavailable("backend down", nil)},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := e.Retrieve(context.Background(), 1, "query", Options{TopK: 3})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFreshness(t *testing.T) {
	now := fixedNow()

	tests := []struct {
		name        string
		lastUpdated *time.Time
		weight      float64
		want        float64
	}{
		{"nil timestamp is neutral", nil, 0.5, 1.0},
		{"zero weight is neutral", daysAgo(365), 0, 1.0},
		{"one year at weight 0.1", daysAgo(365), 0.1, 1.1},
		{"negative weight floors at 0.1", daysAgo(3650), -0.5, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Freshness(tt.lastUpdated, now, tt.weight), 1e-9)
		})
	}
}

func TestSimilarity(t *testing.T) {
	// Distance zero is floored by epsilon, not infinite
	assert.InDelta(t, 1.0/1.001, Similarity(0), 1e-9)
	assert.InDelta(t, 0.5, Similarity(1.0), 1e-9)
	assert.Greater(t, Similarity(0.5), Similarity(2.0))
}
