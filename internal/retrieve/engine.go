// Package retrieve ranks a tenant's chunks against a query by combining
// vector similarity with freshness and deprecation signals.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cognidex/cognidex/internal/embed"
	"github.com/cognidex/cognidex/internal/errors"
	"github.com/cognidex/cognidex/internal/store"
)

// ChunkReader resolves vector ids back to chunk rows within a tenant.
type ChunkReader interface {
	GetChunks(ctx context.Context, tenantID int64, chunkIDs []int64) ([]*store.DocumentChunk, error)
}

// VectorSearcher runs nearest-neighbor queries against a tenant's index.
type VectorSearcher interface {
	Search(tenantID int64, query []float32, k int) ([]store.Hit, error)
}

// Options are the per-query ranking parameters.
type Options struct {
	// TopK is the number of results to return. Must be positive.
	TopK int

	// FreshnessWeight scales the age term of the freshness multiplier.
	FreshnessWeight float64

	// ExcludeDeprecated drops deprecated chunks entirely instead of
	// demoting them.
	ExcludeDeprecated bool
}

// ScoredChunk is one ranked result.
type ScoredChunk struct {
	Chunk      *store.DocumentChunk
	Similarity float64
	Freshness  float64
	FinalScore float64
}

// Engine executes the retrieval pipeline: embed the query, over-fetch
// candidates from the tenant index, filter, score and rank.
type Engine struct {
	chunks   ChunkReader
	index    VectorSearcher
	embedder embed.Embedder
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine wires a retrieval engine over the given stores and embedder.
func NewEngine(chunks ChunkReader, index VectorSearcher, embedder embed.Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		chunks:   chunks,
		index:    index,
		embedder: embedder,
		logger:   logger,
		now:      time.Now,
	}
}

// Retrieve returns up to opts.TopK chunks ranked most relevant first.
//
// An unreachable or timed-out embedding model degrades to an empty result:
// retrieval sits on the synchronous query path, and "no information found"
// beats failing the whole request. Every other error propagates.
func (e *Engine) Retrieve(ctx context.Context, tenantID int64, query string, opts Options) ([]ScoredChunk, error) {
	if opts.TopK <= 0 {
		return nil, errors.ConfigError(fmt.Sprintf("top_k must be positive, got %d", opts.TopK), nil)
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.ValidationError("query text is empty", nil)
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if errors.GetCategory(err) == errors.CategoryModel {
			e.logger.Warn("embedding unavailable, degrading to empty result",
				"tenant_id", tenantID, "error", err)
			return nil, nil
		}
		return nil, err
	}

	// Over-fetch so the deprecation filter and stale index entries cannot
	// starve the final result below top_k.
	hits, err := e.index.Search(tenantID, queryVec, opts.TopK*overfetchFactor)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		if h.ID == store.NoMatchID {
			continue
		}
		ids = append(ids, h.ID)
	}
	rows, err := e.chunks.GetChunks(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*store.DocumentChunk, len(rows))
	for _, c := range rows {
		byID[c.ID] = c
	}

	now := e.now()
	scored := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		chunk, ok := byID[h.ID]
		if !ok {
			// Stale index entry; the chunk row is the source of truth.
			continue
		}
		if chunk.IsDeprecated && opts.ExcludeDeprecated {
			continue
		}

		sim := Similarity(float64(h.Distance))
		if chunk.IsDeprecated {
			sim *= deprecatedPenalty
		}
		fresh := Freshness(chunk.LastUpdatedAt, now, opts.FreshnessWeight)

		scored = append(scored, ScoredChunk{
			Chunk:      chunk,
			Similarity: sim,
			Freshness:  fresh,
			FinalScore: sim * fresh,
		})
	}

	// Stable keeps ties in candidate order, so equal scores rank
	// deterministically.
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].FinalScore > scored[b].FinalScore
	})
	if opts.TopK < len(scored) {
		scored = scored[:opts.TopK]
	}
	return scored, nil
}
