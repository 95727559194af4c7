// Package store provides the two persistence layers of the pipeline: the
// SQLite metadata store (source of truth for chunk text and lifecycle) and
// the per-tenant on-disk vector index.
//
// The core consistency contract lives at this boundary: every chunk row with
// a confirmed vector id has a matching index entry, and no index entry
// exists without its chunk row. Writes are ordered so a crash can only
// leave chunks awaiting vectors (detectable, repairable), never orphaned
// vectors.
package store

import (
	"context"
	"fmt"
	"time"
)

// SourceType identifies the origin of ingested content.
type SourceType string

const (
	SourceTypeAPI             SourceType = "api"
	SourceTypeManualUpload    SourceType = "manual_upload"
	SourceTypeDirectoryIngest SourceType = "directory_ingestion"
)

// Valid reports whether the source type is one of the known origins.
func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeAPI, SourceTypeManualUpload, SourceTypeDirectoryIngest:
		return true
	}
	return false
}

// KnowledgeSource identifies an external origin of content for a tenant.
// One row per (tenant, source_id); created lazily on first ingestion.
type KnowledgeSource struct {
	ID         int64
	TenantID   int64
	SourceType SourceType
	SourceID   string
	Name       string
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// Document is one ingested version of a source's content.
// Uniquely identified by (tenant_id, source_id, version); re-ingesting the
// same triple is a no-op.
type Document struct {
	ID                int64
	TenantID          int64
	KnowledgeSourceID int64
	SourceID          string
	Version           int
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// DocumentChunk is one embedded unit of text.
// VectorID is nil until the chunk's vector is confirmed in the tenant index;
// a confirmed chunk has VectorID equal to its own primary key.
type DocumentChunk struct {
	ID            int64
	TenantID      int64
	DocumentID    int64
	ChunkIndex    int
	ChunkText     string
	SourceID      string
	Version       int
	VectorID      *int64
	IsDeprecated  bool
	LastUpdatedAt *time.Time
	CreatedAt     time.Time
}

// Confirmed reports whether the chunk's vector has been confirmed in the
// tenant index.
func (c *DocumentChunk) Confirmed() bool {
	return c.VectorID != nil
}

// TenantStats summarizes a tenant's stored state for the stats surface.
type TenantStats struct {
	TenantID        int64
	Documents       int
	Chunks          int
	ConfirmedChunks int
	IndexEntries    int
}

// ConsistencyDelta is the number of chunks confirmed in metadata but absent
// from the index count. Zero means the two stores agree.
func (s TenantStats) ConsistencyDelta() int {
	return s.ConfirmedChunks - s.IndexEntries
}

// MetadataStore persists knowledge sources, documents and chunks in SQLite.
// All lookups are tenant-scoped; no operation crosses tenants.
type MetadataStore interface {
	// Source operations
	GetOrCreateSource(ctx context.Context, tenantID int64, sourceType SourceType, sourceID, name string) (*KnowledgeSource, error)

	// Document operations
	GetDocument(ctx context.Context, tenantID int64, sourceID string, version int) (*Document, error)
	CreateDocument(ctx context.Context, doc *Document) error

	// Chunk operations
	CreateChunks(ctx context.Context, chunks []*DocumentChunk) error // transactional: all or none
	GetChunk(ctx context.Context, tenantID, chunkID int64) (*DocumentChunk, error)
	GetChunks(ctx context.Context, tenantID int64, chunkIDs []int64) ([]*DocumentChunk, error)
	ChunksByDocument(ctx context.Context, documentID int64) ([]*DocumentChunk, error)
	UnconfirmedChunks(ctx context.Context, documentID int64) ([]*DocumentChunk, error)
	ConfirmVectors(ctx context.Context, chunkIDs []int64) error
	DeleteChunksByDocument(ctx context.Context, documentID int64) error
	SetChunkDeprecated(ctx context.Context, tenantID, chunkID int64, deprecated bool) error
	SetDocumentDeprecated(ctx context.Context, tenantID, documentID int64, deprecated bool) error

	// Stats operations
	Tenants(ctx context.Context) ([]int64, error)
	CountDocuments(ctx context.Context, tenantID int64) (int, error)
	CountChunks(ctx context.Context, tenantID int64) (confirmed, total int, err error)

	// Lifecycle
	Close() error
}

// Hit is a single vector search result.
// Distance is squared Euclidean (L2); lower is more similar. An ID of -1
// denotes "no match" and must be filtered by the caller, never dereferenced.
type Hit struct {
	ID       int64
	Distance float32
}

// NoMatchID is the sentinel id for an empty result slot.
const NoMatchID int64 = -1

// TenantIndex maps dense 64-bit vector ids to embeddings of a fixed
// dimension, supporting batch add and k-nearest-neighbor search.
type TenantIndex interface {
	// Add appends (vector, id) pairs. Ids must be unique within the index;
	// that is the caller's responsibility (chunk primary keys satisfy it).
	Add(vectors [][]float32, ids []int64) error

	// Search returns up to k hits ordered by ascending distance.
	// Fewer than k entries returns them all; an empty index returns nothing.
	Search(query []float32, k int) ([]Hit, error)

	// Count returns the number of indexed vectors.
	Count() int

	// Contains reports whether id is present.
	Contains(id int64) bool

	// Dimensions returns the index vector dimension.
	Dimensions() int

	// Save persists the index to the given path atomically.
	Save(path string) error

	// Load restores the index from the given path.
	Load(path string) error
}

// ErrDimensionMismatch indicates a vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
