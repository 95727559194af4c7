// Package ingest orchestrates the write path: source lookup, document
// idempotency, chunking, embedding, chunk persistence, vector indexing and
// confirmation.
//
// The step order carries the consistency contract. Chunk rows commit before
// their vectors are added, and vectors are added before the rows are
// confirmed. A crash at any point leaves either nothing, or chunk rows
// visibly awaiting vectors; it can never leave a vector without its chunk
// row. Re-running the same ingestion repairs the awaiting rows.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cognidex/cognidex/internal/embed"
	"github.com/cognidex/cognidex/internal/errors"
	"github.com/cognidex/cognidex/internal/store"
)

// Status describes what an ingestion call actually did.
type Status string

const (
	// StatusCreated means a new document was chunked, embedded and indexed.
	StatusCreated Status = "created"

	// StatusAlreadyIngested means the (tenant, source, version) document
	// exists fully confirmed; the call was a no-op.
	StatusAlreadyIngested Status = "already_ingested"

	// StatusRepaired means the document existed with chunks awaiting
	// vectors and this call indexed them.
	StatusRepaired Status = "repaired"
)

// Request is one ingestion unit: a single version of a source's content.
type Request struct {
	TenantID   int64
	SourceType store.SourceType
	SourceID   string
	Version    int
	Name       string
	Content    string
}

// Result reports the outcome of an ingestion call.
type Result struct {
	Status     Status
	DocumentID int64
	SourceID   string
	Version    int
	Chunks     int
}

// Chunker splits text into embedding-sized pieces.
type Chunker interface {
	Split(text string) []string
}

// VectorIndex is the slice of the tenant index manager the orchestrator
// needs.
type VectorIndex interface {
	Add(tenantID int64, vectors [][]float32, ids []int64) error
	Contains(tenantID, id int64) (bool, error)
}

// Orchestrator runs ingestions against the metadata store and tenant
// vector indexes. Safe for concurrent use; per-tenant index writes are
// serialized by the index manager, not here.
type Orchestrator struct {
	meta     store.MetadataStore
	index    VectorIndex
	chunker  Chunker
	embedder embed.Embedder
	logger   *slog.Logger
}

// NewOrchestrator wires an ingestion orchestrator.
func NewOrchestrator(meta store.MetadataStore, index VectorIndex, chunker Chunker, embedder embed.Embedder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		meta:     meta,
		index:    index,
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
	}
}

// Ingest processes one document version. Idempotent per
// (tenant, source_id, version): repeat calls no-op on a fully confirmed
// document and repair one whose vectors never landed, so an at-least-once
// task runner can retry the whole call safely.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	src, err := o.meta.GetOrCreateSource(ctx, req.TenantID, req.SourceType, req.SourceID, req.Name)
	if err != nil {
		return nil, err
	}

	existing, err := o.meta.GetDocument(ctx, req.TenantID, req.SourceID, req.Version)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return o.resume(ctx, req, existing)
	}

	doc := &store.Document{
		TenantID:          req.TenantID,
		KnowledgeSourceID: src.ID,
		SourceID:          req.SourceID,
		Version:           req.Version,
	}
	if err := o.meta.CreateDocument(ctx, doc); err != nil {
		// A concurrent ingestion of the same version may have won the
		// unique constraint race; resume from its document.
		if winner, lookupErr := o.meta.GetDocument(ctx, req.TenantID, req.SourceID, req.Version); lookupErr == nil && winner != nil {
			return o.resume(ctx, req, winner)
		}
		return nil, err
	}

	n, err := o.process(ctx, req, doc)
	if err != nil {
		return nil, err
	}

	o.logger.Info("document ingested",
		"tenant_id", req.TenantID, "source_id", req.SourceID,
		"version", req.Version, "document_id", doc.ID, "chunks", n)
	return &Result{
		Status:     StatusCreated,
		DocumentID: doc.ID,
		SourceID:   req.SourceID,
		Version:    req.Version,
		Chunks:     n,
	}, nil
}

// process runs chunking onward for a document: split, embed, persist chunk
// rows, index and confirm. Content that yields zero chunks succeeds without
// touching the index. Embedding runs before any chunk row exists, so an
// embedding failure leaves only the chunkless document behind for the retry
// to reprocess.
func (o *Orchestrator) process(ctx context.Context, req Request, doc *store.Document) (int, error) {
	texts := o.chunker.Split(req.Content)
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	chunks := make([]*store.DocumentChunk, len(texts))
	for i, text := range texts {
		chunks[i] = &store.DocumentChunk{
			TenantID:   req.TenantID,
			DocumentID: doc.ID,
			ChunkIndex: i,
			ChunkText:  text,
			SourceID:   req.SourceID,
			Version:    req.Version,
		}
	}
	if err := o.meta.CreateChunks(ctx, chunks); err != nil {
		return 0, err
	}

	if err := o.indexAndConfirm(ctx, req.TenantID, chunks, vectors); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// resume handles an existing document: confirm it is complete, finish
// indexing its awaiting chunks, or rerun chunking onward when a previous
// attempt died before any chunk row committed.
func (o *Orchestrator) resume(ctx context.Context, req Request, doc *store.Document) (*Result, error) {
	pending, err := o.meta.UnconfirmedChunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	all, err := o.meta.ChunksByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	if len(pending) == 0 && len(all) > 0 {
		o.logger.Debug("document already ingested",
			"tenant_id", doc.TenantID, "source_id", doc.SourceID, "version", doc.Version)
		return &Result{
			Status:     StatusAlreadyIngested,
			DocumentID: doc.ID,
			SourceID:   doc.SourceID,
			Version:    doc.Version,
			Chunks:     len(all),
		}, nil
	}
	if len(all) == 0 {
		// Either the previous attempt died between the document commit and
		// the chunk rows, or the content was genuinely empty. The request
		// carries the content, so rerun chunking onward and let the split
		// decide which it was.
		n, err := o.process(ctx, req, doc)
		if err != nil {
			return nil, err
		}
		status := StatusRepaired
		if n == 0 {
			status = StatusAlreadyIngested
		} else {
			o.logger.Warn("reprocessed chunkless document",
				"tenant_id", doc.TenantID, "document_id", doc.ID, "chunks", n)
		}
		return &Result{
			Status:     status,
			DocumentID: doc.ID,
			SourceID:   doc.SourceID,
			Version:    doc.Version,
			Chunks:     n,
		}, nil
	}

	o.logger.Warn("repairing document with unconfirmed chunks",
		"tenant_id", doc.TenantID, "document_id", doc.ID, "pending", len(pending))

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.ChunkText
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := o.indexAndConfirm(ctx, doc.TenantID, pending, vectors); err != nil {
		return nil, err
	}

	return &Result{
		Status:     StatusRepaired,
		DocumentID: doc.ID,
		SourceID:   doc.SourceID,
		Version:    doc.Version,
		Chunks:     len(all),
	}, nil
}

// indexAndConfirm adds the chunk vectors to the tenant index and then marks
// the chunks confirmed. Chunks already present in the index (a retry after
// a crash between index write and confirmation) skip straight to
// confirmation.
func (o *Orchestrator) indexAndConfirm(ctx context.Context, tenantID int64, chunks []*store.DocumentChunk, vectors [][]float32) error {
	if len(vectors) != len(chunks) {
		return errors.InternalError(
			fmt.Sprintf("embedding count %d does not match chunk count %d", len(vectors), len(chunks)), nil)
	}

	addVectors := make([][]float32, 0, len(chunks))
	addIDs := make([]int64, 0, len(chunks))
	confirmIDs := make([]int64, 0, len(chunks))
	for i, c := range chunks {
		confirmIDs = append(confirmIDs, c.ID)
		present, err := o.index.Contains(tenantID, c.ID)
		if err != nil {
			return err
		}
		if present {
			continue
		}
		addVectors = append(addVectors, vectors[i])
		addIDs = append(addIDs, c.ID)
	}

	if len(addIDs) > 0 {
		if err := o.index.Add(tenantID, addVectors, addIDs); err != nil {
			return err
		}
	}
	return o.meta.ConfirmVectors(ctx, confirmIDs)
}

func validate(req Request) error {
	if req.TenantID <= 0 {
		return errors.ValidationError(fmt.Sprintf("invalid tenant id %d", req.TenantID), nil)
	}
	if !req.SourceType.Valid() {
		return errors.ValidationError(fmt.Sprintf("unknown source type %q", req.SourceType), nil)
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return errors.ValidationError("source id is empty", nil)
	}
	if req.Version <= 0 {
		return errors.ValidationError(fmt.Sprintf("invalid version %d", req.Version), nil)
	}
	return nil
}
