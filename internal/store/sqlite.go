package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognidex/cognidex/internal/errors"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_sources (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id   INTEGER NOT NULL,
	source_type TEXT    NOT NULL,
	source_id   TEXT    NOT NULL,
	name        TEXT    NOT NULL,
	created_at  TEXT    NOT NULL,
	updated_at  TEXT,
	UNIQUE(tenant_id, source_id)
);

CREATE TABLE IF NOT EXISTS documents (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id           INTEGER NOT NULL,
	knowledge_source_id INTEGER NOT NULL REFERENCES knowledge_sources(id),
	source_id           TEXT    NOT NULL,
	version             INTEGER NOT NULL,
	created_at          TEXT    NOT NULL,
	updated_at          TEXT,
	UNIQUE(tenant_id, source_id, version)
);

CREATE TABLE IF NOT EXISTS document_chunks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id       INTEGER NOT NULL,
	document_id     INTEGER NOT NULL REFERENCES documents(id),
	chunk_index     INTEGER NOT NULL,
	chunk_text      TEXT    NOT NULL,
	source_id       TEXT    NOT NULL,
	version         INTEGER NOT NULL,
	vector_id       INTEGER,
	is_deprecated   INTEGER NOT NULL DEFAULT 0,
	last_updated_at TEXT,
	created_at      TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_tenant   ON document_chunks(tenant_id);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_docs_tenant     ON documents(tenant_id);
`

// SQLiteStore implements MetadataStore on a single SQLite file.
// The pool is capped at one connection: modernc.org/sqlite allows a single
// writer, and serializing everything through one connection avoids
// SQLITE_BUSY under concurrent ingestion workers.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the metadata database at path
// and applies the schema.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "creating metadata directory", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "opening metadata database", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.New(errors.ErrCodeMetadataIO, "applying metadata schema", err)
	}

	logger.Debug("metadata store opened", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetOrCreateSource looks up the tenant's source by source_id, creating it
// on first sight. The UNIQUE constraint makes the create race-safe: a
// conflicting insert falls back to the lookup.
func (s *SQLiteStore) GetOrCreateSource(ctx context.Context, tenantID int64, sourceType SourceType, sourceID, name string) (*KnowledgeSource, error) {
	if !sourceType.Valid() {
		return nil, errors.ValidationError(fmt.Sprintf("unknown source type %q", sourceType), nil)
	}
	if src, err := s.sourceBySourceID(ctx, tenantID, sourceID); err != nil {
		return nil, err
	} else if src != nil {
		return src, nil
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_sources (tenant_id, source_type, source_id, name, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, source_id) DO NOTHING`,
		tenantID, string(sourceType), sourceID, name, now.Format(timeFormat))
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "creating knowledge source", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost the race; the row now exists.
		return s.sourceBySourceID(ctx, tenantID, sourceID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "reading source id", err)
	}
	return &KnowledgeSource{
		ID:         id,
		TenantID:   tenantID,
		SourceType: sourceType,
		SourceID:   sourceID,
		Name:       name,
		CreatedAt:  now,
	}, nil
}

func (s *SQLiteStore) sourceBySourceID(ctx context.Context, tenantID int64, sourceID string) (*KnowledgeSource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, source_type, source_id, name, created_at, updated_at
		 FROM knowledge_sources WHERE tenant_id = ? AND source_id = ?`,
		tenantID, sourceID)

	var src KnowledgeSource
	var st, created string
	var updated sql.NullString
	err := row.Scan(&src.ID, &src.TenantID, &st, &src.SourceID, &src.Name, &created, &updated)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "querying knowledge source", err)
	}
	src.SourceType = SourceType(st)
	src.CreatedAt = parseTime(created)
	src.UpdatedAt = parseNullTime(updated)
	return &src, nil
}

// GetDocument returns the document for (tenant, source_id, version), or
// nil when no such version has been ingested.
func (s *SQLiteStore) GetDocument(ctx context.Context, tenantID int64, sourceID string, version int) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, knowledge_source_id, source_id, version, created_at, updated_at
		 FROM documents WHERE tenant_id = ? AND source_id = ? AND version = ?`,
		tenantID, sourceID, version)
	return scanDocument(row)
}

// CreateDocument inserts the document and fills in its assigned ID.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (tenant_id, knowledge_source_id, source_id, version, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.TenantID, doc.KnowledgeSourceID, doc.SourceID, doc.Version, now.Format(timeFormat))
	if err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "creating document", err)
	}
	doc.ID, err = res.LastInsertId()
	if err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "reading document id", err)
	}
	doc.CreatedAt = now
	return nil
}

// CreateChunks inserts all chunks in a single transaction and fills in the
// assigned IDs. The IDs later double as vector ids, so partial inserts must
// never become visible.
func (s *SQLiteStore) CreateChunks(ctx context.Context, chunks []*DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "beginning chunk transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks
		 (tenant_id, document_id, chunk_index, chunk_text, source_id, version, last_updated_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "preparing chunk insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		res, err := stmt.ExecContext(ctx,
			c.TenantID, c.DocumentID, c.ChunkIndex, c.ChunkText, c.SourceID, c.Version,
			now.Format(timeFormat), now.Format(timeFormat))
		if err != nil {
			return errors.New(errors.ErrCodeMetadataIO, "inserting chunk", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.New(errors.ErrCodeMetadataIO, "reading chunk id", err)
		}
		c.ID = id
		ts := now
		c.LastUpdatedAt = &ts
		c.CreatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "committing chunk transaction", err)
	}
	return nil
}

// ConfirmVectors marks the chunks as indexed by setting vector_id to the
// chunk's own primary key. Runs after the vectors are in the index, so a
// crash in between leaves the chunks detectable as unconfirmed.
func (s *SQLiteStore) ConfirmVectors(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "beginning confirm transaction", err)
	}
	defer tx.Rollback()

	for _, id := range chunkIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE document_chunks SET vector_id = id WHERE id = ?`, id); err != nil {
			return errors.New(errors.ErrCodeMetadataIO, "confirming chunk vector", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "committing confirm transaction", err)
	}
	return nil
}

// GetChunk returns the tenant's chunk by id, or nil when absent. The tenant
// filter is part of the query so a cross-tenant id never resolves.
func (s *SQLiteStore) GetChunk(ctx context.Context, tenantID, chunkID int64) (*DocumentChunk, error) {
	row := s.db.QueryRowContext(ctx, chunkSelect+` WHERE tenant_id = ? AND id = ?`, tenantID, chunkID)
	c, err := scanChunkRow(row)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetChunks returns the tenant's chunks for the given ids. Missing ids are
// silently absent from the result; callers resolving index hits treat that
// as the hit being skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, tenantID int64, chunkIDs []int64) ([]*DocumentChunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, 0, len(chunkIDs)+1)
	args = append(args, tenantID)
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := chunkSelect + ` WHERE tenant_id = ? AND id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "querying chunks", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ChunksByDocument returns all chunks of a document ordered by chunk index.
func (s *SQLiteStore) ChunksByDocument(ctx context.Context, documentID int64) ([]*DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		chunkSelect+` WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "querying document chunks", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// UnconfirmedChunks returns the document's chunks whose vectors were never
// confirmed, ordered by chunk index. Non-empty output means a previous
// ingestion crashed between chunk insert and vector confirmation.
func (s *SQLiteStore) UnconfirmedChunks(ctx context.Context, documentID int64) ([]*DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		chunkSelect+` WHERE document_id = ? AND vector_id IS NULL ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "querying unconfirmed chunks", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// DeleteChunksByDocument removes all chunks of a document. Used when a
// failed ingestion must be rolled back before its vectors were added.
func (s *SQLiteStore) DeleteChunksByDocument(ctx context.Context, documentID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "deleting document chunks", err)
	}
	return nil
}

// SetChunkDeprecated flips the deprecation flag on a single chunk.
func (s *SQLiteStore) SetChunkDeprecated(ctx context.Context, tenantID, chunkID int64, deprecated bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE document_chunks SET is_deprecated = ?, last_updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		boolToInt(deprecated), time.Now().UTC().Format(timeFormat), tenantID, chunkID)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "updating chunk deprecation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ValidationError(fmt.Sprintf("chunk %d not found for tenant %d", chunkID, tenantID), nil)
	}
	return nil
}

// SetDocumentDeprecated flips the deprecation flag on every chunk of a
// document.
func (s *SQLiteStore) SetDocumentDeprecated(ctx context.Context, tenantID, documentID int64, deprecated bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE document_chunks SET is_deprecated = ?, last_updated_at = ?
		 WHERE tenant_id = ? AND document_id = ?`,
		boolToInt(deprecated), time.Now().UTC().Format(timeFormat), tenantID, documentID)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataIO, "updating document deprecation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ValidationError(fmt.Sprintf("document %d has no chunks for tenant %d", documentID, tenantID), nil)
	}
	return nil
}

// Tenants returns every tenant id with at least one document.
func (s *SQLiteStore) Tenants(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM documents ORDER BY tenant_id`)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "querying tenants", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.New(errors.ErrCodeMetadataIO, "scanning tenant id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountDocuments returns the tenant's document count.
func (s *SQLiteStore) CountDocuments(ctx context.Context, tenantID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, errors.New(errors.ErrCodeMetadataIO, "counting documents", err)
	}
	return n, nil
}

// CountChunks returns the tenant's confirmed and total chunk counts.
func (s *SQLiteStore) CountChunks(ctx context.Context, tenantID int64) (confirmed, total int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(vector_id), COUNT(*) FROM document_chunks WHERE tenant_id = ?`,
		tenantID).Scan(&confirmed, &total)
	if err != nil {
		return 0, 0, errors.New(errors.ErrCodeMetadataIO, "counting chunks", err)
	}
	return confirmed, total, nil
}

const chunkSelect = `SELECT id, tenant_id, document_id, chunk_index, chunk_text, source_id, version,
	vector_id, is_deprecated, last_updated_at, created_at
	FROM document_chunks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*DocumentChunk, error) {
	var c DocumentChunk
	var vectorID sql.NullInt64
	var deprecated int
	var lastUpdated sql.NullString
	var created string
	err := row.Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.ChunkIndex, &c.ChunkText,
		&c.SourceID, &c.Version, &vectorID, &deprecated, &lastUpdated, &created)
	if err != nil {
		return nil, err
	}
	if vectorID.Valid {
		v := vectorID.Int64
		c.VectorID = &v
	}
	c.IsDeprecated = deprecated != 0
	c.LastUpdatedAt = parseNullTime(lastUpdated)
	c.CreatedAt = parseTime(created)
	return &c, nil
}

func scanChunkRow(row *sql.Row) (*DocumentChunk, error) {
	c, err := scanChunk(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "scanning chunk", err)
	}
	return c, nil
}

func scanChunks(rows *sql.Rows) ([]*DocumentChunk, error) {
	var out []*DocumentChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, errors.New(errors.ErrCodeMetadataIO, "scanning chunk", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "iterating chunks", err)
	}
	return out, nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	var created string
	var updated sql.NullString
	err := row.Scan(&d.ID, &d.TenantID, &d.KnowledgeSourceID, &d.SourceID, &d.Version, &created, &updated)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataIO, "scanning document", err)
	}
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseNullTime(updated)
	return &d, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
