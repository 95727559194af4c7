package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cognidex/cognidex/internal/errors"
)

const defaultMaxLoadedIndexes = 64

// IndexBackend selects the vector index implementation.
type IndexBackend string

const (
	BackendFlat IndexBackend = "flat"
	BackendHNSW IndexBackend = "hnsw"
)

// TenantIndexesConfig configures the per-tenant index manager.
type TenantIndexesConfig struct {
	// Root is the directory holding one index file per tenant.
	Root string

	// Dimensions is the embedding dimension all indexes share.
	Dimensions int

	// Backend selects flat (exact, default) or hnsw (approximate).
	Backend IndexBackend

	// MaxLoadedIndexes caps how many tenant indexes stay resident.
	// Evicted indexes are simply dropped: writes go through to disk, so
	// the next access reloads the current state.
	MaxLoadedIndexes int
}

// TenantIndexes manages one vector index per tenant, each persisted in its
// own file under the root directory. Cross-tenant isolation is structural:
// an index file contains exactly one tenant's vectors.
//
// Within the process a per-tenant RWMutex serializes writers; across
// processes a flock on a lock file beside the index does. Writes persist
// before returning, so the on-disk file is always a complete index.
type TenantIndexes struct {
	cfg    TenantIndexesConfig
	logger *slog.Logger

	mu     sync.Mutex
	states map[int64]*tenantState
	recent *lru.Cache[int64, struct{}]
}

type tenantState struct {
	mu  sync.RWMutex
	idx TenantIndex

	// stamp identifies the on-disk snapshot idx was loaded from or saved
	// as. A mismatch against the current file means another process wrote
	// the index since.
	stamp fileStamp
}

// fileStamp fingerprints an index file for staleness checks.
type fileStamp struct {
	size    int64
	modTime time.Time
}

func readStamp(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fileStamp{}, nil
	}
	if err != nil {
		return fileStamp{}, errors.New(errors.ErrCodeIndexIO, "checking index file", err)
	}
	return fileStamp{size: info.Size(), modTime: info.ModTime()}, nil
}

// NewTenantIndexes creates the manager, creating the root directory if
// needed.
func NewTenantIndexes(cfg TenantIndexesConfig, logger *slog.Logger) (*TenantIndexes, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.ValidationError(fmt.Sprintf("invalid index dimension %d", cfg.Dimensions), nil)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendFlat
	}
	if cfg.Backend != BackendFlat && cfg.Backend != BackendHNSW {
		return nil, errors.ConfigError(fmt.Sprintf("unknown index backend %q", cfg.Backend), nil)
	}
	if cfg.MaxLoadedIndexes <= 0 {
		cfg.MaxLoadedIndexes = defaultMaxLoadedIndexes
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeIndexIO, "creating index root", err)
	}

	m := &TenantIndexes{
		cfg:    cfg,
		logger: logger,
		states: make(map[int64]*tenantState),
	}
	recent, err := lru.NewWithEvict[int64, struct{}](cfg.MaxLoadedIndexes, func(tenantID int64, _ struct{}) {
		// Write-through persistence means a dropped index loses nothing.
		m.mu.Lock()
		delete(m.states, tenantID)
		m.mu.Unlock()
		logger.Debug("tenant index evicted", "tenant_id", tenantID)
	})
	if err != nil {
		return nil, errors.InternalError("creating index cache", err)
	}
	m.recent = recent
	return m, nil
}

// IndexPath returns the index file path for a tenant.
func (m *TenantIndexes) IndexPath(tenantID int64) string {
	return filepath.Join(m.cfg.Root, fmt.Sprintf("%d.index", tenantID))
}

func (m *TenantIndexes) lockPath(tenantID int64) string {
	return m.IndexPath(tenantID) + ".lock"
}

func (m *TenantIndexes) state(tenantID int64) *tenantState {
	m.mu.Lock()
	st, ok := m.states[tenantID]
	if !ok {
		st = &tenantState{}
		m.states[tenantID] = st
	}
	m.mu.Unlock()

	// Outside m.mu: adding may evict, and the evict callback locks m.mu.
	m.recent.Add(tenantID, struct{}{})
	return st
}

func (m *TenantIndexes) newIndex() (TenantIndex, error) {
	if m.cfg.Backend == BackendHNSW {
		return NewHNSWIndex(m.cfg.Dimensions)
	}
	return NewFlatIndex(m.cfg.Dimensions)
}

// ensureLoaded populates st.idx from disk. Caller must hold st.mu for
// writing. A corrupt file is logged, moved aside and replaced with a fresh
// empty index; the ingestion repair path restores the vectors.
func (m *TenantIndexes) ensureLoaded(tenantID int64, st *tenantState) error {
	if st.idx != nil {
		return nil
	}
	idx, err := m.newIndex()
	if err != nil {
		return err
	}

	path := m.IndexPath(tenantID)
	stamp, err := readStamp(path)
	if err != nil {
		return err
	}
	if stamp != (fileStamp{}) {
		if loadErr := idx.Load(path); loadErr != nil {
			if errors.GetCode(loadErr) != errors.ErrCodeIndexCorrupt {
				return loadErr
			}
			m.logger.Warn("tenant index corrupt, starting fresh",
				"tenant_id", tenantID, "path", path, "error", loadErr)
			if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
				return errors.New(errors.ErrCodeIndexIO, "quarantining corrupt index", renameErr)
			}
			idx, err = m.newIndex()
			if err != nil {
				return err
			}
			stamp = fileStamp{}
		}
	}

	st.idx = idx
	st.stamp = stamp
	return nil
}

// Add appends the (vector, id) pairs to the tenant's index and persists it
// before returning. On persistence failure the in-memory index is dropped
// so the next access reloads the last good on-disk state.
func (m *TenantIndexes) Add(tenantID int64, vectors [][]float32, ids []int64) error {
	st := m.state(tenantID)
	st.mu.Lock()
	defer st.mu.Unlock()

	fl := flock.New(m.lockPath(tenantID))
	if err := fl.Lock(); err != nil {
		return errors.New(errors.ErrCodeIndexIO, "locking tenant index", err)
	}
	defer fl.Unlock()

	// Only under the flock is the file known to be quiescent. If another
	// process wrote it since our snapshot was taken, mutating that snapshot
	// would save over the other writer's committed vectors, so drop it and
	// reload the current state.
	path := m.IndexPath(tenantID)
	stamp, err := readStamp(path)
	if err != nil {
		return err
	}
	if st.idx != nil && stamp != st.stamp {
		st.idx = nil
	}
	if err := m.ensureLoaded(tenantID, st); err != nil {
		return err
	}

	if err := st.idx.Add(vectors, ids); err != nil {
		st.idx = nil
		return err
	}
	if err := st.idx.Save(path); err != nil {
		st.idx = nil
		return err
	}
	st.stamp, err = readStamp(path)
	if err != nil {
		st.idx = nil
		return err
	}
	return nil
}

// Search runs a k-nearest-neighbor query against the tenant's index.
// A tenant with no index yet returns no hits.
func (m *TenantIndexes) Search(tenantID int64, query []float32, k int) ([]Hit, error) {
	st := m.state(tenantID)
	st.mu.Lock()
	if err := m.ensureLoaded(tenantID, st); err != nil {
		st.mu.Unlock()
		return nil, err
	}
	st.mu.Unlock()

	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.idx == nil {
		// Dropped by a failed write between our unlock and rlock.
		return nil, nil
	}
	return st.idx.Search(query, k)
}

// Count returns the number of vectors in the tenant's index.
func (m *TenantIndexes) Count(tenantID int64) (int, error) {
	st := m.state(tenantID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.ensureLoaded(tenantID, st); err != nil {
		return 0, err
	}
	return st.idx.Count(), nil
}

// Contains reports whether the tenant's index holds the given vector id.
func (m *TenantIndexes) Contains(tenantID, id int64) (bool, error) {
	st := m.state(tenantID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.ensureLoaded(tenantID, st); err != nil {
		return false, err
	}
	return st.idx.Contains(id), nil
}
