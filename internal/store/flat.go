package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cognidex/cognidex/internal/errors"
)

// FlatIndex is an exact brute-force L2 index. Search scans every vector, so
// results are deterministic and exact; that keeps score ordering stable
// across runs, which the retrieval ranking depends on.
//
// Not safe for concurrent use; the tenant index manager serializes access.
type FlatIndex struct {
	dims    int
	ids     []int64
	vectors [][]float32
	byID    map[int64]int
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dims int) (*FlatIndex, error) {
	if dims <= 0 {
		return nil, errors.ValidationError(fmt.Sprintf("invalid index dimension %d", dims), nil)
	}
	return &FlatIndex{
		dims: dims,
		byID: make(map[int64]int),
	}, nil
}

// Add appends the (vector, id) pairs to the index.
func (f *FlatIndex) Add(vectors [][]float32, ids []int64) error {
	if len(vectors) != len(ids) {
		return errors.ValidationError(fmt.Sprintf("vector/id count mismatch: %d vs %d", len(vectors), len(ids)), nil)
	}
	for i, v := range vectors {
		if len(v) != f.dims {
			return errors.New(errors.ErrCodeDimensionMismatch,
				ErrDimensionMismatch{Expected: f.dims, Got: len(v)}.Error(), nil)
		}
		if _, dup := f.byID[ids[i]]; dup {
			return errors.ValidationError(fmt.Sprintf("duplicate vector id %d", ids[i]), nil)
		}
	}
	for i, v := range vectors {
		vec := make([]float32, f.dims)
		copy(vec, v)
		f.byID[ids[i]] = len(f.ids)
		f.ids = append(f.ids, ids[i])
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Search returns up to k hits ordered by ascending squared L2 distance.
// Ties break by insertion order so repeated queries rank identically.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dims {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			ErrDimensionMismatch{Expected: f.dims, Got: len(query)}.Error(), nil)
	}
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(f.ids))
	for i, vec := range f.vectors {
		hits[i] = Hit{ID: f.ids[i], Distance: squaredL2(query, vec)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Distance < hits[b].Distance
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of indexed vectors.
func (f *FlatIndex) Count() int { return len(f.ids) }

// Contains reports whether id is present.
func (f *FlatIndex) Contains(id int64) bool {
	_, ok := f.byID[id]
	return ok
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int { return f.dims }

type flatSnapshot struct {
	Dims    int
	IDs     []int64
	Vectors [][]float32
}

// Save persists the index via gob to a temp file, then renames it into
// place so readers never observe a partial write.
func (f *FlatIndex) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(errors.ErrCodeIndexIO, "creating index directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.New(errors.ErrCodeIndexIO, "creating temp index file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	snap := flatSnapshot{Dims: f.dims, IDs: f.ids, Vectors: f.vectors}
	if err := gob.NewEncoder(w).Encode(&snap); err != nil {
		tmp.Close()
		return errors.New(errors.ErrCodeIndexIO, "encoding index", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.New(errors.ErrCodeIndexIO, "flushing index", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.New(errors.ErrCodeIndexIO, "syncing index", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.New(errors.ErrCodeIndexIO, "closing temp index file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.New(errors.ErrCodeIndexIO, "replacing index file", err)
	}
	return nil
}

// Load replaces the index contents from the file at path. A file that fails
// to decode returns an index corruption error; callers recover by starting
// fresh and re-ingesting.
func (f *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.New(errors.ErrCodeIndexIO, "opening index file", err)
	}
	defer file.Close()

	var snap flatSnapshot
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&snap); err != nil {
		return errors.IndexCorrupt("decoding index file "+path, err)
	}
	if snap.Dims != f.dims {
		return errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index file %s has dimension %d, expected %d", path, snap.Dims, f.dims), nil)
	}
	if len(snap.IDs) != len(snap.Vectors) {
		return errors.IndexCorrupt("index file "+path, fmt.Errorf("id/vector count mismatch: %d vs %d", len(snap.IDs), len(snap.Vectors)))
	}

	byID := make(map[int64]int, len(snap.IDs))
	for i, id := range snap.IDs {
		if len(snap.Vectors[i]) != snap.Dims {
			return errors.IndexCorrupt("index file "+path, fmt.Errorf("vector %d has dimension %d", i, len(snap.Vectors[i])))
		}
		byID[id] = i
	}
	f.ids = snap.IDs
	f.vectors = snap.Vectors
	f.byID = byID
	return nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
