package store

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coder/hnsw"

	"github.com/cognidex/cognidex/internal/errors"
)

// HNSWIndex is an approximate-nearest-neighbor alternative to FlatIndex for
// tenants with large corpora. A graph search can rank near-equal neighbors
// differently from an exhaustive scan, so the exact flat backend stays the
// default; this one is opt-in via config.
//
// Distances are reported as squared L2 to match FlatIndex, so retrieval
// scoring is backend-agnostic.
//
// Not safe for concurrent use; the tenant index manager serializes access.
type HNSWIndex struct {
	dims  int
	graph *hnsw.Graph[uint64]
	known map[int64]struct{}
}

// hnswSnapshot is the single-file persistence format: the exported graph
// bytes and the id set travel together, so one atomic rename covers both
// and a crash can never leave them out of step.
type hnswSnapshot struct {
	Dims  int
	IDs   []int64
	Graph []byte
}

// NewHNSWIndex creates an empty graph index for vectors of the given
// dimension.
func NewHNSWIndex(dims int) (*HNSWIndex, error) {
	if dims <= 0 {
		return nil, errors.ValidationError(fmt.Sprintf("invalid index dimension %d", dims), nil)
	}
	return &HNSWIndex{
		dims:  dims,
		graph: newGraph(),
		known: make(map[int64]struct{}),
	}, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = 16
	g.EfSearch = 40
	g.Ml = 0.25
	return g
}

// Add appends the (vector, id) pairs to the graph.
func (h *HNSWIndex) Add(vectors [][]float32, ids []int64) error {
	if len(vectors) != len(ids) {
		return errors.ValidationError(fmt.Sprintf("vector/id count mismatch: %d vs %d", len(vectors), len(ids)), nil)
	}
	for i, v := range vectors {
		if len(v) != h.dims {
			return errors.New(errors.ErrCodeDimensionMismatch,
				ErrDimensionMismatch{Expected: h.dims, Got: len(v)}.Error(), nil)
		}
		if _, dup := h.known[ids[i]]; dup {
			return errors.ValidationError(fmt.Sprintf("duplicate vector id %d", ids[i]), nil)
		}
	}
	for i, v := range vectors {
		vec := make([]float32, h.dims)
		copy(vec, v)
		h.graph.Add(hnsw.MakeNode(uint64(ids[i]), vec))
		h.known[ids[i]] = struct{}{}
	}
	return nil
}

// Search returns up to k approximate nearest hits ordered by ascending
// squared L2 distance.
func (h *HNSWIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != h.dims {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			ErrDimensionMismatch{Expected: h.dims, Got: len(query)}.Error(), nil)
	}
	if k <= 0 || h.graph.Len() == 0 {
		return nil, nil
	}

	nodes := h.graph.Search(query, k)
	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, Hit{
			ID:       int64(node.Key),
			Distance: squaredL2(query, node.Value),
		})
	}
	return hits, nil
}

// Count returns the number of indexed vectors.
func (h *HNSWIndex) Count() int { return len(h.known) }

// Contains reports whether id is present.
func (h *HNSWIndex) Contains(id int64) bool {
	_, ok := h.known[id]
	return ok
}

// Dimensions returns the vector dimension.
func (h *HNSWIndex) Dimensions() int { return h.dims }

// Save writes the graph and id set as one snapshot via temp file + rename.
func (h *HNSWIndex) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(errors.ErrCodeIndexIO, "creating index directory", err)
	}

	var graphBuf bytes.Buffer
	if err := h.graph.Export(&graphBuf); err != nil {
		return errors.New(errors.ErrCodeIndexIO, "exporting graph", err)
	}
	ids := make([]int64, 0, len(h.known))
	for id := range h.known {
		ids = append(ids, id)
	}
	snap := hnswSnapshot{Dims: h.dims, IDs: ids, Graph: graphBuf.Bytes()}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.New(errors.ErrCodeIndexIO, "creating temp index file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
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

// Load restores a snapshot from disk.
func (h *HNSWIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.New(errors.ErrCodeIndexIO, "opening index file", err)
	}
	defer file.Close()

	var snap hnswSnapshot
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&snap); err != nil {
		return errors.IndexCorrupt("decoding index file "+path, err)
	}
	if snap.Dims != h.dims {
		return errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index file %s has dimension %d, expected %d", path, snap.Dims, h.dims), nil)
	}

	graph := newGraph()
	// Import needs an io.ByteReader.
	if err := graph.Import(bytes.NewReader(snap.Graph)); err != nil {
		return errors.IndexCorrupt("importing graph from "+path, err)
	}
	if graph.Len() != len(snap.IDs) {
		return errors.IndexCorrupt(
			fmt.Sprintf("index file %s has %d graph nodes but %d ids", path, graph.Len(), len(snap.IDs)), nil)
	}

	known := make(map[int64]struct{}, len(snap.IDs))
	for _, id := range snap.IDs {
		known[id] = struct{}{}
	}
	h.graph = graph
	h.known = known
	return nil
}

var (
	_ TenantIndex = (*FlatIndex)(nil)
	_ TenantIndex = (*HNSWIndex)(nil)
)
