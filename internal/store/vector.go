package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndex wraps a coder/hnsw graph with string chunk ids and atomic
// persistence. Deletion is lazy: mappings are dropped and the orphaned graph
// node is skipped at query time, because removing nodes from the graph is
// unreliable when the last node goes.
type VectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// vectorMeta is the gob sidecar holding id mappings.
type vectorMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Dims    int
}

// NewVectorIndex creates an empty cosine HNSW index.
func NewVectorIndex(dims int) *VectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	return &VectorIndex{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts or replaces vectors. Existing ids are lazily deleted first.
func (v *VectorIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, vec := range vectors {
		if len(vec) != v.dims {
			return ErrDimensionMismatch{Expected: v.dims, Got: len(vec)}
		}
	}

	for i, id := range ids {
		if oldKey, ok := v.idMap[id]; ok {
			delete(v.keyMap, oldKey)
			delete(v.idMap, id)
		}
		key := v.nextKey
		v.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		v.graph.Add(hnsw.MakeNode(key, vec))
		v.idMap[id] = key
		v.keyMap[key] = id
	}
	return nil
}

// Delete lazily removes vectors by id.
func (v *VectorIndex) Delete(ids []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		if key, ok := v.idMap[id]; ok {
			delete(v.keyMap, key)
			delete(v.idMap, id)
		}
	}
}

// VectorHit is a nearest-neighbor result.
type VectorHit struct {
	ID    string
	Score float64 // cosine similarity mapped to [0,1]
}

// Search returns up to k nearest neighbors by cosine similarity.
// Over-fetches to compensate for lazily deleted orphans in the graph.
func (v *VectorIndex) Search(query []float32, k int) ([]VectorHit, error) {
	return v.SearchFilter(query, k, func(string) bool { return true })
}

// SearchFilter returns up to k nearest neighbors whose id passes keep.
// The scan widens past filtered-out neighbors until k match or the graph is
// exhausted, so a narrow filter still fills k.
func (v *VectorIndex) SearchFilter(query []float32, k int, keep func(id string) bool) ([]VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(query) != v.dims {
		return nil, ErrDimensionMismatch{Expected: v.dims, Got: len(query)}
	}
	if v.graph.Len() == 0 || k <= 0 {
		return []VectorHit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	orphans := v.graph.Len() - len(v.idMap)
	fetch := k + orphans
	for {
		nodes := v.graph.Search(normalized, fetch)

		hits := make([]VectorHit, 0, k)
		for _, node := range nodes {
			id, ok := v.keyMap[node.Key]
			if !ok || !keep(id) {
				continue
			}
			distance := v.graph.Distance(normalized, node.Value)
			hits = append(hits, VectorHit{ID: id, Score: 1 - float64(distance)/2})
			if len(hits) == k {
				return hits, nil
			}
		}
		if fetch >= v.graph.Len() {
			return hits, nil
		}
		fetch *= 2
	}
}

// Contains reports whether id has a live vector.
func (v *VectorIndex) Contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.idMap[id]
	return ok
}

// Count returns the number of live vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// Save atomically persists the graph and its id mappings.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create vector file: %w", err)
	}
	if err := v.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return v.saveMeta(path + ".meta")
}

func (v *VectorIndex) saveMeta(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create meta file: %w", err)
	}
	meta := vectorMeta{IDMap: v.idMap, NextKey: v.nextKey, Dims: v.dims}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode meta: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load restores a saved index. The receiver must be freshly created.
func (v *VectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("failed to open meta file: %w", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta vectorMeta
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("failed to decode meta: %w", err)
	}
	if meta.Dims != v.dims {
		return ErrDimensionMismatch{Expected: v.dims, Got: meta.Dims}
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open vector file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import needs an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	v.idMap = meta.IDMap
	v.nextKey = meta.NextKey
	v.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		v.keyMap[key] = id
	}
	return nil
}

// normalizeInPlace scales vec to unit length for cosine distance.
func normalizeInPlace(vec []float32) {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
