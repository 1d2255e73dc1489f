package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force cosine distance.
// Suitable for tests and corpora up to a few tens of thousands of chunks.
type MemoryIndex struct {
	dimensions int
	keys       []string
	vectors    [][]float32
	source     Source
	loaded     bool
	mu         sync.RWMutex
}

var _ MutableIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{dimensions: dimensions, loaded: true}, nil
}

// Add appends vectors with the given chunk keys. Existing keys are replaced.
func (m *MemoryIndex) Add(_ context.Context, keys []string, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("keys and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	replace := make(map[string]bool, len(keys))
	for _, k := range keys {
		replace[k] = true
	}
	m.filterLocked(func(key string) bool { return !replace[key] })
	for i, key := range keys {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		m.keys = append(m.keys, key)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// KNN returns the k nearest chunks by cosine distance, ties broken by key.
func (m *MemoryIndex) KNN(_ context.Context, encoded []byte, k int) ([]Neighbor, error) {
	query, err := DecodeVector(encoded)
	if err != nil {
		return nil, err
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return nil, ErrNotLoaded
	}
	if k <= 0 || len(m.keys) == 0 {
		return nil, nil
	}
	out := make([]Neighbor, len(m.keys))
	for i, vec := range m.vectors {
		out[i] = Neighbor{Key: m.keys[i], Distance: CosineDistance(query, vec)}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Key < out[j].Key
	})
	if k > len(out) {
		k = len(out)
	}
	return out[:k], nil
}

// RemoveDocument removes all chunk vectors whose key belongs to hash.
func (m *MemoryIndex) RemoveDocument(_ context.Context, hash string) error {
	prefix := hash + "_"
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filterLocked(func(key string) bool { return !strings.HasPrefix(key, prefix) })
	return nil
}

func (m *MemoryIndex) filterLocked(keep func(key string) bool) {
	keys := m.keys[:0]
	vectors := m.vectors[:0]
	for i, key := range m.keys {
		if keep(key) {
			keys = append(keys, key)
			vectors = append(vectors, m.vectors[i])
		}
	}
	m.keys = keys
	m.vectors = vectors
}

// Load replaces the in-memory contents with the vectors in source. Rows with a different
// dimension are rejected.
func (m *MemoryIndex) Load(ctx context.Context, source Source) error {
	var keys []string
	var vectors [][]float32
	err := source.LoadVectors(ctx, func(key string, data []byte) error {
		vec, err := DecodeVector(data)
		if err != nil {
			return fmt.Errorf("vector %s: %w", key, err)
		}
		if len(vec) != m.dimensions {
			return fmt.Errorf("vector %s: dimension mismatch: got %d, expected %d", key, len(vec), m.dimensions)
		}
		keys = append(keys, key)
		vectors = append(vectors, vec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load vectors: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys, m.vectors = keys, vectors
	m.source = source
	m.loaded = true
	return nil
}

// Probe checks the backing source when the index was loaded from one.
func (m *MemoryIndex) Probe(ctx context.Context) error {
	m.mu.RLock()
	loaded, source := m.loaded, m.source
	m.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}
	if source != nil {
		return source.ProbeVectors(ctx)
	}
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Close releases the vectors.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys, m.vectors = nil, nil
	m.loaded = false
	return nil
}
