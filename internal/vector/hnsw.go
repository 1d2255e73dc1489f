package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWOptions tunes the HNSW graph.
type HNSWOptions struct {
	M        int
	EfSearch int
}

// DefaultHNSWOptions returns the coder/hnsw defaults used by kensaku.
func DefaultHNSWOptions() HNSWOptions {
	return HNSWOptions{M: 16, EfSearch: 64}
}

// HNSWIndex is an approximate nearest-neighbour index backed by coder/hnsw.
// Vectors are normalised on insert so the graph's cosine distance stays in [0,2].
// Removing or replacing vectors compacts the graph, so it only ever holds live nodes.
type HNSWIndex struct {
	dimensions int
	opts       HNSWOptions
	graph      *hnsw.Graph[uint64]
	keyIDs     map[string]uint64
	idKeys     map[uint64]string
	nextID     uint64
	source     Source
	loaded     bool
	mu         sync.RWMutex
}

var _ MutableIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty HNSW index.
func NewHNSWIndex(dimensions int, opts HNSWOptions) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	def := DefaultHNSWOptions()
	if opts.M <= 0 {
		opts.M = def.M
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = def.EfSearch
	}
	h := &HNSWIndex{dimensions: dimensions, opts: opts, loaded: true}
	h.reset()
	return h, nil
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = h.opts.M
	g.EfSearch = h.opts.EfSearch
	g.Ml = 0.25
	return g
}

func (h *HNSWIndex) reset() {
	h.graph = h.newGraph()
	h.keyIDs = make(map[string]uint64)
	h.idKeys = make(map[uint64]string)
	h.nextID = 0
}

// Add inserts vectors under the given chunk keys, replacing existing keys.
func (h *HNSWIndex) Add(_ context.Context, keys []string, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("keys and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != h.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), h.dimensions)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	replaced := false
	for i, key := range keys {
		if h.addLocked(key, vectors[i]) {
			replaced = true
		}
	}
	if replaced {
		h.compactLocked()
	}
	return nil
}

// addLocked reports whether key was already present. The superseded node stays in the
// graph until the next compactLocked.
func (h *HNSWIndex) addLocked(key string, vec []float32) bool {
	old, replaced := h.keyIDs[key]
	if replaced {
		delete(h.idKeys, old)
	}
	id := h.nextID
	h.nextID++
	h.graph.Add(hnsw.MakeNode(id, Normalize(vec)))
	h.keyIDs[key] = id
	h.idKeys[id] = key
	return replaced
}

// compactLocked rebuilds the graph from the live nodes in insertion order. coder/hnsw's
// Delete can leave an upper layer empty, which Search does not tolerate, so nodes are
// never deleted in place.
func (h *HNSWIndex) compactLocked() {
	old := h.graph
	ids := make([]uint64, 0, len(h.idKeys))
	for id := range h.idKeys {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	h.graph = h.newGraph()
	for _, id := range ids {
		if vec, ok := old.Lookup(id); ok {
			h.graph.Add(hnsw.MakeNode(id, vec))
		}
	}
}

// KNN searches the graph.
func (h *HNSWIndex) KNN(_ context.Context, encoded []byte, k int) ([]Neighbor, error) {
	query, err := DecodeVector(encoded)
	if err != nil {
		return nil, err
	}
	if len(query) != h.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), h.dimensions)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.loaded {
		return nil, ErrNotLoaded
	}
	if k <= 0 || len(h.keyIDs) == 0 {
		return nil, nil
	}

	q := Normalize(query)
	nodes := h.graph.Search(q, k)
	out := make([]Neighbor, 0, k)
	for _, node := range nodes {
		key, ok := h.idKeys[node.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{Key: key, Distance: float64(h.graph.Distance(q, node.Value))})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// RemoveDocument drops every chunk vector of a document from the graph.
func (h *HNSWIndex) RemoveDocument(_ context.Context, hash string) error {
	prefix := hash + "_"
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := false
	for key, id := range h.keyIDs {
		if strings.HasPrefix(key, prefix) {
			delete(h.keyIDs, key)
			delete(h.idKeys, id)
			removed = true
		}
	}
	if removed {
		h.compactLocked()
	}
	return nil
}

// Load rebuilds the graph from source.
func (h *HNSWIndex) Load(ctx context.Context, source Source) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reset()
	replaced := false
	err := source.LoadVectors(ctx, func(key string, data []byte) error {
		vec, err := DecodeVector(data)
		if err != nil {
			return fmt.Errorf("vector %s: %w", key, err)
		}
		if len(vec) != h.dimensions {
			return fmt.Errorf("vector %s: dimension mismatch: got %d, expected %d", key, len(vec), h.dimensions)
		}
		if h.addLocked(key, vec) {
			replaced = true
		}
		return nil
	})
	if err != nil {
		h.reset()
		h.loaded = false
		return fmt.Errorf("load vectors: %w", err)
	}
	if replaced {
		h.compactLocked()
	}
	h.source = source
	h.loaded = true
	return nil
}

// Probe checks the backing source when the index was loaded from one.
func (h *HNSWIndex) Probe(ctx context.Context) error {
	h.mu.RLock()
	loaded, source := h.loaded, h.source
	h.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}
	if source != nil {
		return source.ProbeVectors(ctx)
	}
	return nil
}

// Size returns the number of live vectors.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.keyIDs)
}

// Close drops the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reset()
	h.loaded = false
	return nil
}
