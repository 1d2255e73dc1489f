package vector

import "fmt"

// IndexType names a vector index implementation.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search. Exact; good for small corpora.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeHNSW uses an approximate HNSW graph. Good for large corpora.
	IndexTypeHNSW IndexType = "hnsw"
)

// NewIndex creates a vector index of the specified type. Empty means memory.
func NewIndex(indexType string, dimensions int, opts HNSWOptions) (MutableIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeHNSW:
		return NewHNSWIndex(dimensions, opts)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, hnsw)", indexType)
	}
}
