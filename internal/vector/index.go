// Package vector implements nearest-neighbour search over chunk embeddings and the vector
// indexes behind it.
package vector

import (
	"context"
	"errors"

	"github.com/hyperjump/kensaku/internal/models"
)

// ErrNotLoaded is returned by an index that has not been loaded from its source.
var ErrNotLoaded = errors.New("vector index not loaded")

// Neighbor is one KNN hit: a chunk key and its cosine distance in [0,2].
type Neighbor struct {
	Key      string
	Distance float64
}

// Index answers k-nearest-neighbour queries over encoded vectors, best match first.
type Index interface {
	KNN(ctx context.Context, encoded []byte, k int) ([]Neighbor, error)
	// Probe checks that the index and its backing table are queryable.
	Probe(ctx context.Context) error
}

// MutableIndex is an Index the indexing pipeline can write to.
type MutableIndex interface {
	Index
	Add(ctx context.Context, keys []string, vectors [][]float32) error
	// RemoveDocument drops every chunk vector of a document.
	RemoveDocument(ctx context.Context, hash string) error
	// Load replaces the index contents with the vectors in source.
	Load(ctx context.Context, source Source) error
	Size() int
	Close() error
}

// Source is persistent vector storage, such as the SQLite vectors table.
type Source interface {
	LoadVectors(ctx context.Context, fn func(key string, data []byte) error) error
	ProbeVectors(ctx context.Context) error
}

// DocumentResolver looks up active document metadata, optionally within a collection.
type DocumentResolver interface {
	ResolveDocuments(ctx context.Context, hashes []string, collection string) (map[string]*models.Document, error)
}
