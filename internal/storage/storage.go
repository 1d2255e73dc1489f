// Package storage persists documents, collections, chunks and embedding vectors, and
// serves the full-text index used by lexical search.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kensaku/internal/lexical"
	"github.com/hyperjump/kensaku/internal/models"
)

// ErrNotFound is returned when a document lookup matches nothing.
var ErrNotFound = errors.New("not found")

// VectorRecord is one stored chunk embedding, encoded as little-endian float32 bytes.
type VectorRecord struct {
	Key   string
	Hash  string
	Seq   int
	Model string
	Data  []byte
}

// Stats summarises the store contents.
type Stats struct {
	ActiveDocuments   int64 `json:"active_documents"`
	InactiveDocuments int64 `json:"inactive_documents"`
	Chunks            int64 `json:"chunks"`
	Vectors           int64 `json:"vectors"`
	Collections       int64 `json:"collections"`
	FullTextIndex     bool  `json:"full_text_index"`
}

// Store defines document, chunk and vector persistence.
type Store interface {
	lexical.Index

	// Documents. UpsertDocument replaces the active document at doc.Path and reports
	// whether anything changed.
	UpsertDocument(ctx context.Context, doc *models.Document) (bool, error)
	GetDocument(ctx context.Context, hash string) (*models.Document, error)
	GetActiveDocument(ctx context.Context, path string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	DeactivatePath(ctx context.Context, path string) (int64, error)
	DeleteDocument(ctx context.Context, hash string) error
	ResolveDocuments(ctx context.Context, hashes []string, collection string) (map[string]*models.Document, error)

	// Collections
	EnsureCollection(ctx context.Context, name, path string) error
	AddToCollection(ctx context.Context, name, hash string) error
	ListCollections(ctx context.Context) ([]*models.Collection, error)

	// Chunks
	ReplaceChunks(ctx context.Context, hash string, chunks []models.Chunk) error
	GetChunks(ctx context.Context, hash string) ([]models.Chunk, error)

	// Vectors
	SaveVectors(ctx context.Context, records []VectorRecord) error
	DeleteVectors(ctx context.Context, hash string) error
	LoadVectors(ctx context.Context, fn func(key string, data []byte) error) error
	ProbeVectors(ctx context.Context) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
