// Package models defines core data structures for documents, chunks, queries, and search results.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// hashLength is the number of hex characters kept from the content digest.
const hashLength = 12

// Document is one indexed version of a source file. A new hash is produced whenever the
// content changes; at most one document per Path is active at a time.
type Document struct {
	Hash      string    `json:"hash" db:"hash"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	Path      string    `json:"path" db:"path"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	IndexedAt time.Time `json:"indexed_at,omitempty" db:"indexed_at"`
}

// Chunk is a contiguous, position-tracked slice of a document's content.
type Chunk struct {
	Hash   string `json:"hash" db:"hash"`
	Seq    int    `json:"seq" db:"seq"`
	Pos    int    `json:"pos" db:"pos"`
	Text   string `json:"text" db:"text"`
	Tokens int    `json:"tokens" db:"tokens"`
}

// Key returns the composite key "{hash}_{seq}" used to address the chunk's embedding.
func (c Chunk) Key() string {
	return ChunkKey(c.Hash, c.Seq)
}

// ChunkKey builds the composite chunk key.
func ChunkKey(hash string, seq int) string {
	return hash + "_" + strconv.Itoa(seq)
}

// ParseChunkKey splits a composite chunk key on its last underscore.
func ParseChunkKey(key string) (hash string, seq int, err error) {
	i := strings.LastIndexByte(key, '_')
	if i <= 0 || i == len(key)-1 {
		return "", 0, fmt.Errorf("invalid chunk key: %q", key)
	}
	seq, err = strconv.Atoi(key[i+1:])
	if err != nil || seq < 0 {
		return "", 0, fmt.Errorf("invalid chunk key: %q", key)
	}
	return key[:i], seq, nil
}

// ContentHash returns the short deterministic digest that identifies a document version.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// Collection is a named group of documents rooted at a directory.
type Collection struct {
	Name      string    `json:"name" db:"name"`
	Path      string    `json:"path" db:"path"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for indexing a document through the API.
type DocumentInput struct {
	Path       string `json:"path"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
	Collection string `json:"collection,omitempty"`
}
