package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/errs"
	"github.com/hyperjump/kensaku/internal/models"
)

const (
	// DefaultLimit is the number of results returned when Options.Limit is not set.
	DefaultLimit = 20
	// DefaultDimensions is the expected embedding dimension.
	DefaultDimensions = 768
	// chunkOverfetch widens the KNN query because several chunks of one document can
	// occupy the top slots; results are reduced to the best chunk per document.
	chunkOverfetch = 3
)

// Embedder produces query embeddings. embedding.Embedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Available(ctx context.Context) bool
	InstallHint() string
}

// Options filters and bounds a vector search.
type Options struct {
	Collection string
	Limit      int
	// MinSimilarity (0-100) drops rows less similar than this. Zero disables the filter.
	MinSimilarity float64
}

// Searcher embeds queries and runs them against a vector index.
type Searcher struct {
	index      Index
	embedder   Embedder
	docs       DocumentResolver
	dimensions int
	logger     *zap.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) {
		s.logger = logger
	}
}

// WithDimensions sets the expected embedding dimension (default 768).
func WithDimensions(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.dimensions = n
		}
	}
}

// NewSearcher creates a Searcher.
func NewSearcher(index Index, embedder Embedder, docs DocumentResolver, opts ...Option) *Searcher {
	s := &Searcher{
		index:      index,
		embedder:   embedder,
		docs:       docs,
		dimensions: DefaultDimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search embeds query and returns the nearest documents. It fails fast when the
// embedding service is unavailable; degrading gracefully is the caller's decision.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]*models.VectorResult, error) {
	const op = "vector.search"
	if s == nil || s.index == nil || s.docs == nil {
		return nil, errs.New(errs.KindNotInitialized, op, "no vector index configured")
	}
	if s.embedder == nil {
		return nil, errs.New(errs.KindNotInitialized, op, "no embedder configured")
	}
	if !s.embedder.Available(ctx) {
		return nil, errs.New(errs.KindUnavailable, op, "embedding service is not available").
			WithHint(s.embedder.InstallHint())
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		switch {
		case errs.IsKind(err, errs.KindTimeout), errs.IsKind(err, errs.KindUnavailable):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded):
			return nil, errs.Wrap(errs.KindTimeout, op, err)
		default:
			return nil, errs.Wrap(errs.KindEmbeddingFailed, op, err)
		}
	}
	return s.searchWithVector(ctx, op, vec, opts)
}

// SearchWithVector runs a KNN query with a precomputed embedding.
func (s *Searcher) SearchWithVector(ctx context.Context, vec []float32, opts Options) ([]*models.VectorResult, error) {
	const op = "vector.search_vector"
	if s == nil || s.index == nil || s.docs == nil {
		return nil, errs.New(errs.KindNotInitialized, op, "no vector index configured")
	}
	return s.searchWithVector(ctx, op, vec, opts)
}

func (s *Searcher) searchWithVector(ctx context.Context, op string, vec []float32, opts Options) ([]*models.VectorResult, error) {
	if len(vec) != s.dimensions {
		return nil, errs.New(errs.KindInvalidOptions, op,
			fmt.Sprintf("embedding dimension mismatch: got %d, expected %d", len(vec), s.dimensions))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	neighbors, err := s.index.KNN(ctx, EncodeVector(vec), limit*chunkOverfetch)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotLoaded), isMissingTable(err):
			return nil, errs.Wrap(errs.KindNotInitialized, op, err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, errs.Wrap(errs.KindTimeout, op, err)
		default:
			return nil, errs.Wrap(errs.KindQueryFailed, op, err)
		}
	}

	type hit struct {
		Neighbor
		hash string
	}
	hits := make([]hit, 0, len(neighbors))
	hashes := make([]string, 0, len(neighbors))
	seen := make(map[string]bool, len(neighbors))
	for _, n := range neighbors {
		hash, _, err := models.ParseChunkKey(n.Key)
		if err != nil {
			s.logger.Warn("Skipping vector with malformed key", zap.String("key", n.Key))
			continue
		}
		hits = append(hits, hit{Neighbor: n, hash: hash})
		if !seen[hash] {
			seen[hash] = true
			hashes = append(hashes, hash)
		}
	}

	docs, err := s.docs.ResolveDocuments(ctx, hashes, opts.Collection)
	if err != nil {
		return nil, errs.Wrap(errs.KindQueryFailed, op, err)
	}

	maxDistance := 2.0
	if opts.MinSimilarity > 0 {
		maxDistance = SimilarityToDistance(opts.MinSimilarity)
	}
	results := make([]*models.VectorResult, 0, limit)
	used := make(map[string]bool, limit)
	for _, h := range hits {
		doc, ok := docs[h.hash]
		if !ok || used[h.hash] {
			continue
		}
		// KNN is distance-ordered but not distance-filtered.
		if h.Distance > maxDistance {
			continue
		}
		used[h.hash] = true
		results = append(results, &models.VectorResult{
			Hash:       doc.Hash,
			Title:      doc.Title,
			Content:    doc.Content,
			Path:       doc.Path,
			ChunkKey:   h.Key,
			Similarity: DistanceToSimilarity(h.Distance),
			Distance:   h.Distance,
			Rank:       len(results) + 1,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// IsReady reports whether the vector index is queryable and, when checkEmbedder is set,
// whether the embedding service is reachable.
func (s *Searcher) IsReady(ctx context.Context, checkEmbedder bool) bool {
	if s == nil || s.index == nil {
		return false
	}
	if err := s.index.Probe(ctx); err != nil {
		s.logger.Debug("Vector index probe failed", zap.Error(err))
		return false
	}
	if checkEmbedder {
		return s.embedder != nil && s.embedder.Available(ctx)
	}
	return true
}

// Dimensions returns the expected embedding dimension.
func (s *Searcher) Dimensions() int {
	return s.dimensions
}

func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such module")
}
