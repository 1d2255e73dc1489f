package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kensaku/internal/errs"
	"github.com/hyperjump/kensaku/internal/models"
)

type fakeEmbedder struct {
	vec       []float32
	err       error
	available bool
	calls     int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}
func (f *fakeEmbedder) Available(context.Context) bool { return f.available }
func (f *fakeEmbedder) InstallHint() string            { return "ollama pull nomic-embed-text" }

type fakeResolver struct {
	docs        map[string]*models.Document
	collections map[string]map[string]bool
}

func (f *fakeResolver) ResolveDocuments(_ context.Context, hashes []string, collection string) (map[string]*models.Document, error) {
	out := map[string]*models.Document{}
	for _, h := range hashes {
		if d, ok := f.docs[h]; ok && (collection == "" || f.collections[collection][h]) {
			out[h] = d
		}
	}
	return out, nil
}

type fakeIndex struct {
	neighbors []Neighbor
	err       error
	k         int
}

func (f *fakeIndex) KNN(_ context.Context, _ []byte, k int) ([]Neighbor, error) {
	f.k = k
	return f.neighbors, f.err
}
func (f *fakeIndex) Probe(context.Context) error { return f.err }

func testResolver() *fakeResolver {
	return &fakeResolver{
		docs: map[string]*models.Document{
			"aaa": {Hash: "aaa", Title: "A", Path: "/a.md", Content: "alpha"},
			"bbb": {Hash: "bbb", Title: "B", Path: "/b.md", Content: "beta"},
			"ccc": {Hash: "ccc", Title: "C", Path: "/c.md", Content: "gamma"},
		},
		collections: map[string]map[string]bool{"work": {"bbb": true}},
	}
}

func newTestSearcher(idx Index, emb *fakeEmbedder) *Searcher {
	return NewSearcher(idx, emb, testResolver(), WithDimensions(3))
}

func TestSearcher_SearchRanksBestChunkPerDocument(t *testing.T) {
	idx := &fakeIndex{neighbors: []Neighbor{
		{Key: "aaa_2", Distance: 0.1},
		{Key: "aaa_0", Distance: 0.2},
		{Key: "gone_0", Distance: 0.3},
		{Key: "bbb_1", Distance: 0.5},
		{Key: "ccc_0", Distance: 1.2},
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0, 0}, available: true}

	results, err := newTestSearcher(idx, emb).Search(context.Background(), "query", Options{Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 15, idx.k)

	assert.Equal(t, "aaa", results[0].Hash)
	assert.Equal(t, "aaa_2", results[0].ChunkKey)
	assert.Equal(t, 1, results[0].Rank)
	assert.InDelta(t, 95, results[0].Similarity, 1e-9)
	assert.Equal(t, "/a.md", results[0].Path)

	assert.Equal(t, "bbb", results[1].Hash)
	assert.Equal(t, 2, results[1].Rank)
	assert.InDelta(t, 75, results[1].Similarity, 1e-9)
	assert.Equal(t, "ccc", results[2].Hash)
	assert.Equal(t, 3, results[2].Rank)
}

func TestSearcher_MinSimilarityAndCollection(t *testing.T) {
	idx := &fakeIndex{neighbors: []Neighbor{
		{Key: "aaa_0", Distance: 0.1},
		{Key: "bbb_0", Distance: 0.5},
		{Key: "ccc_0", Distance: 1.2},
	}}
	s := newTestSearcher(idx, &fakeEmbedder{available: true})
	ctx := context.Background()

	// 60% similarity is a maximum distance of 0.8.
	results, err := s.SearchWithVector(ctx, []float32{0, 1, 0}, Options{MinSimilarity: 60})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"aaa", "bbb"}, []string{results[0].Hash, results[1].Hash})
	assert.Equal(t, DefaultLimit*chunkOverfetch, idx.k)

	results, err = s.SearchWithVector(ctx, []float32{0, 1, 0}, Options{Collection: "work"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bbb", results[0].Hash)
	assert.Equal(t, 1, results[0].Rank)

	results, err = s.SearchWithVector(ctx, []float32{0, 1, 0}, Options{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearcher_DimensionMismatch(t *testing.T) {
	s := newTestSearcher(&fakeIndex{}, &fakeEmbedder{vec: []float32{1, 0}, available: true})
	_, err := s.Search(context.Background(), "q", Options{})
	assert.True(t, errs.IsKind(err, errs.KindInvalidOptions))

	_, err = s.SearchWithVector(context.Background(), make([]float32, 4), Options{})
	assert.True(t, errs.IsKind(err, errs.KindInvalidOptions))
}

func TestSearcher_EmbedderFailures(t *testing.T) {
	ctx := context.Background()

	emb := &fakeEmbedder{available: false}
	_, err := newTestSearcher(&fakeIndex{}, emb).Search(ctx, "q", Options{})
	assert.True(t, errs.IsKind(err, errs.KindUnavailable))
	assert.Equal(t, "ollama pull nomic-embed-text", errs.HintOf(err))
	assert.Zero(t, emb.calls, "unavailable embedder must not be called")

	_, err = newTestSearcher(&fakeIndex{}, &fakeEmbedder{available: true, err: errors.New("boom")}).Search(ctx, "q", Options{})
	assert.True(t, errs.IsKind(err, errs.KindEmbeddingFailed))

	timeout := errs.New(errs.KindTimeout, "ollama.embed", "deadline exceeded")
	_, err = newTestSearcher(&fakeIndex{}, &fakeEmbedder{available: true, err: timeout}).Search(ctx, "q", Options{})
	assert.True(t, errs.IsKind(err, errs.KindTimeout))

	_, err = newTestSearcher(&fakeIndex{}, &fakeEmbedder{available: true, err: context.DeadlineExceeded}).Search(ctx, "q", Options{})
	assert.True(t, errs.IsKind(err, errs.KindTimeout))
}

func TestSearcher_IndexFailures(t *testing.T) {
	ctx := context.Background()
	vec := []float32{1, 0, 0}

	_, err := newTestSearcher(&fakeIndex{err: ErrNotLoaded}, nil).SearchWithVector(ctx, vec, Options{})
	assert.True(t, errs.IsKind(err, errs.KindNotInitialized))

	_, err = newTestSearcher(&fakeIndex{err: errors.New("no such table: vectors")}, nil).SearchWithVector(ctx, vec, Options{})
	assert.True(t, errs.IsKind(err, errs.KindNotInitialized))

	_, err = newTestSearcher(&fakeIndex{err: errors.New("disk I/O error")}, nil).SearchWithVector(ctx, vec, Options{})
	assert.True(t, errs.IsKind(err, errs.KindQueryFailed))

	_, err = NewSearcher(nil, nil, nil).Search(ctx, "q", Options{})
	assert.ErrorIs(t, err, errs.ErrNotInitialized)
}

func TestSearcher_IsReady(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewMemoryIndex(3)

	s := NewSearcher(idx, &fakeEmbedder{available: false}, testResolver(), WithDimensions(3))
	assert.True(t, s.IsReady(ctx, false))
	assert.False(t, s.IsReady(ctx, true))

	s = NewSearcher(&fakeIndex{err: errors.New("no such table")}, &fakeEmbedder{available: true}, testResolver())
	assert.False(t, s.IsReady(ctx, false))
	assert.Equal(t, DefaultDimensions, s.Dimensions())

	assert.False(t, NewSearcher(nil, nil, nil).IsReady(ctx, false))
}

func TestSearcher_WithMemoryIndex(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx,
		[]string{"aaa_0", "bbb_0", "ccc_0"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {-1, 0, 0}},
	))
	s := NewSearcher(idx, &fakeEmbedder{vec: []float32{1, 0, 0}, available: true}, testResolver(), WithDimensions(3))

	results, err := s.Search(ctx, "alpha", Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.InDelta(t, 100, results[0].Similarity, 1e-9)
	assert.InDelta(t, 50, results[1].Similarity, 1e-9)
	assert.InDelta(t, 0, results[2].Similarity, 1e-9)
	assert.Equal(t, "ccc", results[2].Hash)
}
