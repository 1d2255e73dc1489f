package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/errs"
	"github.com/hyperjump/kensaku/internal/lexical"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

type fakeLexical struct {
	results []*models.LexicalResult
	err     error
	wait    func(ctx context.Context) error
	calls   atomic.Int32
	opts    lexical.Options
}

func (f *fakeLexical) SearchWithSnippets(ctx context.Context, _ string, opts lexical.Options) ([]*models.LexicalResult, error) {
	f.calls.Add(1)
	f.opts = opts
	if f.wait != nil {
		if err := f.wait(ctx); err != nil {
			return nil, err
		}
	}
	return f.results, f.err
}

type fakeVector struct {
	results    []*models.VectorResult
	err        error
	wait       func(ctx context.Context) error
	calls      atomic.Int32
	withVector atomic.Int32
}

func (f *fakeVector) Search(ctx context.Context, _ string, _ vector.Options) ([]*models.VectorResult, error) {
	f.calls.Add(1)
	if f.wait != nil {
		if err := f.wait(ctx); err != nil {
			return nil, err
		}
	}
	return f.results, f.err
}

func (f *fakeVector) SearchWithVector(ctx context.Context, _ []float32, opts vector.Options) ([]*models.VectorResult, error) {
	f.withVector.Add(1)
	return f.Search(ctx, "", opts)
}

func threeVectorResults() []*models.VectorResult {
	return []*models.VectorResult{vec("v1", 1), vec("v2", 2), vec("v3", 3)}
}

func TestEngine_InvalidOptionsRejectedBeforeBranches(t *testing.T) {
	lexFake, vecFake := &fakeLexical{}, &fakeVector{}
	e := NewEngine(lexFake, vecFake)

	opts := DefaultOptions()
	opts.EnableLexical, opts.EnableVector = false, false
	_, err := e.Search(context.Background(), "q", opts)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvalidOptions))

	opts = DefaultOptions()
	opts.RRFK = 0
	_, err = e.Search(context.Background(), "q", opts)
	assert.True(t, errs.IsKind(err, errs.KindInvalidOptions))

	opts = DefaultOptions()
	opts.RRFK = -5
	_, err = e.Search(context.Background(), "q", opts)
	assert.True(t, errs.IsKind(err, errs.KindInvalidOptions))

	assert.Equal(t, int32(0), lexFake.calls.Load())
	assert.Equal(t, int32(0), vecFake.calls.Load())
}

func TestEngine_GracefulDegradation(t *testing.T) {
	lexFake := &fakeLexical{err: errs.New(errs.KindQueryFailed, "lexical.search", "disk on fire")}
	vecFake := &fakeVector{results: threeVectorResults()}
	e := NewEngine(lexFake, vecFake, WithLogger(zaptest.NewLogger(t)), WithMetrics(metrics.New()))

	resp, err := e.Search(context.Background(), "q", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	for i, r := range resp.Results {
		assert.Equal(t, []string{"v1", "v2", "v3"}[i], r.Hash)
		assert.Nil(t, r.LexicalRank)
		assert.Nil(t, r.LexicalScore)
		require.NotNil(t, r.VectorRank)
		assert.Equal(t, i+1, *r.VectorRank)
	}
	assert.NotEmpty(t, resp.QueryID)
	assert.Equal(t, int32(1), lexFake.calls.Load())
}

func TestEngine_FailStrategyPropagates(t *testing.T) {
	lexFake := &fakeLexical{err: errs.New(errs.KindQueryFailed, "lexical.search", "boom")}
	vecFake := &fakeVector{results: threeVectorResults()}
	e := NewEngine(lexFake, vecFake)

	opts := DefaultOptions()
	opts.Fallback = FallbackFail
	_, err := e.Search(context.Background(), "q", opts)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindQueryFailed))
}

func TestEngine_NoResults(t *testing.T) {
	e := NewEngine(&fakeLexical{}, &fakeVector{})

	resp, err := e.Search(context.Background(), "q", DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.Total)

	opts := DefaultOptions()
	opts.Fallback = FallbackFail
	_, err = e.Search(context.Background(), "q", opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNoResults))
}

func TestEngine_BothBranchesFailGracefully(t *testing.T) {
	e := NewEngine(
		&fakeLexical{err: errors.New("lexical down")},
		&fakeVector{err: errs.New(errs.KindUnavailable, "vector.search", "no ollama").WithHint("ollama pull x")},
	)
	resp, err := e.Search(context.Background(), "q", DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestEngine_DisabledBranchNotInvoked(t *testing.T) {
	lexFake := &fakeLexical{results: []*models.LexicalResult{lex("a", 1)}}
	vecFake := &fakeVector{results: threeVectorResults()}
	e := NewEngine(lexFake, vecFake)

	opts := DefaultOptions()
	opts.EnableVector = false
	resp, err := e.Search(context.Background(), "q", opts)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].Hash)
	assert.Equal(t, int32(0), vecFake.calls.Load())

	opts = DefaultOptions()
	opts.EnableLexical = false
	_, err = e.Search(context.Background(), "q", opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), lexFake.calls.Load())
}

func TestEngine_NilSearcherIsNotInitialized(t *testing.T) {
	e := NewEngine(nil, &fakeVector{results: threeVectorResults()})

	resp, err := e.Search(context.Background(), "q", DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)

	opts := DefaultOptions()
	opts.Fallback = FallbackFail
	_, err = e.Search(context.Background(), "q", opts)
	assert.True(t, errs.IsKind(err, errs.KindNotInitialized))
}

func TestEngine_BranchesRunConcurrently(t *testing.T) {
	lexStarted, vecStarted := make(chan struct{}), make(chan struct{})
	waitFor := func(mine, other chan struct{}) func(context.Context) error {
		return func(ctx context.Context) error {
			close(mine)
			select {
			case <-other:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("other branch never started")
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	lexFake := &fakeLexical{results: []*models.LexicalResult{lex("a", 1)}, wait: waitFor(lexStarted, vecStarted)}
	vecFake := &fakeVector{results: []*models.VectorResult{vec("b", 1)}, wait: waitFor(vecStarted, lexStarted)}
	e := NewEngine(lexFake, vecFake)

	opts := DefaultOptions()
	opts.Fallback = FallbackFail
	resp, err := e.Search(context.Background(), "q", opts)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestEngine_BranchTimeout(t *testing.T) {
	hang := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	lexFake := &fakeLexical{wait: hang}
	vecFake := &fakeVector{results: threeVectorResults()}
	e := NewEngine(lexFake, vecFake, WithBranchTimeout(20*time.Millisecond))

	start := time.Now()
	resp, err := e.Search(context.Background(), "q", DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	assert.Less(t, time.Since(start), 2*time.Second)

	opts := DefaultOptions()
	opts.Fallback = FallbackFail
	_, err = e.Search(context.Background(), "q", opts)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindTimeout))
}

func TestEngine_CandidateLimitAndFilters(t *testing.T) {
	lexFake := &fakeLexical{results: []*models.LexicalResult{lex("a", 1), lex("b", 2), lex("c", 3)}}
	vecFake := &fakeVector{results: []*models.VectorResult{vec("a", 1)}}
	e := NewEngine(lexFake, vecFake)

	opts := DefaultOptions()
	opts.Limit = 2
	opts.CandidateLimit = 40
	opts.Collection = "notes"
	opts.LexicalMinScore = 5
	resp, err := e.Search(context.Background(), "q", opts)
	require.NoError(t, err)
	assert.Equal(t, lexical.Options{Collection: "notes", MinScore: 5, Limit: 40}, lexFake.opts)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "a", resp.Results[0].Hash)
	assert.Equal(t, 100.0, resp.Results[0].Score)

	opts.MinScore = 100
	resp, err = e.Search(context.Background(), "q", opts)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].Hash)
}

func TestEngine_QueryVectorSkipsEmbedding(t *testing.T) {
	vecFake := &fakeVector{results: threeVectorResults()}
	e := NewEngine(nil, vecFake)

	opts := DefaultOptions()
	opts.EnableLexical = false
	opts.QueryVector = []float32{1, 0}
	_, err := e.Search(context.Background(), "", opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), vecFake.withVector.Load())
}

func TestEngine_EndToEnd(t *testing.T) {
	ctx := context.Background()
	const dims = 8

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	docA := &models.Document{Path: "/docs/a.txt", Title: "a", Content: "Cats are mammals. Dogs are mammals too."}
	docB := &models.Document{Path: "/docs/b.txt", Title: "b", Content: "The stock market rose today."}
	for _, d := range []*models.Document{docA, docB} {
		_, err := store.UpsertDocument(ctx, d)
		require.NoError(t, err)
	}

	emb := embedding.NewMockEmbedder(dims)
	index, err := vector.NewMemoryIndex(dims)
	require.NoError(t, err)
	embA, err := emb.Embed(ctx, docA.Content)
	require.NoError(t, err)
	embB, err := emb.Embed(ctx, docB.Content)
	require.NoError(t, err)
	require.NoError(t, index.Add(ctx,
		[]string{models.ChunkKey(docA.Hash, 0), models.ChunkKey(docB.Hash, 0)},
		[][]float32{embA, embB},
	))

	e := NewEngine(
		lexical.NewSearcher(store),
		vector.NewSearcher(index, emb, store, vector.WithDimensions(dims)),
	)

	opts := DefaultOptions()
	opts.EnableVector = false
	resp, err := e.Search(ctx, "mammals", opts)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, docA.Hash, resp.Results[0].Hash)
	assert.Equal(t, 1, resp.Results[0].Rank)
	for _, r := range resp.Results {
		assert.NotEqual(t, docB.Hash, r.Hash)
	}

	query := append([]float32(nil), embA...)
	query[0] += 0.01
	opts = DefaultOptions()
	opts.EnableLexical = false
	opts.QueryVector = query
	resp, err = e.Search(ctx, "", opts)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	top := resp.Results[0]
	assert.Equal(t, docA.Hash, top.Hash)
	assert.Equal(t, 1, top.Rank)
	require.NotNil(t, top.VectorScore)
	assert.Greater(t, *top.VectorScore, 90.0)

	resp, err = e.Search(ctx, "mammals", DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, docA.Hash, resp.Results[0].Hash)
}

func TestEngine_FreeTextColonMatchesFTS(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	doc := &models.Document{Path: "/notes/q3.md", Title: "Q3 notes", Content: "Note: the budget meeting moved to Friday."}
	_, err = store.UpsertDocument(ctx, doc)
	require.NoError(t, err)

	e := NewEngine(lexical.NewSearcher(store), nil)
	opts := DefaultOptions()
	opts.EnableVector = false
	for _, q := range []string{"note: budget meeting", "title:notes"} {
		resp, err := e.Search(ctx, q, opts)
		require.NoError(t, err, "query %q", q)
		require.NotEmpty(t, resp.Results, "query %q", q)
		assert.Equal(t, doc.Hash, resp.Results[0].Hash, "query %q", q)
	}
}
