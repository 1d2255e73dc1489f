package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kensaku/internal/models"
)

func lex(hash string, rank int) *models.LexicalResult {
	return &models.LexicalResult{Hash: hash, Title: hash, Path: "/" + hash, Content: "content of " + hash, Rank: rank, Score: 100 / float64(rank+1)}
}

func vec(hash string, rank int) *models.VectorResult {
	return &models.VectorResult{Hash: hash, Title: hash, Path: "/" + hash, Content: "content of " + hash, Rank: rank, Similarity: 100 - float64(rank)}
}

func byHash(results []*models.FusedResult) map[string]*models.FusedResult {
	m := make(map[string]*models.FusedResult, len(results))
	for _, r := range results {
		m[r.Hash] = r
	}
	return m
}

func TestRRFContribution(t *testing.T) {
	assert.InDelta(t, 1.0/61, RRFContribution(60, 1), 1e-12)
	assert.InDelta(t, 1.0/3, RRFContribution(1, 2), 1e-12)
}

func TestFuse_Monotonicity(t *testing.T) {
	results := Fuse(Candidates([]*models.LexicalResult{
		lex("a", 1), lex("b", 2), lex("c", 3), lex("d", 4), lex("e", 5),
	}, nil), 60)
	m := byHash(results)
	assert.Greater(t, m["a"].RRFScore, m["e"].RRFScore)
	assert.Equal(t, "a", results[0].Hash)
	assert.Equal(t, "e", results[4].Hash)
}

func TestFuse_DualPresenceBoost(t *testing.T) {
	for _, k := range []int{1, 10, 60, 1000} {
		results := Fuse(Candidates(
			[]*models.LexicalResult{lex("x", 1), lex("y", 2), lex("both", 3)},
			[]*models.VectorResult{vec("p", 1), vec("q", 2), vec("both", 3), vec("single", 4)},
		), k)
		m := byHash(results)
		single := Fuse(Candidates([]*models.LexicalResult{lex("solo", 3)}, nil), k)[0]
		assert.Greater(t, m["both"].RRFScore, single.RRFScore, "k=%d", k)
		assert.InDelta(t, 2*RRFContribution(k, 3), m["both"].RRFScore, 1e-12)
		assert.True(t, m["both"].InBoth())
		assert.Equal(t, []models.Source{models.SourceLexical, models.SourceVector}, m["both"].Sources)
	}
}

func TestFuse_NormalizationBounds(t *testing.T) {
	results := Fuse(Candidates(
		[]*models.LexicalResult{lex("a", 1), lex("b", 2)},
		[]*models.VectorResult{vec("a", 1), vec("c", 2)},
	), 60)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Hash)
	assert.InDelta(t, 100, results[0].Score, 1e-9)
	assert.InDelta(t, 0, results[len(results)-1].Score, 1e-9)
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 100.0)
	}
}

func TestFuse_EqualScoresNormalizeToZero(t *testing.T) {
	results := Fuse(Candidates(
		[]*models.LexicalResult{lex("a", 1)},
		[]*models.VectorResult{vec("b", 1)},
	), 60)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, 0.0, r.Score)
	}
	assert.Equal(t, "a", results[0].Hash, "ties keep lexical-first accumulation order")
	assert.Equal(t, "b", results[1].Hash)
}

func TestFuse_SingleResult(t *testing.T) {
	results := Fuse(Candidates(nil, []*models.VectorResult{vec("only", 1)}), 60)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)
	assert.Equal(t, 1, results[0].Rank)
}

func TestFuse_FieldsAndSnippets(t *testing.T) {
	l := lex("a", 1)
	l.Snippet = "the <mark>match</mark>"
	long := vec("b", 1)
	long.Content = strings.Repeat("word ", 100)

	results := Fuse(Candidates([]*models.LexicalResult{l}, []*models.VectorResult{vec("a", 2), long}), 60)
	m := byHash(results)

	a := m["a"]
	assert.Equal(t, "the <mark>match</mark>", a.Snippet)
	require.NotNil(t, a.LexicalRank)
	require.NotNil(t, a.VectorRank)
	assert.Equal(t, 1, *a.LexicalRank)
	assert.Equal(t, 2, *a.VectorRank)
	assert.Equal(t, l.Score, *a.LexicalScore)
	assert.Equal(t, 98.0, *a.VectorScore)

	b := m["b"]
	assert.Nil(t, b.LexicalRank)
	assert.Nil(t, b.LexicalScore)
	assert.Len(t, []rune(b.Snippet), SnippetLength+3)
	assert.Contains(t, b.Snippet, "...")
}

func TestFuse_Deterministic(t *testing.T) {
	build := func() []*models.FusedResult {
		return Fuse(Candidates(
			[]*models.LexicalResult{lex("a", 1), lex("b", 2), lex("c", 3)},
			[]*models.VectorResult{vec("c", 1), vec("b", 2), vec("d", 3)},
		), 60)
	}
	first, second := build(), build()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Hash, second[i].Hash)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestFilterAndLimit(t *testing.T) {
	results := Fuse(Candidates([]*models.LexicalResult{lex("a", 1), lex("b", 2), lex("c", 3), lex("d", 4)}, nil), 1)
	kept, total := filterAndLimit(results, 50, 10)
	assert.Equal(t, total, len(kept))
	for _, r := range kept {
		assert.GreaterOrEqual(t, r.Score, 50.0)
	}
	assert.Equal(t, "a", kept[0].Hash)

	limited, total := filterAndLimit(Fuse(Candidates([]*models.LexicalResult{lex("a", 1), lex("b", 2), lex("c", 3)}, nil), 60), 0, 2)
	assert.Len(t, limited, 2)
	assert.Equal(t, 3, total)
}

func TestComputeStats(t *testing.T) {
	results := Fuse(Candidates(
		[]*models.LexicalResult{lex("a", 1), lex("b", 2)},
		[]*models.VectorResult{vec("a", 1), vec("c", 2), vec("d", 3)},
	), 60)
	s := ComputeStats(results)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Both)
	assert.Equal(t, 1, s.LexicalOnly)
	assert.Equal(t, 2, s.VectorOnly)
	assert.InDelta(t, 2.0/61, s.MaxRRF, 1e-12)
	assert.InDelta(t, 1.0/63, s.MinRRF, 1e-12)
	assert.Greater(t, s.AvgRRF, s.MinRRF)
	assert.Less(t, s.AvgRRF, s.MaxRRF)

	assert.Equal(t, Stats{}, ComputeStats(nil))
}
