// Package search fuses lexical and vector rankings into one result list with reciprocal rank fusion.
package search

import (
	"sort"

	"github.com/hyperjump/kensaku/internal/models"
)

// RRFContribution is one list's share of a document's fused score.
func RRFContribution(k, rank int) float64 {
	return 1.0 / float64(k+rank)
}

// fusion accumulates candidates by document hash in first-seen order.
type fusion struct {
	k      int
	order  []*models.FusedResult
	byHash map[string]*models.FusedResult
}

func newFusion(k int) *fusion {
	return &fusion{k: k, byHash: make(map[string]*models.FusedResult)}
}

func (f *fusion) record(hash, title, path, content string) *models.FusedResult {
	r, ok := f.byHash[hash]
	if !ok {
		r = &models.FusedResult{Hash: hash, Title: title, Path: path, Content: content}
		f.byHash[hash] = r
		f.order = append(f.order, r)
	}
	if r.Content == "" {
		r.Content = content
	}
	return r
}

func (f *fusion) add(c models.Candidate) {
	switch c.Source {
	case models.SourceLexical:
		l := c.Lexical
		r := f.record(l.Hash, l.Title, l.Path, l.Content)
		score, rank := l.Score, l.Rank
		r.LexicalScore, r.LexicalRank = &score, &rank
		if l.Snippet != "" {
			r.Snippet = l.Snippet
		}
	case models.SourceVector:
		v := c.Vector
		r := f.record(v.Hash, v.Title, v.Path, v.Content)
		sim, rank := v.Similarity, v.Rank
		r.VectorScore, r.VectorRank = &sim, &rank
	default:
		return
	}
	r := f.byHash[c.Hash()]
	r.RRFScore += RRFContribution(f.k, c.Rank())
	r.Sources = append(r.Sources, c.Source)
}

// Candidates tags both lists, lexical first, in their rank order.
func Candidates(lexical []*models.LexicalResult, vector []*models.VectorResult) []models.Candidate {
	out := make([]models.Candidate, 0, len(lexical)+len(vector))
	for _, r := range lexical {
		out = append(out, models.LexicalCandidate(r))
	}
	for _, r := range vector {
		out = append(out, models.VectorCandidate(r))
	}
	return out
}

// Fuse merges ranked candidates with reciprocal rank fusion. Each occurrence of a document adds
// 1/(k+rank) to its score. Results are sorted by fused score, ties keeping accumulation order,
// normalised to 0-100 within this result set, and ranked from 1.
func Fuse(candidates []models.Candidate, k int) []*models.FusedResult {
	if k <= 0 {
		k = DefaultRRFK
	}
	f := newFusion(k)
	for _, c := range candidates {
		f.add(c)
	}
	results := f.order
	for _, r := range results {
		if r.Snippet == "" {
			r.Snippet = Highlight(r.Content, SnippetLength)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RRFScore > results[j].RRFScore
	})
	Normalize(results)
	for i, r := range results {
		r.Rank = i + 1
	}
	return results
}

// Normalize sets Score to the min/max-scaled RRF score on a 0-100 scale. When every score is
// equal the range is taken as 1, so all results score 0.
func Normalize(results []*models.FusedResult) {
	if len(results) == 0 {
		return
	}
	lo, hi := results[0].RRFScore, results[0].RRFScore
	for _, r := range results[1:] {
		lo = min(lo, r.RRFScore)
		hi = max(hi, r.RRFScore)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	for _, r := range results {
		r.Score = (r.RRFScore - lo) / span * 100
	}
}

// filterAndLimit drops results below minScore and keeps the first limit.
func filterAndLimit(results []*models.FusedResult, minScore float64, limit int) ([]*models.FusedResult, int) {
	if minScore > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= minScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	total := len(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, total
}

// Stats summarises a fused result set for diagnostics.
type Stats struct {
	Total       int     `json:"total"`
	Both        int     `json:"both"`
	LexicalOnly int     `json:"lexical_only"`
	VectorOnly  int     `json:"vector_only"`
	AvgRRF      float64 `json:"avg_rrf"`
	MaxRRF      float64 `json:"max_rrf"`
	MinRRF      float64 `json:"min_rrf"`
}

// ComputeStats counts results by source and summarises their raw RRF scores.
func ComputeStats(results []*models.FusedResult) Stats {
	s := Stats{Total: len(results)}
	if len(results) == 0 {
		return s
	}
	s.MaxRRF, s.MinRRF = results[0].RRFScore, results[0].RRFScore
	var sum float64
	for _, r := range results {
		switch {
		case r.InBoth():
			s.Both++
		case r.LexicalRank != nil:
			s.LexicalOnly++
		case r.VectorRank != nil:
			s.VectorOnly++
		}
		sum += r.RRFScore
		s.MaxRRF = max(s.MaxRRF, r.RRFScore)
		s.MinRRF = min(s.MinRRF, r.RRFScore)
	}
	s.AvgRRF = sum / float64(len(results))
	return s
}
