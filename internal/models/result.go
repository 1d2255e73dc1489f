package models

// LexicalResult is a single full-text hit. Score is the display score (0-100); RawScore is
// the engine's native relevance where more negative is better.
type LexicalResult struct {
	Hash     string  `json:"hash"`
	Title    string  `json:"title"`
	Content  string  `json:"content,omitempty"`
	Path     string  `json:"path"`
	Score    float64 `json:"score"`
	RawScore float64 `json:"raw_score"`
	Rank     int     `json:"rank"`
	Snippet  string  `json:"snippet,omitempty"`
}

// VectorResult is a single nearest-neighbour hit. Similarity is 0-100; Distance is the
// cosine distance in [0,2] reported by the vector index.
type VectorResult struct {
	Hash       string  `json:"hash"`
	Title      string  `json:"title"`
	Content    string  `json:"content,omitempty"`
	Path       string  `json:"path"`
	ChunkKey   string  `json:"chunk_key"`
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
	Rank       int     `json:"rank"`
}

// Source tags where a candidate came from.
type Source string

const (
	SourceLexical Source = "lexical"
	SourceVector  Source = "vector"
)

// Candidate is a ranked result from exactly one search method. Source says which of
// Lexical or Vector is set.
type Candidate struct {
	Source  Source
	Lexical *LexicalResult
	Vector  *VectorResult
}

// LexicalCandidate wraps a lexical hit.
func LexicalCandidate(r *LexicalResult) Candidate {
	return Candidate{Source: SourceLexical, Lexical: r}
}

// VectorCandidate wraps a vector hit.
func VectorCandidate(r *VectorResult) Candidate {
	return Candidate{Source: SourceVector, Vector: r}
}

// Hash returns the parent document hash regardless of source.
func (c Candidate) Hash() string {
	switch c.Source {
	case SourceLexical:
		return c.Lexical.Hash
	case SourceVector:
		return c.Vector.Hash
	}
	return ""
}

// Rank returns the 1-based rank within the candidate's source list.
func (c Candidate) Rank() int {
	switch c.Source {
	case SourceLexical:
		return c.Lexical.Rank
	case SourceVector:
		return c.Vector.Rank
	}
	return 0
}

// FusedResult is one document after reciprocal rank fusion. Lexical and vector fields are
// nil when the document did not appear in that list.
type FusedResult struct {
	Hash         string   `json:"hash"`
	Title        string   `json:"title"`
	Content      string   `json:"-"`
	Path         string   `json:"path"`
	RRFScore     float64  `json:"rrf_score"`
	Score        float64  `json:"score"`
	LexicalScore *float64 `json:"lexical_score,omitempty"`
	LexicalRank  *int     `json:"lexical_rank,omitempty"`
	VectorScore  *float64 `json:"vector_score,omitempty"`
	VectorRank   *int     `json:"vector_rank,omitempty"`
	Rank         int      `json:"rank"`
	Snippet      string   `json:"snippet"`
	Sources      []Source `json:"sources"`
}

// InBoth reports whether both methods found the document.
func (r *FusedResult) InBoth() bool {
	return r.LexicalRank != nil && r.VectorRank != nil
}

// SearchResponse is the response for a hybrid search request.
type SearchResponse struct {
	QueryID   string         `json:"query_id"`
	Query     string         `json:"query"`
	Results   []*FusedResult `json:"results"`
	Total     int            `json:"total"`
	QueryTime int64          `json:"query_time_ms"`
}
