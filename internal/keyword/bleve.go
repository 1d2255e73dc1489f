// Package keyword provides a Bleve implementation of the lexical index.
package keyword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kensaku/internal/lexical"
	"github.com/hyperjump/kensaku/internal/models"
)

// DocumentResolver looks up active document metadata, optionally within a collection.
type DocumentResolver interface {
	ResolveDocuments(ctx context.Context, hashes []string, collection string) (map[string]*models.Document, error)
}

// BleveIndex implements lexical.Index using Bleve. Bleve only stores title and content;
// activity and collection membership come from the DocumentResolver.
type BleveIndex struct {
	index     bleve.Index
	docs      DocumentResolver
	fuzziness int
}

var _ lexical.Index = (*BleveIndex)(nil)

// BleveOption configures a BleveIndex.
type BleveOption func(*BleveIndex)

// WithFuzziness enables fuzzy term matching with the given Levenshtein distance (1 or 2).
func WithFuzziness(n int) BleveOption {
	return func(b *BleveIndex) {
		if n > 2 {
			n = 2
		}
		b.fuzziness = n
	}
}

type bleveDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func indexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "bayes" matches "Bayes"
	// without stemming surprises.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an
// in-memory index.
func NewBleveIndex(path string, docs DocumentResolver, opts ...BleveOption) (*BleveIndex, error) {
	b := &BleveIndex{docs: docs}
	for _, opt := range opts {
		opt(b)
	}

	var err error
	switch {
	case path == "":
		b.index, err = bleve.NewMemOnly(indexMapping())
	case exists(path):
		b.index, err = bleve.Open(path)
	default:
		b.index, err = bleve.New(path, indexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	return b, nil
}

// Index adds or replaces a document keyed by its hash.
func (b *BleveIndex) Index(_ context.Context, doc *models.Document) error {
	return b.index.Index(doc.Hash, bleveDocument{Title: doc.Title, Content: doc.Content})
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(_ context.Context, hash string) error {
	return b.index.Delete(hash)
}

// DocCount returns the number of indexed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// Query implements lexical.Index. Bleve scores are positive and higher is better, so they
// are negated into the "more negative is better" convention.
func (b *BleveIndex) Query(ctx context.Context, req lexical.Request) ([]lexical.Row, error) {
	if b == nil || b.index == nil {
		return nil, lexical.ErrIndexMissing
	}
	limit := req.Limit
	if limit <= 0 {
		limit = lexical.DefaultLimit
	}

	// Over-fetch: inactive and out-of-collection hits are dropped after resolving.
	size := limit * 2
	if size < 50 {
		size = 50
	}
	search := bleve.NewSearchRequestOptions(b.buildQuery(req), size, 0, false)
	if req.Snippets {
		search.Highlight = bleve.NewHighlightWithStyle(html.Name)
		search.Highlight.AddField("content")
	}
	results, err := b.index.SearchInContext(ctx, search)
	if errors.Is(err, bleve.ErrorIndexClosed) {
		return nil, fmt.Errorf("%w: %v", lexical.ErrIndexMissing, err)
	}
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	hashes := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		hashes = append(hashes, hit.ID)
	}
	docs, err := b.docs.ResolveDocuments(ctx, hashes, req.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve documents: %w", err)
	}

	rows := make([]lexical.Row, 0, limit)
	for _, hit := range results.Hits {
		doc, ok := docs[hit.ID]
		if !ok {
			continue
		}
		raw := -hit.Score
		if req.MaxAbsScore != nil && hit.Score > *req.MaxAbsScore {
			continue
		}
		row := lexical.Row{Hash: doc.Hash, Title: doc.Title, Content: doc.Content, Path: doc.Path, Score: raw}
		if req.Snippets {
			row.Snippet = strings.Join(hit.Fragments["content"], lexical.Ellipsis)
		}
		rows = append(rows, row)
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

// buildQuery uses Bleve's query-string syntax when the caller wrote explicit syntax and a
// match (or fuzzy) query otherwise.
func (b *BleveIndex) buildQuery(req lexical.Request) blevequery.Query {
	field := string(req.Field)
	if field == "" && lexical.HasExplicitSyntax(req.Query) {
		return bleve.NewQueryStringQuery(req.Query)
	}
	if b.fuzziness > 0 {
		return buildFuzzyQuery(req.Query, b.fuzziness, field)
	}
	mq := bleve.NewMatchQuery(req.Query)
	if field != "" {
		mq.SetField(field)
	}
	return mq
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per term.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := strings.Fields(strings.ToLower(queryStr))
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
