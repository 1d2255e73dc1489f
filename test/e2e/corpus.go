// Package e2e runs the full index and search pipeline over a fixed corpus of documents.
package e2e

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
)

// Document is one corpus entry. Name becomes the file name (without extension).
type Document struct {
	Name    string
	Title   string
	Content string
}

// QueryTestCase is a query whose results must include at least one of ExpectedNames.
type QueryTestCase struct {
	Query         string
	ExpectedNames []string
	Description   string
}

// Corpus holds documents and the queries that should find them.
type Corpus struct {
	Documents []Document
	TestCases []QueryTestCase
}

type topic struct {
	title   string
	phrase  string
	content string
}

var topics = []topic{
	{"Go Concurrency", "goroutines channels", "Go schedules goroutines onto OS threads. Goroutines channels and select statements coordinate concurrent work."},
	{"SQLite Internals", "SQLite write-ahead log", "SQLite stores a database in a single file. The SQLite write-ahead log lets readers proceed while a writer commits."},
	{"Full-Text Search", "inverted index postings", "Full-text engines map terms to documents. An inverted index postings list records where each term occurs."},
	{"BM25 Ranking", "BM25 term saturation", "BM25 scores documents by term frequency and length. BM25 term saturation stops repeated words from dominating."},
	{"Reciprocal Rank Fusion", "reciprocal rank fusion", "Fusion merges ranked lists from different retrievers. Reciprocal rank fusion sums one over k plus rank."},
	{"Cosine Similarity", "cosine similarity angle", "Embeddings are compared by direction. Cosine similarity angle ignores vector magnitude."},
	{"HNSW Graphs", "hierarchical navigable small world", "Approximate nearest neighbour search trades recall for speed. A hierarchical navigable small world graph links close vectors in layers."},
	{"Text Chunking", "chunk overlap boundaries", "Long documents are split before embedding. Chunk overlap boundaries keep sentences that straddle a split searchable."},
	{"Tokenization", "subword tokenization vocabulary", "Models read tokens, not characters. Subword tokenization vocabulary splits rare words into known pieces."},
	{"Embedding Models", "sentence embedding model", "A sentence embedding model maps text to a dense vector. Similar meanings land near each other."},
	{"Kubernetes Operators", "custom resource reconciliation", "Operators extend the Kubernetes control plane. Custom resource reconciliation drives actual state toward desired state."},
	{"Container Images", "layered container image", "Images are built from stacked filesystem layers. A layered container image shares base layers between services."},
	{"TLS Handshake", "certificate chain verification", "TLS negotiates keys before any application data. Certificate chain verification proves the server identity."},
	{"OAuth Flows", "authorization code grant", "OAuth delegates access without sharing passwords. The authorization code grant exchanges a short-lived code for tokens."},
	{"Rate Limiting", "token bucket limiter", "Rate limits protect shared services. A token bucket limiter refills at a steady pace and allows short bursts."},
	{"Circuit Breakers", "circuit breaker half-open", "Breakers stop calls to failing dependencies. A circuit breaker half-open state lets a few trial requests through."},
	{"Message Queues", "at-least-once delivery", "Queues decouple producers from consumers. At-least-once delivery means handlers must tolerate duplicates."},
	{"Event Sourcing", "append-only event log", "State is rebuilt by replaying events. An append-only event log is the single source of truth."},
	{"Database Migrations", "schema migration rollback", "Schemas evolve with the code. A schema migration rollback plan limits the damage of a bad deploy."},
	{"Connection Pooling", "connection pool exhaustion", "Opening connections is expensive, so they are reused. Connection pool exhaustion shows up as request timeouts."},
	{"Caching", "cache stampede", "Caches absorb repeated reads. A cache stampede happens when many requests miss the same expired key at once."},
	{"LRU Eviction", "least recently used eviction", "Bounded caches must drop entries. Least recently used eviction discards the entry untouched for longest."},
	{"Structured Logging", "structured log fields", "Logs are easier to query with keys. Structured log fields carry request ids and durations."},
	{"Prometheus Metrics", "histogram buckets latency", "Prometheus scrapes metrics over HTTP. Histogram buckets latency observations into ranges."},
	{"Distributed Tracing", "trace span propagation", "Tracing follows a request across services. Trace span propagation passes context in headers."},
	{"Graceful Shutdown", "drain in-flight requests", "Servers should stop cleanly on SIGTERM. They drain in-flight requests before closing listeners."},
	{"File Watching", "filesystem change notifications", "Editors and indexers react to edits. Filesystem change notifications arrive as create, write and rename events."},
	{"Debouncing", "debounce rapid events", "Bursts of events are common when files are saved. Code that must debounce rapid events waits for a quiet period."},
	{"Advisory Locks", "advisory file lock", "Cooperating processes coordinate through the filesystem. An advisory file lock keeps two writers apart."},
	{"Worker Pools", "bounded worker pool", "Unbounded goroutines can exhaust memory. A bounded worker pool caps concurrency for batch jobs."},
	{"PDF Extraction", "PDF text extraction", "PDF pages hold positioned glyphs. PDF text extraction reassembles them into reading order."},
	{"Spreadsheets", "spreadsheet cell values", "Workbooks contain sheets of rows. Spreadsheet cell values can be read row by row."},
	{"YAML Configuration", "YAML configuration defaults", "Services read settings at startup. YAML configuration defaults fill in anything left unset."},
	{"HTTP Routing", "HTTP router middleware", "Routers dispatch requests by path and method. HTTP router middleware wraps handlers with cross-cutting behaviour."},
	{"Command Line Tools", "subcommand flags parsing", "CLIs group actions as subcommands. Subcommand flags parsing validates arguments before running."},
	{"Unicode Text", "Unicode normalization forms", "The same text can be encoded several ways. Unicode normalization forms make comparisons reliable."},
	{"Stemming", "Porter stemming algorithm", "Search engines conflate word forms. The Porter stemming algorithm strips common English suffixes."},
	{"Fuzzy Matching", "edit distance typos", "Users misspell queries. Matching within a small edit distance typos still find the right term."},
	{"Snippets", "search result snippet", "Results show a short excerpt. A search result snippet highlights where the query matched."},
	{"Relevance Evaluation", "precision recall evaluation", "Ranking changes need measurement. Precision recall evaluation compares results against judged queries."},
}

// BuildCorpus returns one document per topic and one query per document. Each query is the
// topic's signature phrase, which appears only in its own document.
func BuildCorpus() *Corpus {
	c := &Corpus{Documents: make([]Document, 0, len(topics))}
	for i, t := range topics {
		doc := Document{
			Name:    fmt.Sprintf("doc-%03d", i+1),
			Title:   t.title,
			Content: t.content,
		}
		c.Documents = append(c.Documents, doc)
		c.TestCases = append(c.TestCases, QueryTestCase{
			Query:         t.phrase,
			ExpectedNames: []string{doc.Name},
			Description:   fmt.Sprintf("query %q finds %s", t.phrase, doc.Name),
		})
	}
	return c
}

func containsPhrase(d Document, phrase string) bool {
	phrase = strings.ToLower(phrase)
	return strings.Contains(strings.ToLower(d.Title), phrase) || strings.Contains(strings.ToLower(d.Content), phrase)
}

// Body is the text written for a document: its title as a heading, then its content.
func (d Document) Body() string {
	return "# " + d.Title + "\n\n" + d.Content
}

// ToDocumentInputs places every document under root as a markdown path.
func (c *Corpus) ToDocumentInputs(root string) []*models.DocumentInput {
	out := make([]*models.DocumentInput, len(c.Documents))
	for i, d := range c.Documents {
		out[i] = &models.DocumentInput{
			Path:    filepath.Join(root, d.Name+".md"),
			Title:   d.Title,
			Content: d.Content,
		}
	}
	return out
}
