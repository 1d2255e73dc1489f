// Package indexer runs the indexing pipeline: extract, hash, upsert by path, chunk, embed, and
// store vectors in both the database and the in-memory vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/chunker"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/errs"
	"github.com/hyperjump/kensaku/internal/extract"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

const (
	// DefaultWorkers is the batch indexing pool size.
	DefaultWorkers = 4
	// embedBatchSize bounds the number of chunks sent to the embedder per request.
	embedBatchSize = 32
)

// Status is the outcome of indexing one document.
type Status string

const (
	StatusIndexed   Status = "indexed"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// KeywordIndex is an optional secondary lexical index kept in sync with the store.
type KeywordIndex interface {
	Index(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, hash string) error
}

// Result reports what happened to one document.
type Result struct {
	Path   string `json:"path"`
	Hash   string `json:"hash,omitempty"`
	Status Status `json:"status"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// Summary aggregates a batch run.
type Summary struct {
	Indexed   int       `json:"indexed"`
	Unchanged int       `json:"unchanged"`
	Failed    int       `json:"failed"`
	Results   []*Result `json:"results"`
}

func (s *Summary) add(r *Result) {
	switch r.Status {
	case StatusIndexed:
		s.Indexed++
	case StatusUnchanged:
		s.Unchanged++
	default:
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

// Indexer writes documents into the store, the vector index and, optionally, a keyword index.
type Indexer struct {
	store      storage.Store
	embedder   embedding.Embedder
	vectors    vector.MutableIndex
	keyword    KeywordIndex
	chunker    *chunker.Chunker
	extractor  *extract.Extractor
	workers    int
	collection string
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithMetrics records per-document indexing metrics.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithKeywordIndex also indexes documents into k.
func WithKeywordIndex(k KeywordIndex) IndexerOption {
	return func(idx *Indexer) { idx.keyword = k }
}

// WithChunking sets the chunker options.
func WithChunking(opts chunker.Options) IndexerOption {
	return func(idx *Indexer) { idx.chunker = chunker.New(opts) }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithWorkers sets the batch pool size.
func WithWorkers(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithCollection adds every indexed file to the named collection unless the input names one.
func WithCollection(name string) IndexerOption {
	return func(idx *Indexer) { idx.collection = name }
}

// NewIndexer creates an indexer. embedder and vectors may be nil, in which case documents are
// stored and searchable lexically only.
func NewIndexer(store storage.Store, embedder embedding.Embedder, vectors vector.MutableIndex, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
		chunker:   chunker.New(chunker.DefaultOptions()),
		extractor: extract.NewExtractor(),
		workers:   DefaultWorkers,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Extractor returns the extractor used for files.
func (idx *Indexer) Extractor() *extract.Extractor {
	return idx.extractor
}

// IndexDocument stores input, replacing the active document at its path, then chunks and
// embeds it. Unchanged content is detected by hash and skips chunking and embedding.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*Result, error) {
	start := time.Now()
	res, err := idx.indexDocument(ctx, input)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
	}
	idx.metrics.ObserveIndex(string(res.Status), time.Since(start), res.Chunks)
	return res, err
}

func (idx *Indexer) indexDocument(ctx context.Context, input *models.DocumentInput) (*Result, error) {
	res := &Result{Path: input.Path}
	if input.Path == "" {
		return res, errs.New(errs.KindInvalidOptions, "indexer", "document path is required")
	}
	content := Preprocess(input.Content)
	if content == "" {
		return res, errs.New(errs.KindInvalidOptions, "indexer", "document content is empty")
	}
	title := input.Title
	if title == "" {
		title = extract.Title(input.Path, content)
	}
	doc := &models.Document{
		Hash:    models.ContentHash(content),
		Title:   title,
		Content: content,
		Path:    input.Path,
	}
	res.Hash = doc.Hash

	var previous string
	if prev, err := idx.store.GetActiveDocument(ctx, doc.Path); err == nil {
		previous = prev.Hash
	} else if !errors.Is(err, storage.ErrNotFound) {
		return res, fmt.Errorf("failed to look up %s: %w", doc.Path, err)
	}

	changed, err := idx.store.UpsertDocument(ctx, doc)
	if err != nil {
		return res, fmt.Errorf("failed to store document: %w", err)
	}
	if err := idx.addToCollection(ctx, input.Collection, doc); err != nil {
		return res, err
	}
	if !changed {
		res.Status = StatusUnchanged
		idx.logger.Debug("indexer skipping unchanged document", zap.String("path", doc.Path), zap.String("hash", doc.Hash))
		return res, nil
	}
	if previous != "" && previous != doc.Hash {
		if err := idx.dropIndexes(ctx, previous); err != nil {
			return res, err
		}
		if err := idx.store.DeleteVectors(ctx, previous); err != nil {
			return res, fmt.Errorf("failed to delete previous vectors: %w", err)
		}
	}

	if idx.keyword != nil {
		if err := idx.keyword.Index(ctx, doc); err != nil {
			return res, fmt.Errorf("failed to index keywords: %w", err)
		}
	}

	chunks := idx.chunker.Chunk(doc.Hash, doc.Content)
	if err := idx.store.ReplaceChunks(ctx, doc.Hash, chunks); err != nil {
		return res, fmt.Errorf("failed to store chunks: %w", err)
	}
	res.Chunks = len(chunks)
	if err := idx.embedChunks(ctx, chunks); err != nil {
		return res, err
	}

	res.Status = StatusIndexed
	idx.logger.Debug("indexer document indexed",
		zap.String("path", doc.Path),
		zap.String("hash", doc.Hash),
		zap.Int("chunks", len(chunks)),
	)
	return res, nil
}

func (idx *Indexer) addToCollection(ctx context.Context, name string, doc *models.Document) error {
	if name == "" {
		name = idx.collection
	}
	if name == "" {
		return nil
	}
	if err := idx.store.EnsureCollection(ctx, name, filepath.Dir(doc.Path)); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	if err := idx.store.AddToCollection(ctx, name, doc.Hash); err != nil {
		return fmt.Errorf("failed to add to collection %s: %w", name, err)
	}
	return nil
}

// embedChunks embeds chunks in batches and writes the vectors to the store and the index.
// The document stays searchable lexically when embedding fails.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []models.Chunk) error {
	if idx.embedder == nil || len(chunks) == 0 {
		return nil
	}
	model := ""
	if n, ok := idx.embedder.(interface{ ModelName() string }); ok {
		model = n.ModelName()
	}
	dims := idx.embedder.Dimensions()

	for start := 0; start < len(chunks); start += embedBatchSize {
		batch := chunks[start:min(start+embedBatchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vecs, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(vecs) != len(batch) {
			return errs.New(errs.KindEmbeddingFailed, "indexer",
				fmt.Sprintf("got %d embeddings for %d chunks", len(vecs), len(batch)))
		}

		keys := make([]string, len(batch))
		records := make([]storage.VectorRecord, len(batch))
		for i, ch := range batch {
			if dims > 0 && len(vecs[i]) != dims {
				return errs.New(errs.KindInvalidOptions, "indexer",
					fmt.Sprintf("embedding dimension mismatch: got %d, expected %d", len(vecs[i]), dims))
			}
			keys[i] = ch.Key()
			records[i] = storage.VectorRecord{
				Key:   keys[i],
				Hash:  ch.Hash,
				Seq:   ch.Seq,
				Model: model,
				Data:  vector.EncodeVector(vecs[i]),
			}
		}
		if err := idx.store.SaveVectors(ctx, records); err != nil {
			return fmt.Errorf("failed to store vectors: %w", err)
		}
		if idx.vectors != nil {
			if err := idx.vectors.Add(ctx, keys, vecs); err != nil {
				return fmt.Errorf("failed to index vectors: %w", err)
			}
		}
	}
	return nil
}

// IndexFile extracts and indexes the file at path. The absolute path identifies the document.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*Result, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return &Result{Path: path, Status: StatusFailed, Error: err.Error()}, fmt.Errorf("absolute path: %w", err)
	}
	idx.logger.Debug("indexer indexing file", zap.String("path", absPath))
	extracted, err := idx.extractor.Extract(absPath)
	if err != nil {
		idx.metrics.ObserveIndex(string(StatusFailed), 0, 0)
		return &Result{Path: absPath, Status: StatusFailed, Error: err.Error()}, fmt.Errorf("extract content: %w", err)
	}
	return idx.IndexDocument(ctx, &models.DocumentInput{
		Path:    absPath,
		Title:   extracted.Title,
		Content: extracted.Text,
	})
}

// IndexPaths indexes files and directories (walked recursively) on a worker pool. Individual
// failures are reported in the summary; the returned error is only for setup failures and
// cancellation.
func (idx *Indexer) IndexPaths(ctx context.Context, paths []string, allowedExts []string) (*Summary, error) {
	files, err := idx.collectFiles(paths, allowedExts)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Results: make([]*Result, 0, len(files))}
	if len(files) == 0 {
		return summary, nil
	}

	pool, err := ants.NewPool(min(idx.workers, len(files)))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]*Result, len(files))
	var wg sync.WaitGroup
	for i, file := range files {
		if ctx.Err() != nil {
			break
		}
		i, file := i, file // per-iteration copies (pre-Go 1.22 loop semantics)
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			res, err := idx.IndexFile(ctx, file)
			if err != nil {
				idx.logger.Warn("indexer file failed", zap.String("path", file), zap.Error(err))
			}
			results[i] = res
		}); err != nil {
			wg.Done()
			results[i] = &Result{Path: file, Status: StatusFailed, Error: err.Error()}
		}
	}
	wg.Wait()

	for _, r := range results {
		if r != nil {
			summary.add(r)
		}
	}
	return summary, ctx.Err()
}

// collectFiles expands directories and filters by extension. Files the extractor cannot read are
// skipped when found inside a directory and reported when named explicitly.
func (idx *Indexer) collectFiles(paths []string, allowedExts []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, p := range paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", absPath, err)
		}
		if !info.IsDir() {
			add(absPath)
			continue
		}
		err = filepath.WalkDir(absPath, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != absPath && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			ext := filepath.Ext(path)
			if !idx.extractor.Supported(ext) || !ExtensionAllowed(ext, allowedExts) {
				return nil
			}
			if finfo, statErr := os.Stat(path); statErr != nil || !finfo.Mode().IsRegular() {
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// ExtensionAllowed reports whether ext is in allowed (case-insensitive, dot optional). An empty
// list allows everything.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// RemovePath deactivates the document at path and removes it from the search indexes. Its
// rows stay in the store as an inactive version. Returns false when nothing was active there.
func (idx *Indexer) RemovePath(ctx context.Context, path string) (bool, error) {
	if absPath, err := filepath.Abs(path); err == nil {
		path = absPath
	}
	doc, err := idx.store.GetActiveDocument(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := idx.store.DeactivatePath(ctx, path); err != nil {
		return false, fmt.Errorf("failed to deactivate %s: %w", path, err)
	}
	if err := idx.dropIndexes(ctx, doc.Hash); err != nil {
		return false, err
	}
	idx.logger.Debug("indexer path removed", zap.String("path", path), zap.String("hash", doc.Hash))
	return true, nil
}

// DeleteDocument removes a document and everything derived from it.
func (idx *Indexer) DeleteDocument(ctx context.Context, hash string) error {
	idx.logger.Debug("indexer deleting document", zap.String("hash", hash))
	if err := idx.dropIndexes(ctx, hash); err != nil {
		return err
	}
	if err := idx.store.DeleteDocument(ctx, hash); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (idx *Indexer) dropIndexes(ctx context.Context, hash string) error {
	if idx.vectors != nil {
		if err := idx.vectors.RemoveDocument(ctx, hash); err != nil {
			return fmt.Errorf("failed to delete from vector index: %w", err)
		}
	}
	if idx.keyword != nil {
		if err := idx.keyword.Delete(ctx, hash); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	return nil
}
