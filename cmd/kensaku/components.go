package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/chunker"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/lexical"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Config   *config.Config
	Store    *storage.SQLiteStore
	Embedder embedding.Embedder
	Vectors  vector.MutableIndex
	Keyword  *keyword.BleveIndex
	Engine   *search.Engine
	Indexer  *indexer.Indexer
	Metrics  *metrics.Metrics
	lock     *indexer.DirLock
}

// componentOptions selects the optional parts of initializeComponents.
type componentOptions struct {
	// writer takes the data directory lock so only one process writes the index.
	writer  bool
	metrics bool
}

// Close releases every component in reverse order of creation.
func (c *Components) Close() {
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	_ = c.lock.Unlock()
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (_ *Components, err error) {
	c := &Components{Config: cfg}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()
	if opts.metrics {
		c.Metrics = metrics.New()
	}

	if opts.writer {
		c.lock, err = indexer.LockDir(cfg.Storage.DataDir())
		if errors.Is(err, indexer.ErrLocked) {
			return nil, fmt.Errorf("another kensaku process is writing to %s (stop the server or wait for the index to finish)", cfg.Storage.DataDir())
		}
		if err != nil {
			return nil, err
		}
	}

	c.Store, err = storage.NewSQLiteStore(cfg.Storage.DatabasePath, storage.WithDriver(cfg.Storage.Driver))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if !c.Store.FullTextAvailable() && cfg.Storage.LexicalBackend == config.LexicalFTS5 {
		logger.Warn("SQLite driver has no FTS5 support; lexical search is disabled",
			zap.String("driver", cfg.Storage.Driver))
	}

	c.Embedder, err = newEmbedder(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectors, err := vector.NewIndex(cfg.Vector.IndexType, cfg.Embedding.Dimensions, vector.HNSWOptions{
		M:        cfg.Vector.M,
		EfSearch: cfg.Vector.EfSearch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.Vectors = vectors
	if err := c.Vectors.Load(ctx, c.Store); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	logger.Info("vector index loaded",
		zap.String("type", cfg.Vector.IndexType),
		zap.Int("vectors", c.Vectors.Size()),
	)

	var lexIndex lexical.Index = c.Store
	if cfg.Storage.LexicalBackend == config.LexicalBleve {
		c.Keyword, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath, c.Store,
			keyword.WithFuzziness(cfg.Storage.BleveFuzziness))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		lexIndex = c.Keyword
	}

	c.Engine = search.NewEngine(
		lexical.NewSearcher(lexIndex, lexical.WithLogger(logger)),
		vector.NewSearcher(c.Vectors, c.Embedder, c.Store,
			vector.WithDimensions(cfg.Embedding.Dimensions),
			vector.WithLogger(logger),
		),
		search.WithLogger(logger),
		search.WithMetrics(c.Metrics),
		search.WithBranchTimeout(cfg.Search.BranchTimeout),
	)

	idxOpts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithMetrics(c.Metrics),
		indexer.WithChunking(chunker.Options{
			MaxTokens:      cfg.Chunking.MaxTokens,
			OverlapPercent: cfg.Chunking.OverlapPercent,
		}),
		indexer.WithWorkers(cfg.Indexer.Workers),
		indexer.WithCollection(cfg.Indexer.Collection),
	}
	if c.Keyword != nil {
		idxOpts = append(idxOpts, indexer.WithKeywordIndex(c.Keyword))
	}
	c.Indexer = indexer.NewIndexer(c.Store, c.Embedder, c.Vectors, idxOpts...)
	return c, nil
}

// newEmbedder builds the configured provider behind an LRU cache.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	var inner embedding.Embedder
	switch cfg.Provider {
	case config.ProviderOllama:
		inner = embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			Host:          cfg.Host,
			Model:         cfg.Model,
			FallbackModel: cfg.FallbackModel,
			Dimensions:    cfg.Dimensions,
			Timeout:       cfg.Timeout,
			ProbeTimeout:  cfg.ProbeTimeout,
		}, embedding.WithLogger(logger))
	case config.ProviderONNX:
		onnx, err := embedding.NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		inner = onnx
	case config.ProviderMock:
		inner = embedding.NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize <= 0 {
		return inner, nil
	}
	return embedding.NewCachedEmbedder(inner, cfg.CacheSize), nil
}

// searchDefaults maps the search config section onto engine options.
func searchDefaults(cfg *config.Config) search.Options {
	opts := search.DefaultOptions()
	opts.Limit = cfg.Search.DefaultLimit
	opts.CandidateLimit = cfg.Search.CandidateLimit
	opts.RRFK = cfg.Search.RRFK
	opts.Fallback = search.Fallback(cfg.Search.Fallback)
	opts.LexicalMinScore = cfg.Search.LexicalMinScore
	opts.VectorMinSimilarity = cfg.Search.VectorMinSimilarity
	return opts
}
