// Package server provides the kensaku HTTP API.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
)

// Searcher runs hybrid queries. Implemented by *search.Engine.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*models.SearchResponse, error)
}

// DocumentIndexer writes documents. Implemented by *indexer.Indexer.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, input *models.DocumentInput) (*indexer.Result, error)
	DeleteDocument(ctx context.Context, hash string) error
}

// DocumentStore reads documents and index statistics.
type DocumentStore interface {
	GetDocument(ctx context.Context, hash string) (*models.Document, error)
	Stats(ctx context.Context) (*storage.Stats, error)
}

// WatchService manages watched directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// VectorIndex reports the size of the in-memory vector index.
type VectorIndex interface {
	Size() int
}

// Server is the HTTP server for the kensaku API.
type Server struct {
	engine   Searcher
	indexer  DocumentIndexer
	store    DocumentStore
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	metrics  *metrics.Metrics
	embedder embedding.Embedder
	vectors  VectorIndex
	defaults search.Options
	maxLimit int

	watch          WatchService
	configPath     string
	fullConfig     *config.Config
	fullConfigMu   sync.Mutex
	requestTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithEmbedder lets /ready and /api/v1/status report embedding availability.
func WithEmbedder(e embedding.Embedder) Option {
	return func(s *Server) { s.embedder = e }
}

// WithVectorIndex lets /api/v1/status report the vector index size.
func WithVectorIndex(v VectorIndex) Option {
	return func(s *Server) { s.vectors = v }
}

// WithSearchDefaults sets the options applied to fields a search request leaves unset.
func WithSearchDefaults(opts search.Options, maxLimit int) Option {
	return func(s *Server) {
		s.defaults = opts
		s.maxLimit = maxLimit
	}
}

// WithWatch enables the watch directory endpoints. When configPath is set, directory
// changes are persisted to that file through cfg.
func WithWatch(w WatchService, configPath string, cfg *config.Config) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
		s.fullConfig = cfg
	}
}

// WithConfig exposes cfg in /api/v1/status.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) { s.fullConfig = cfg }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine Searcher,
	idx DocumentIndexer,
	store DocumentStore,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:         engine,
		indexer:        idx,
		store:          store,
		config:         cfg,
		logger:         logger,
		defaults:       search.DefaultOptions(),
		maxLimit:       100,
		requestTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/search/lexical", s.handleLexicalSearch)
		r.Post("/search/vector", s.handleVectorSearch)

		r.Post("/documents", s.handleIndexDocument)
		r.Get("/documents/{hash}", s.handleGetDocument)
		r.Delete("/documents/{hash}", s.handleDeleteDocument)

		r.Get("/status", s.handleStatus)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// observe logs every request and records it in the HTTP metrics under its route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, pattern, status, elapsed)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
