package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/errs"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string    `json:"error"`
	Kind  errs.Kind `json:"kind,omitempty"`
	Hint  string    `json:"hint,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	switch errs.KindOf(err) {
	case errs.KindInvalidOptions:
		return http.StatusBadRequest
	case errs.KindUnavailable, errs.KindNotInitialized:
		return http.StatusServiceUnavailable
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindNoResults:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, nil)
}

func (s *Server) handleLexicalSearch(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, func(o *search.Options) {
		o.EnableLexical = true
		o.EnableVector = false
	})
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, func(o *search.Options) {
		o.EnableLexical = false
		o.EnableVector = true
	})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, mode func(*search.Options)) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opts, err := search.ProcessQuery(&query, s.defaults, s.maxLimit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if mode != nil {
		mode(&opts)
	}
	s.logger.Debug("search request",
		zap.String("query", query.Query),
		zap.Int("limit", opts.Limit),
		zap.Bool("lexical", opts.EnableLexical),
		zap.Bool("vector", opts.EnableVector),
	)
	response, err := s.engine.Search(r.Context(), query.Query, opts)
	if err != nil {
		s.logger.Warn("search failed", zap.String("query", query.Query), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type indexResponse struct {
	Hash   string         `json:"hash"`
	Path   string         `json:"path"`
	Status indexer.Status `json:"status"`
	Chunks int            `json:"chunks"`
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index document request", zap.String("path", input.Path), zap.String("title", input.Title))
	res, err := s.indexer.IndexDocument(r.Context(), &input)
	if err != nil {
		s.logger.Error("indexing failed", zap.String("path", input.Path), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	status := http.StatusCreated
	if res.Status == indexer.StatusUnchanged {
		status = http.StatusOK
	}
	s.respondJSON(w, status, indexResponse{Hash: res.Hash, Path: res.Path, Status: res.Status, Chunks: res.Chunks})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	doc, err := s.store.GetDocument(r.Context(), hash)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	s.logger.Debug("delete document request", zap.String("hash", hash))
	if err := s.indexer.DeleteDocument(r.Context(), hash); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("deletion failed", zap.String("hash", hash), zap.Error(err))
		}
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"hash": hash, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status        string `json:"status"`
	Storage       bool   `json:"storage"`
	Embedding     bool   `json:"embedding"`
	EmbeddingHint string `json:"embedding_hint,omitempty"`
}

// handleReady reports 503 only when storage is unusable. A missing embedder degrades search
// to lexical results, so it is reported but does not fail readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: "ready", Storage: true}
	if _, err := s.store.Stats(r.Context()); err != nil {
		s.logger.Warn("readiness: storage check failed", zap.Error(err))
		resp.Storage = false
		resp.Status = "unavailable"
	}
	if s.embedder != nil {
		resp.Embedding = s.embedder.Available(r.Context())
		if !resp.Embedding {
			resp.EmbeddingHint = s.embedder.InstallHint()
		}
	}
	status := http.StatusOK
	if !resp.Storage {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, resp)
}

type statusConfig struct {
	VectorIndexType     string  `json:"vector_index_type"`
	EmbeddingProvider   string  `json:"embedding_provider"`
	EmbeddingModel      string  `json:"embedding_model,omitempty"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	LexicalBackend      string  `json:"lexical_backend"`
	ChunkMaxTokens      int     `json:"chunk_max_tokens"`
	ChunkOverlap        float64 `json:"chunk_overlap_percent"`
	RRFK                int     `json:"rrf_k"`
	DatabasePath        string  `json:"database_path"`
}

type statusResponse struct {
	storage.Stats
	VectorIndexSize int           `json:"vector_index_size"`
	DiskUsageBytes  *int64        `json:"disk_usage_bytes,omitempty"`
	Config          *statusConfig `json:"config,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	resp := statusResponse{Stats: *stats}
	if s.vectors != nil {
		resp.VectorIndexSize = s.vectors.Size()
	}

	s.fullConfigMu.Lock()
	cfg := s.fullConfig
	if cfg != nil {
		resp.Config = &statusConfig{
			VectorIndexType:     cfg.Vector.IndexType,
			EmbeddingProvider:   cfg.Embedding.Provider,
			EmbeddingModel:      cfg.Embedding.Model,
			EmbeddingDimensions: cfg.Embedding.Dimensions,
			LexicalBackend:      cfg.Storage.LexicalBackend,
			ChunkMaxTokens:      cfg.Chunking.MaxTokens,
			ChunkOverlap:        cfg.Chunking.OverlapPercent,
			RRFK:                cfg.Search.RRFK,
			DatabasePath:        cfg.Storage.DatabasePath,
		}
		var indexDirs []string
		if cfg.Storage.LexicalBackend == config.LexicalBleve {
			indexDirs = append(indexDirs, cfg.Storage.BleveIndexPath)
		}
		if n, err := storage.Footprint(cfg.Storage.DatabasePath, indexDirs...); err == nil {
			resp.DiskUsageBytes = &n
		}
	}
	s.fullConfigMu.Unlock()
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string][]string{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.fullConfig == nil {
		return
	}
	s.fullConfigMu.Lock()
	defer s.fullConfigMu.Unlock()
	s.fullConfig.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.fullConfig); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}

// respondErr writes err with the status its kind maps to, including the kind and hint.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondJSON(w, statusFor(err), errorResponse{
		Error: err.Error(),
		Kind:  errs.KindOf(err),
		Hint:  errs.HintOf(err),
	})
}
