package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/errs"
)

const (
	DefaultOllamaHost          = "http://localhost:11434"
	DefaultOllamaModel         = "nomic-embed-text"
	DefaultOllamaFallbackModel = "nomic-embed-text:v1.5"
	DefaultDimensions          = 768
	// DefaultTimeout bounds one embedding request.
	DefaultTimeout = 30 * time.Second
	// DefaultProbeTimeout bounds the availability probe.
	DefaultProbeTimeout = 5 * time.Second
	// availabilityTTL is how long a probe result is reused.
	availabilityTTL = 30 * time.Second
	maxErrorBody    = 512
)

// ModelState tracks which configured model the client is using.
type ModelState int

const (
	ModelPrimary ModelState = iota
	ModelFallback
	ModelExhausted
)

func (s ModelState) String() string {
	switch s {
	case ModelPrimary:
		return "primary"
	case ModelFallback:
		return "fallback"
	case ModelExhausted:
		return "exhausted"
	}
	return "unknown"
}

// errModelMissing marks a 404 from Ollama for the requested model.
var errModelMissing = errors.New("model not found")

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	Host          string
	Model         string
	FallbackModel string
	Dimensions    int
	Timeout       time.Duration
	ProbeTimeout  time.Duration
}

func (c *OllamaConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultOllamaHost
	}
	c.Host = strings.TrimRight(c.Host, "/")
	if c.Model == "" {
		c.Model = DefaultOllamaModel
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// OllamaEmbedder generates embeddings with Ollama's HTTP API. When the primary model is
// missing it moves to the fallback model, and when that is missing too it reports the
// service as unavailable until a probe finds one of them again.
type OllamaEmbedder struct {
	cfg       OllamaConfig
	client    *http.Client
	transport *http.Transport
	logger    *zap.Logger

	mu        sync.Mutex
	state     ModelState
	closed    bool
	available bool
	checkedAt time.Time
}

var _ Embedder = (*OllamaEmbedder)(nil)

// OllamaOption configures an OllamaEmbedder.
type OllamaOption func(*OllamaEmbedder)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.logger = logger
	}
}

// NewOllamaEmbedder creates a client. It does not contact the server; the first Available or
// Embed call does.
func NewOllamaEmbedder(cfg OllamaConfig, opts ...OllamaOption) *OllamaEmbedder {
	cfg.applyDefaults()
	// No client-level timeout: per-request contexts carry the deadline.
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}
	e := &OllamaEmbedder{
		cfg:       cfg,
		client:    &http.Client{Transport: transport},
		transport: transport,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current model state.
func (e *OllamaEmbedder) State() ModelState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ModelName returns the model requests are sent to.
func (e *OllamaEmbedder) ModelName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modelLocked()
}

func (e *OllamaEmbedder) modelLocked() string {
	if e.state == ModelFallback {
		return e.cfg.FallbackModel
	}
	return e.cfg.Model
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// InstallHint tells an operator how to get the configured model served.
func (e *OllamaEmbedder) InstallHint() string {
	return fmt.Sprintf("start Ollama (https://ollama.com) at %s and run: ollama pull %s", e.cfg.Host, e.cfg.Model)
}

// Embed returns the embedding of one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. A missing model advances the model state and the
// request is retried on the next model; each state is tried at most once.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.ollama"
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for attempt := 0; attempt <= int(ModelExhausted); attempt++ {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, errs.New(errs.KindUnavailable, op, "embedder is closed")
		}
		state, model := e.state, e.modelLocked()
		e.mu.Unlock()

		if state == ModelExhausted {
			return nil, errs.New(errs.KindUnavailable, op,
				fmt.Sprintf("no embedding model available (tried %s)", e.triedModels())).WithHint(e.InstallHint())
		}

		vecs, err := e.embed(ctx, model, texts)
		if errors.Is(err, errModelMissing) {
			e.advance(state, model)
			continue
		}
		if err != nil {
			if errs.IsKind(err, errs.KindUnavailable) {
				e.markUnavailable()
			}
			return nil, err
		}
		return vecs, nil
	}
	return nil, errs.New(errs.KindUnavailable, op, "no embedding model available").WithHint(e.InstallHint())
}

func (e *OllamaEmbedder) triedModels() string {
	if e.cfg.FallbackModel == "" || e.cfg.FallbackModel == e.cfg.Model {
		return e.cfg.Model
	}
	return e.cfg.Model + ", " + e.cfg.FallbackModel
}

// advance moves from the state that observed a missing model to the next one.
func (e *OllamaEmbedder) advance(from ModelState, model string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != from {
		return
	}
	switch from {
	case ModelPrimary:
		if e.cfg.FallbackModel != "" && e.cfg.FallbackModel != e.cfg.Model {
			e.state = ModelFallback
		} else {
			e.state = ModelExhausted
		}
	case ModelFallback:
		e.state = ModelExhausted
	}
	e.checkedAt = time.Time{}
	e.logger.Warn("embedding model not found",
		zap.String("model", model),
		zap.String("state", e.state.String()),
	)
}

func (e *OllamaEmbedder) markUnavailable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available = false
	e.checkedAt = time.Now()
}

func (e *OllamaEmbedder) embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	const op = "embedding.ollama.embed"
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, errs.Wrap(errs.KindEmbeddingFailed, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindEmbeddingFailed, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", model, errModelMissing)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errs.New(errs.KindEmbeddingFailed, op,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return nil, e.transportError(op, err)
		}
		return nil, errs.Wrap(errs.KindEmbeddingFailed, op, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Embeddings) != len(texts) {
		return nil, errs.New(errs.KindEmbeddingFailed, op,
			fmt.Sprintf("got %d embeddings for %d inputs", len(out.Embeddings), len(texts)))
	}
	for _, v := range out.Embeddings {
		NormalizeL2Slice(v)
	}
	return out.Embeddings, nil
}

// transportError classifies a failed round trip: deadlines become timeouts, a refused or
// unreachable host becomes unavailable.
func (e *OllamaEmbedder) transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errs.Wrap(errs.KindTimeout, op, err)
	}
	wrapped := errs.Wrap(errs.KindUnavailable, op, err).WithHint(e.InstallHint())
	if errors.Is(err, syscall.ECONNREFUSED) {
		wrapped.Message = "connection refused"
	}
	return wrapped
}

// Available probes /api/tags (reusing a recent result) and reports whether the primary or
// fallback model is pulled. The probe also resets the model state to the best model present.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	if !e.checkedAt.IsZero() && time.Since(e.checkedAt) < availabilityTTL {
		ok := e.available
		e.mu.Unlock()
		return ok
	}
	e.mu.Unlock()

	names, err := e.listModels(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkedAt = time.Now()
	if err != nil {
		e.logger.Debug("ollama probe failed", zap.Error(err))
		e.available = false
		return false
	}
	prev := e.state
	switch {
	case hasModel(names, e.cfg.Model):
		e.state = ModelPrimary
	case e.cfg.FallbackModel != "" && hasModel(names, e.cfg.FallbackModel):
		e.state = ModelFallback
	default:
		e.state = ModelExhausted
	}
	if prev != e.state {
		e.logger.Info("embedding model state changed",
			zap.String("from", prev.String()),
			zap.String("to", e.state.String()),
		)
	}
	e.available = e.state != ModelExhausted
	return e.available
}

func (e *OllamaEmbedder) listModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d", resp.StatusCode)
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// hasModel matches model against tag names, treating a missing tag as ":latest".
func hasModel(names []string, model string) bool {
	want := withTag(model)
	for _, n := range names {
		if withTag(n) == want {
			return true
		}
	}
	return false
}

func withTag(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.Contains(name, ":") {
		return name + ":latest"
	}
	return name
}

// Close releases idle connections. Later calls report the embedder as unavailable.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
