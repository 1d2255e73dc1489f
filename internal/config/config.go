// Package config loads the kensaku YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	Vector    VectorConfig    `yaml:"vector"`
	Watch     WatchConfig     `yaml:"watch"`
	Indexer   IndexerConfig   `yaml:"indexer"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the database and index locations.
type StorageConfig struct {
	// Driver is the database/sql driver: "sqlite" (modernc, default) or "sqlite3" (mattn, cgo).
	Driver         string `yaml:"driver"`
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	// LexicalBackend selects the lexical index: "fts5" (default) or "bleve".
	LexicalBackend string `yaml:"lexical_backend"`
	// BleveFuzziness is the Levenshtein distance for bleve term matching, 0 (exact) to 2.
	BleveFuzziness int    `yaml:"bleve_fuzziness"`
}

// DataDir is the directory holding the database. The indexer locks it.
func (s StorageConfig) DataDir() string {
	return filepath.Dir(s.DatabasePath)
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama" (default), "onnx" or "mock".
	Provider      string        `yaml:"provider"`
	Host          string        `yaml:"host"`
	Model         string        `yaml:"model"`
	FallbackModel string        `yaml:"fallback_model"`
	Dimensions    int           `yaml:"dimensions"`
	Timeout       time.Duration `yaml:"timeout"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	CacheSize     int           `yaml:"cache_size"`
	ModelPath     string        `yaml:"model_path"`
	MaxTokens     int           `yaml:"max_tokens"`
}

// ChunkingConfig controls document chunking.
type ChunkingConfig struct {
	MaxTokens      int     `yaml:"max_tokens"`
	OverlapPercent float64 `yaml:"overlap_percent"`
}

// SearchConfig holds fusion defaults.
type SearchConfig struct {
	DefaultLimit   int           `yaml:"default_limit"`
	MaxLimit       int           `yaml:"max_limit"`
	CandidateLimit int           `yaml:"candidate_limit"`
	RRFK           int           `yaml:"rrf_k"`
	Fallback       string        `yaml:"fallback"`
	BranchTimeout  time.Duration `yaml:"branch_timeout"`
	// LexicalMinScore drops lexical rows whose absolute raw score exceeds it. Zero disables.
	LexicalMinScore     float64 `yaml:"lexical_min_score"`
	VectorMinSimilarity float64 `yaml:"vector_min_similarity"`
}

// VectorConfig selects the vector index.
type VectorConfig struct {
	IndexType string `yaml:"index_type"`
	M         int    `yaml:"m"`
	EfSearch  int    `yaml:"ef_search"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string      `yaml:"directories"`
	Extensions  []string      `yaml:"extensions"`
	Recursive   *bool         `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// IndexerConfig tunes the indexing pipeline.
type IndexerConfig struct {
	Workers    int    `yaml:"workers"`
	Collection string `yaml:"collection"`
}

// Load reads and parses the config file at path, applies defaults, expands paths and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running without a file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverModernc, DriverCGO:
	default:
		return fmt.Errorf("invalid storage.driver %q (supported: %s, %s)", c.Storage.Driver, DriverModernc, DriverCGO)
	}
	switch c.Storage.LexicalBackend {
	case LexicalFTS5, LexicalBleve:
	default:
		return fmt.Errorf("invalid storage.lexical_backend %q (supported: %s, %s)", c.Storage.LexicalBackend, LexicalFTS5, LexicalBleve)
	}
	if c.Storage.BleveFuzziness < 0 || c.Storage.BleveFuzziness > 2 {
		return fmt.Errorf("invalid storage.bleve_fuzziness %d (must be 0, 1 or 2)", c.Storage.BleveFuzziness)
	}
	switch c.Embedding.Provider {
	case ProviderOllama, ProviderONNX, ProviderMock:
	default:
		return fmt.Errorf("invalid embedding.provider %q (supported: %s, %s, %s)", c.Embedding.Provider, ProviderOllama, ProviderONNX, ProviderMock)
	}
	if c.Embedding.Provider == ProviderONNX && c.Embedding.ModelPath == "" {
		return fmt.Errorf("embedding.model_path is required for the %s provider", ProviderONNX)
	}
	switch c.Search.Fallback {
	case "graceful", "fail":
	default:
		return fmt.Errorf("invalid search.fallback %q (supported: graceful, fail)", c.Search.Fallback)
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %d", c.Search.RRFK)
	}
	if c.Chunking.OverlapPercent < 0 || c.Chunking.OverlapPercent >= 1 {
		return fmt.Errorf("chunking.overlap_percent must be in [0, 1), got %g", c.Chunking.OverlapPercent)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
