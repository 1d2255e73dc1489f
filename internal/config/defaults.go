package config

import "time"

// Accepted values for the enumerated settings.
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"

	LexicalFTS5  = "fts5"
	LexicalBleve = "bleve"

	ProviderOllama = "ollama"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

const dataRoot = "/usr/local/var/kensaku/data"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverModernc
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = dataRoot + "/db/kensaku.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = dataRoot + "/indices/bleve"
	}
	if cfg.Storage.LexicalBackend == "" {
		cfg.Storage.LexicalBackend = LexicalFTS5
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOllama
	}
	if cfg.Embedding.Host == "" {
		cfg.Embedding.Host = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.FallbackModel == "" {
		cfg.Embedding.FallbackModel = "nomic-embed-text:v1.5"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.ProbeTimeout == 0 {
		cfg.Embedding.ProbeTimeout = 5 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}

	if cfg.Chunking.MaxTokens == 0 {
		cfg.Chunking.MaxTokens = 800
	}
	if cfg.Chunking.OverlapPercent == 0 {
		cfg.Chunking.OverlapPercent = 0.15
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.CandidateLimit == 0 {
		cfg.Search.CandidateLimit = 20
	}
	if cfg.Search.RRFK == 0 {
		cfg.Search.RRFK = 60
	}
	if cfg.Search.Fallback == "" {
		cfg.Search.Fallback = "graceful"
	}
	if cfg.Search.BranchTimeout == 0 {
		cfg.Search.BranchTimeout = 30 * time.Second
	}

	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Vector.M == 0 {
		cfg.Vector.M = 16
	}
	if cfg.Vector.EfSearch == 0 {
		cfg.Vector.EfSearch = 64
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".markdown", ".rst", ".pdf", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}

	if cfg.Indexer.Workers == 0 {
		cfg.Indexer.Workers = 4
	}
}
