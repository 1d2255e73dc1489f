// Package embedding turns text into vectors for the vector searcher and the indexer.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Available reports whether the backend can currently serve requests.
	Available(ctx context.Context) bool
	// InstallHint tells an operator how to make the backend available.
	InstallHint() string
	Close() error
}

// Provider names accepted by embedding.provider in the config file.
const (
	ProviderOllama = "ollama"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// namedModel is implemented by embedders that know which model they run.
type namedModel interface {
	ModelName() string
}

// embedEach runs embed for every text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}
