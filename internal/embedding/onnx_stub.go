//go:build !cgo

package embedding

import (
	"context"
	"errors"

	"github.com/hyperjump/kensaku/internal/errs"
)

var errNoCGO = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXEmbedder is unavailable in builds without CGO.
type ONNXEmbedder struct{}

var _ Embedder = (*ONNXEmbedder)(nil)

// NewONNXEmbedder always fails when built without CGO.
func NewONNXEmbedder(string, int, int) (*ONNXEmbedder, error) {
	return nil, errNoCGO
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errs.Wrap(errs.KindUnavailable, "embedding.onnx", errNoCGO)
}

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errs.Wrap(errs.KindUnavailable, "embedding.onnx", errNoCGO)
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }
func (e *ONNXEmbedder) Available(context.Context) bool { return false }
func (e *ONNXEmbedder) InstallHint() string { return "rebuild with CGO_ENABLED=1 and install onnxruntime" }
func (e *ONNXEmbedder) Close() error { return nil }
