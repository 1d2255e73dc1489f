package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceSimilarityConversion(t *testing.T) {
	assert.Equal(t, 100.0, DistanceToSimilarity(0))
	assert.Equal(t, 50.0, DistanceToSimilarity(1))
	assert.Equal(t, 0.0, DistanceToSimilarity(2))
	assert.Equal(t, 100.0, DistanceToSimilarity(-0.5), "clamped below")
	assert.Equal(t, 0.0, DistanceToSimilarity(3), "clamped above")

	assert.Equal(t, 2.0, SimilarityToDistance(0))
	assert.Equal(t, 0.0, SimilarityToDistance(100))
	assert.Equal(t, 0.0, SimilarityToDistance(250))
	assert.Equal(t, 2.0, SimilarityToDistance(-10))

	for _, d := range []float64{0, 0.25, 0.8, 1.5, 2} {
		assert.InDelta(t, d, SimilarityToDistance(DistanceToSimilarity(d)), 1e-12)
	}
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 1.0, CosineDistance([]float32{1}, []float32{1, 0}))
}

func TestCodec(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	b := EncodeVector(v)
	require.Len(t, b, 12)
	got, err := DecodeVector(b)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
