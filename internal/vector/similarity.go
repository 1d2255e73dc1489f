package vector

import "math"

// DistanceToSimilarity converts a cosine distance in [0,2] to a 0-100 similarity.
func DistanceToSimilarity(distance float64) float64 {
	return (1 - clamp(distance, 0, 2)/2) * 100
}

// SimilarityToDistance converts a 0-100 similarity to the equivalent cosine distance.
func SimilarityToDistance(similarity float64) float64 {
	return 2 * (1 - clamp(similarity, 0, 100)/100)
}

// CosineDistance returns 1 - cos(a, b). Zero vectors are treated as orthogonal.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - InnerProduct(a, b)/(na*nb)
}

// InnerProduct returns the inner product of two vectors.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := L2Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
