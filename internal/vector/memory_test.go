package vector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	rows     map[string][]float32
	raw      map[string][]byte
	probeErr error
}

func (f *fakeSource) LoadVectors(_ context.Context, fn func(string, []byte) error) error {
	for k, v := range f.rows {
		if err := fn(k, EncodeVector(v)); err != nil {
			return err
		}
	}
	for k, b := range f.raw {
		if err := fn(k, b); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) ProbeVectors(context.Context) error { return f.probeErr }

func knn(t *testing.T, idx Index, q []float32, k int) []Neighbor {
	t.Helper()
	out, err := idx.KNN(context.Background(), EncodeVector(q), k)
	require.NoError(t, err)
	return out
}

func TestMemoryIndex_AddKNN(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"a_0", "b_0", "c_0"}, [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}))
	assert.Equal(t, 3, idx.Size())

	got := knn(t, idx, []float32{1, 0, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a_0", got[0].Key)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
	assert.Equal(t, "b_0", got[1].Key)

	// Replacing a key does not duplicate it.
	require.NoError(t, idx.Add(ctx, []string{"a_0"}, [][]float32{{0, 0, 1}}))
	assert.Equal(t, 3, idx.Size())
	assert.Equal(t, "b_0", knn(t, idx, []float32{1, 0, 0}, 1)[0].Key)

	assert.Error(t, idx.Add(ctx, []string{"x_0"}, [][]float32{{1, 0}}))
	_, err = idx.KNN(ctx, EncodeVector([]float32{1, 0}), 1)
	assert.Error(t, err)
}

func TestMemoryIndex_RemoveDocument(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []string{"x_0", "x_1", "xy_0"}, [][]float32{{1, 0}, {0, 1}, {1, 1}}))
	require.NoError(t, idx.RemoveDocument(ctx, "x"))
	assert.Equal(t, 1, idx.Size())
	assert.Equal(t, "xy_0", knn(t, idx, []float32{1, 0}, 5)[0].Key)
}

func TestMemoryIndex_LoadAndProbe(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	src := &fakeSource{rows: map[string][]float32{"a_0": {1, 0}, "b_0": {0, 1}}}

	require.NoError(t, idx.Load(ctx, src))
	assert.Equal(t, 2, idx.Size())
	assert.NoError(t, idx.Probe(ctx))

	src.probeErr = errors.New("no such table: vectors")
	assert.Error(t, idx.Probe(ctx))

	bad := &fakeSource{raw: map[string][]byte{"c_0": EncodeVector([]float32{1, 2, 3})}}
	assert.Error(t, idx.Load(ctx, bad))

	require.NoError(t, idx.Close())
	_, err := idx.KNN(ctx, EncodeVector([]float32{1, 0}), 1)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, idx.Probe(ctx), ErrNotLoaded)
}

func TestHNSWIndex_KNN(t *testing.T) {
	idx, err := NewHNSWIndex(3, HNSWOptions{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"a_0", "b_0", "c_0", "c_1"}, [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
		{0, 0, 1},
	}))
	got := knn(t, idx, []float32{2, 0, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a_0", got[0].Key)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
	assert.Equal(t, "b_0", got[1].Key)

	require.NoError(t, idx.RemoveDocument(ctx, "a"))
	assert.Equal(t, 3, idx.Size())
	assert.Equal(t, "b_0", knn(t, idx, []float32{1, 0, 0}, 1)[0].Key)

	src := &fakeSource{rows: map[string][]float32{"z_0": {0, 1, 0}}}
	require.NoError(t, idx.Load(ctx, src))
	assert.Equal(t, 1, idx.Size())
	assert.Equal(t, "z_0", knn(t, idx, []float32{0, 1, 0}, 3)[0].Key)
}

func TestHNSWIndex_RemoveShrinksGraph(t *testing.T) {
	idx, err := NewHNSWIndex(3, HNSWOptions{})
	require.NoError(t, err)
	ctx := context.Background()

	var keys []string
	var vecs [][]float32
	for i := 0; i < 40; i++ {
		keys = append(keys, fmt.Sprintf("old_%d", i))
		vecs = append(vecs, []float32{1, float32(i) / 40, 0})
	}
	keys = append(keys, "keep_0")
	vecs = append(vecs, []float32{0, 0, 1})
	require.NoError(t, idx.Add(ctx, keys, vecs))
	require.Equal(t, 41, idx.graph.Len())

	for round := 0; round < 3; round++ {
		require.NoError(t, idx.RemoveDocument(ctx, "old"))
		assert.Equal(t, 1, idx.graph.Len(), "round %d", round)
		assert.Equal(t, 1, idx.Size())
		got := knn(t, idx, []float32{1, 0, 0}, 5)
		require.Len(t, got, 1)
		assert.Equal(t, "keep_0", got[0].Key)

		require.NoError(t, idx.Add(ctx, keys[:40], vecs[:40]))
		assert.Equal(t, 41, idx.graph.Len(), "round %d", round)
	}

	require.NoError(t, idx.Add(ctx, []string{"keep_0"}, [][]float32{{0, 1, 0}}))
	assert.Equal(t, 41, idx.graph.Len(), "replacing a key must not leave the old node behind")
	assert.Equal(t, "keep_0", knn(t, idx, []float32{0, 1, 0}, 1)[0].Key)
}

func TestNewIndex(t *testing.T) {
	for _, typ := range []string{"", "memory", "hnsw"} {
		idx, err := NewIndex(typ, 3, DefaultHNSWOptions())
		require.NoError(t, err, typ)
		assert.Equal(t, 0, idx.Size())
		require.NoError(t, idx.Close())
	}
	_, err := NewIndex("faiss", 3, HNSWOptions{})
	assert.Error(t, err)
	_, err = NewIndex("memory", 0, HNSWOptions{})
	assert.Error(t, err)
}
