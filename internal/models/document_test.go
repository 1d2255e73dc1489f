package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	h := ContentHash("hello world")
	assert.Len(t, h, 12)
	assert.Equal(t, h, ContentHash("hello world"))
	assert.NotEqual(t, h, ContentHash("hello world!"))
}

func TestChunkKeyRoundTrip(t *testing.T) {
	c := Chunk{Hash: "abc_def", Seq: 7}
	assert.Equal(t, "abc_def_7", c.Key())

	hash, seq, err := ParseChunkKey(c.Key())
	require.NoError(t, err)
	assert.Equal(t, "abc_def", hash)
	assert.Equal(t, 7, seq)
}

func TestParseChunkKeyInvalid(t *testing.T) {
	for _, key := range []string{"", "nounderscore", "_3", "abc_", "abc_x", "abc_-1"} {
		_, _, err := ParseChunkKey(key)
		assert.Error(t, err, key)
	}
}
