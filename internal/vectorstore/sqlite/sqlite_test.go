package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcite/internal/domain"
)

func openMemory(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorageSearchMatchesBruteForce(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	require.NoError(t, s.Init(ctx, 2))

	chunks := []domain.Chunk{
		{ReferenceID: "a", ChunkID: "a_chunk_0", Text: "first"},
		{ReferenceID: "b", ChunkID: "b_chunk_0", Text: "second"},
		{ReferenceID: "a", ChunkID: "a_chunk_1", Text: "third", Index: 1},
	}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float64{{1, 0}, {0, 1}, {1, 0}}))

	res, err := s.Search(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a_chunk_0", res[0].Chunk.ChunkID)
	assert.Equal(t, "a_chunk_1", res[1].Chunk.ChunkID)
	assert.Equal(t, 1, res[1].Chunk.Index)
	assert.Equal(t, 1.0, res[0].Score)
}

func TestStorageInitClearsPreviousRows(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ReferenceID: "a", ChunkID: "a_chunk_0", Text: "x"}}, [][]float64{{1}}))
	require.NoError(t, s.Init(ctx, 1))

	res, err := s.Search(ctx, []float64{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestStorageRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	require.Error(t, s.Init(ctx, 0))
	require.NoError(t, s.Init(ctx, 2))
	require.Error(t, s.Upsert(ctx, []domain.Chunk{{ChunkID: "x"}}, [][]float64{{1}}))
	_, err := s.Search(ctx, []float64{1}, 1)
	require.Error(t, err)
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	in := []float64{0, -1.25, 3.5e-7}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
	_, err = decodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}
