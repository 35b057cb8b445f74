package index

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcite/internal/domain"
	"refcite/internal/embedding/tfidf"
	"refcite/internal/vectorstore/memory"
	"refcite/internal/vectorstore/sqlite"
)

func scenarioChunks() []domain.Chunk {
	return []domain.Chunk{
		{ReferenceID: "nn", ChunkID: "nn_chunk_0", Text: "Neural networks are widely used in deep learning."},
		{ReferenceID: "climate", ChunkID: "climate_chunk_0", Text: "Climate change is caused by greenhouse gas emissions."},
		{ReferenceID: "ml", ChunkID: "ml_chunk_0", Text: "Machine learning enables systems to learn from data."},
	}
}

func TestSearchRanksRelevantChunkFirst(t *testing.T) {
	ctx := context.Background()
	ix := New(tfidf.NewEmbedder(), memory.NewStorage())
	require.NoError(t, ix.Build(ctx, scenarioChunks()))
	assert.Equal(t, 3, ix.Len())

	res, err := ix.Search(ctx, "Deep learning models use neural networks", 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "nn", res[0].ReferenceID)
	assert.Equal(t, "nn_chunk_0", res[0].ChunkID)

	scores := map[string]float64{}
	for i, r := range res {
		scores[r.ReferenceID] = r.Score
		if i > 0 {
			assert.GreaterOrEqual(t, res[i-1].Score, r.Score)
		}
		assert.LessOrEqual(t, r.Score, 1.0+1e-9)
	}
	assert.Greater(t, scores["nn"], scores["climate"])
}

func TestSearchIsDeterministic(t *testing.T) {
	ctx := context.Background()
	build := func() []domain.SimilarityResult {
		ix := New(tfidf.NewEmbedder(), memory.NewStorage(), WithWorkers(3))
		require.NoError(t, ix.Build(ctx, scenarioChunks()))
		res, err := ix.Search(ctx, "learning from data with neural networks", 0)
		require.NoError(t, err)
		return res
	}
	assert.Equal(t, build(), build())
}

func TestSearchBeforeBuild(t *testing.T) {
	ix := New(tfidf.NewEmbedder(), memory.NewStorage())
	_, err := ix.Search(context.Background(), "anything", 3)
	require.ErrorIs(t, err, ErrIndexNotBuilt)
}

func TestBuildTwice(t *testing.T) {
	ctx := context.Background()
	ix := New(tfidf.NewEmbedder(), memory.NewStorage())
	require.NoError(t, ix.Build(ctx, scenarioChunks()))
	require.ErrorIs(t, ix.Build(ctx, scenarioChunks()), ErrIndexAlreadyBuilt)
}

func TestBuildEmpty(t *testing.T) {
	ix := New(tfidf.NewEmbedder(), memory.NewStorage())
	require.ErrorIs(t, ix.Build(context.Background(), nil), ErrNoChunks)
}

func TestTopKLimitsResults(t *testing.T) {
	ctx := context.Background()
	ix := New(tfidf.NewEmbedder(), memory.NewStorage(), WithDefaultTopK(2))
	require.NoError(t, ix.Build(ctx, scenarioChunks()))

	res, err := ix.Search(ctx, "neural networks", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = ix.Search(ctx, "neural networks", 0)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestSQLiteBackedIndexMatchesMemory(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open("")
	require.NoError(t, err)
	defer store.Close()

	viaSQL := New(tfidf.NewEmbedder(), store)
	require.NoError(t, viaSQL.Build(ctx, scenarioChunks()))
	inMem := New(tfidf.NewEmbedder(), memory.NewStorage())
	require.NoError(t, inMem.Build(ctx, scenarioChunks()))

	a, err := viaSQL.Search(ctx, "Deep learning models use neural networks", 3)
	require.NoError(t, err)
	b, err := inMem.Search(ctx, "Deep learning models use neural networks", 3)
	require.NoError(t, err)
	require.Len(t, a, len(b))
	for i := range a {
		assert.Equal(t, b[i].ChunkID, a[i].ChunkID)
		assert.InDelta(t, b[i].Score, a[i].Score, 1e-12)
	}
}

// fixedEmbedder maps texts to preset vectors and can fail on demand.
type fixedEmbedder struct {
	vectors map[string][]float64
	fail    string
	calls   atomic.Int32
}

func (f *fixedEmbedder) Name() string           { return "fixed" }
func (f *fixedEmbedder) Prepare([]string) error { return nil }
func (f *fixedEmbedder) Dimension() int         { return 2 }
func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.calls.Add(1)
	if text == f.fail {
		return nil, errors.New("model unavailable")
	}
	return f.vectors[text], nil
}

func TestBuildNormalizesAndBreaksTiesByInsertion(t *testing.T) {
	ctx := context.Background()
	emb := &fixedEmbedder{vectors: map[string][]float64{
		"a": {3, 4},
		"b": {6, 8},
		"c": {0, 5},
		"q": {0.6, 0.8},
	}}
	ix := New(emb, memory.NewStorage(), WithWorkers(2))
	require.NoError(t, ix.Build(ctx, []domain.Chunk{
		{ReferenceID: "a", ChunkID: "a_chunk_0", Text: "a"},
		{ReferenceID: "b", ChunkID: "b_chunk_0", Text: "b"},
		{ReferenceID: "c", ChunkID: "c_chunk_0", Text: "c"},
	}))
	assert.Equal(t, int32(3), emb.calls.Load())
	assert.Equal(t, []float64{3, 4}, emb.vectors["a"], "embedder output must not be mutated")

	res, err := ix.Search(ctx, "q", 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "a", res[0].ReferenceID)
	assert.Equal(t, "b", res[1].ReferenceID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-12)
	assert.InDelta(t, 1.0, res[1].Score, 1e-12)
	assert.InDelta(t, 0.8, res[2].Score, 1e-12)
}

func TestBuildPropagatesEmbeddingFailure(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float64{"ok": {1, 0}}, fail: "bad"}
	ix := New(emb, memory.NewStorage())
	err := ix.Build(context.Background(), []domain.Chunk{
		{ReferenceID: "x", ChunkID: "x_chunk_0", Text: "ok"},
		{ReferenceID: "y", ChunkID: "y_chunk_0", Text: "bad"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")

	_, err = ix.Search(context.Background(), "ok", 1)
	require.ErrorIs(t, err, ErrIndexNotBuilt)
}
