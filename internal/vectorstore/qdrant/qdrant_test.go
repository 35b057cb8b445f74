package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcite/internal/domain"
)

// fakeQdrant keeps points in memory and answers searches with equal scores
// in reverse insertion order, cut to the requested limit.
type fakeQdrant struct {
	mu      sync.Mutex
	points  []map[string]any
	search  map[string]any
	limits  []int
	apiKeys []string
	deleted int
	created int
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
	switch {
	case r.Method == http.MethodDelete && r.URL.Path == "/collections/test":
		f.deleted++
		if f.created == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.points = nil
	case r.Method == http.MethodPut && r.URL.Path == "/collections/test":
		f.created++
	case r.Method == http.MethodPut && r.URL.Path == "/collections/test/points":
		var body struct {
			Points []map[string]any `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.points = append(f.points, body.Points...)
	case r.Method == http.MethodPost && r.URL.Path == "/collections/test/points/search":
		_ = json.NewDecoder(r.Body).Decode(&f.search)
		limit, _ := f.search["limit"].(float64)
		f.limits = append(f.limits, int(limit))
		var result []map[string]any
		for i := len(f.points) - 1; i >= 0 && len(result) < int(limit); i-- {
			result = append(result, map[string]any{"score": 0.5, "payload": f.points[i]["payload"]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	default:
		http.NotFound(w, r)
	}
}

func TestStorageRoundTrip(t *testing.T) {
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "test"})
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]domain.Chunk{
			{ReferenceID: "a", ChunkID: "a_chunk_0", Text: "first"},
			{ReferenceID: "b", ChunkID: "b_chunk_0", Text: "second"},
		},
		[][]float64{{1, 0}, {0, 1}},
	))

	res, err := s.Search(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	// equal scores fall back to insertion order
	assert.Equal(t, "a_chunk_0", res[0].Chunk.ChunkID)
	assert.Equal(t, "b_chunk_0", res[1].Chunk.ChunkID)
	assert.Equal(t, "second", res[1].Chunk.Text)

	params, ok := fake.search["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, params["exact"])
	assert.Equal(t, 1, fake.created)
	for _, k := range fake.apiKeys {
		assert.Equal(t, "secret", k)
	}
}

func TestStorageUpsertValidatesDimension(t *testing.T) {
	srv := httptest.NewServer(&fakeQdrant{})
	defer srv.Close()
	ctx := context.Background()
	s := NewStorage(Config{URL: srv.URL, Collection: "test"})
	require.NoError(t, s.Init(ctx, 3))
	require.Error(t, s.Upsert(ctx, []domain.Chunk{{ChunkID: "x"}}, [][]float64{{1}}))
	require.Error(t, s.Init(ctx, 0))
}

func TestStorageSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL, Collection: "test"})
	require.Error(t, s.Init(context.Background(), 2))
}

func TestStorageSearchKeepsEarliestTieAtLimit(t *testing.T) {
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s := NewStorage(Config{URL: srv.URL, Collection: "test"})
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]domain.Chunk{
			{ReferenceID: "a", ChunkID: "a_chunk_0", Text: "same"},
			{ReferenceID: "b", ChunkID: "b_chunk_0", Text: "same"},
			{ReferenceID: "c", ChunkID: "c_chunk_0", Text: "same"},
		},
		[][]float64{{1, 0}, {1, 0}, {1, 0}},
	))

	res, err := s.Search(ctx, []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a_chunk_0", res[0].Chunk.ChunkID)
	assert.Equal(t, []int{1, 2, 4}, fake.limits)

	res, err = s.Search(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a_chunk_0", res[0].Chunk.ChunkID)
	assert.Equal(t, "b_chunk_0", res[1].Chunk.ChunkID)
}
