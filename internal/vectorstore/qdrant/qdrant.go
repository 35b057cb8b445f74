package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"refcite/internal/domain"
)

// pointNamespace derives stable point ids from chunk ids.
var pointNamespace = uuid.MustParse("6f1c2a4e-8f4b-4d6e-9a51-3c1f0b7d2e90")

// Storage is a minimal REST client to Qdrant.
// It recreates the collection on Init and always asks for exact search.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	next       int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "refcite_chunks"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	s.next = 0
	if err := s.Clear(ctx); err != nil {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Dot",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		if len(vectors[i]) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: %d != %d", len(vectors[i]), s.dimension)
		}
		points[i] = map[string]any{
			"id":     uuid.NewSHA1(pointNamespace, []byte(chunks[i].ChunkID)).String(),
			"vector": vectors[i],
			"payload": map[string]any{
				"reference_id": chunks[i].ReferenceID,
				"chunk_id":     chunks[i].ChunkID,
				"index":        chunks[i].Index,
				"text":         chunks[i].Text,
				"pos":          s.next + i,
			},
		}
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", map[string]any{"points": points}, nil); err != nil {
		return err
	}
	s.next += len(chunks)
	return nil
}

// Search returns the topK best chunks. Qdrant orders equal scores by point
// id, so the limit grows until every hit tying the last kept score is seen,
// then ties are ranked by insertion position.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	limit := topK
	for {
		hits, err := s.search(ctx, vector, limit)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(hits, func(a, b int) bool {
			if hits[a].result.Score != hits[b].result.Score {
				return hits[a].result.Score > hits[b].result.Score
			}
			return hits[a].pos < hits[b].pos
		})
		if len(hits) == limit && hits[len(hits)-1].result.Score == hits[topK-1].result.Score {
			limit *= 2
			continue
		}
		if len(hits) > topK {
			hits = hits[:topK]
		}
		results := make([]domain.SearchResult, len(hits))
		for i, h := range hits {
			results[i] = h.result
		}
		return results, nil
	}
}

type hit struct {
	result domain.SearchResult
	pos    int
}

func (s *Storage) search(ctx context.Context, vector []float64, limit int) ([]hit, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"params":       map[string]any{"exact": true},
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	hits := make([]hit, 0, len(resp.Result))
	for i, r := range resp.Result {
		h := hit{result: domain.SearchResult{Score: r.Score}, pos: i}
		if v, ok := r.Payload["reference_id"].(string); ok {
			h.result.Chunk.ReferenceID = v
		}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			h.result.Chunk.ChunkID = v
		}
		if v, ok := r.Payload["index"].(float64); ok {
			h.result.Chunk.Index = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			h.result.Chunk.Text = v
		}
		if v, ok := r.Payload["pos"].(float64); ok {
			h.pos = int(v)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

type statusError struct {
	method, url string
	code        int
	status      string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.status)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{method: method, url: url, code: resp.StatusCode, status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
