// Package index embeds reference chunks once and answers exact
// nearest-neighbor queries over them by cosine similarity.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"refcite/internal/domain"
	"refcite/internal/embedding"
	"refcite/internal/metrics"
	"refcite/internal/vectorstore"
)

var (
	// ErrIndexNotBuilt is returned by Search before a successful Build.
	ErrIndexNotBuilt = errors.New("similarity index not built")
	// ErrIndexAlreadyBuilt is returned by a second Build on the same Index.
	ErrIndexAlreadyBuilt = errors.New("similarity index already built")
	// ErrNoChunks is returned by Build when given nothing to index.
	ErrNoChunks = errors.New("no chunks to index")
)

const (
	DefaultTopK    = 5
	DefaultWorkers = 4
)

// Index is a build-once similarity index. It is not safe to call Build
// concurrently with Search; concurrent Search calls after Build are fine.
type Index struct {
	embedder embedding.Embedder
	store    vectorstore.Storage
	workers  int
	topK     int
	logger   *zap.Logger

	built     bool
	size      int
	dimension int
}

// Option configures an Index.
type Option func(*Index)

// WithWorkers bounds the number of concurrent Embed calls during Build.
func WithWorkers(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithDefaultTopK sets the result count used when Search is given topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(ix *Index) {
		if k > 0 {
			ix.topK = k
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

func New(embedder embedding.Embedder, store vectorstore.Storage, opts ...Option) *Index {
	ix := &Index{
		embedder: embedder,
		store:    store,
		workers:  DefaultWorkers,
		topK:     DefaultTopK,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Build embeds every chunk and loads the normalized vectors into the store.
// It must be called exactly once, before any Search.
func (ix *Index) Build(ctx context.Context, chunks []domain.Chunk) error {
	if ix.built {
		return ErrIndexAlreadyBuilt
	}
	if len(chunks) == 0 {
		return ErrNoChunks
	}
	start := time.Now()

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := ix.embedder.Prepare(texts); err != nil {
		return fmt.Errorf("prepare embedder %s: %w", ix.embedder.Name(), err)
	}
	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	dim := len(vectors[0])
	if dim == 0 {
		return errors.New("embedder returned empty vectors")
	}
	for i := range vectors {
		if len(vectors[i]) != dim {
			return fmt.Errorf("chunk %s: vector dimension %d != %d", chunks[i].ChunkID, len(vectors[i]), dim)
		}
		vectors[i] = normalized(vectors[i])
	}

	if err := ix.store.Init(ctx, dim); err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	if err := ix.store.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("load vector store: %w", err)
	}

	ix.built = true
	ix.size = len(chunks)
	ix.dimension = dim
	metrics.ChunksIndexed.Add(float64(len(chunks)))
	metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	ix.logger.Info("similarity index built",
		zap.String("embedder", ix.embedder.Name()),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", dim),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// embedAll returns one vector per text, in text order regardless of how the
// work is spread over goroutines.
func (ix *Index) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	if be, ok := ix.embedder.(embedding.BatchEmbedder); ok {
		vectors, err := be.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		return vectors, nil
	}

	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i := range texts {
		g.Go(func() error {
			v, err := ix.embedder.Embed(gctx, texts[i])
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Search embeds query and returns up to topK chunks by descending cosine
// similarity, ties in build order.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]domain.SimilarityResult, error) {
	if !ix.built {
		return nil, ErrIndexNotBuilt
	}
	if topK <= 0 {
		topK = ix.topK
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != ix.dimension {
		return nil, fmt.Errorf("query vector dimension %d != %d", len(vec), ix.dimension)
	}
	hits, err := ix.store.Search(ctx, normalized(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}
	out := make([]domain.SimilarityResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.SimilarityResult{
			ReferenceID: h.Chunk.ReferenceID,
			ChunkID:     h.Chunk.ChunkID,
			Text:        h.Chunk.Text,
			Score:       h.Score,
		})
	}
	return out, nil
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return ix.size }

// Dimension returns the vector dimension fixed at build time.
func (ix *Index) Dimension() int { return ix.dimension }

// normalized returns an L2-normalized copy; embedders may hand out shared slices.
func normalized(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return embedding.Normalize(out)
}
