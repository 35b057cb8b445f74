package vectorstore

import (
	"context"

	"refcite/internal/domain"
)

// Storage persists vectors and supports exact similarity search.
// Search returns results ordered by descending score with ties in insertion order.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
}
