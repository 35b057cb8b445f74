// Package sqlite keeps embedded chunks in a SQLite table and answers
// similarity queries with an exact scan over the stored vectors.
package sqlite

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"refcite/internal/domain"
)

const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
    pos          INTEGER PRIMARY KEY,
    reference_id TEXT NOT NULL,
    chunk_id     TEXT NOT NULL UNIQUE,
    idx          INTEGER NOT NULL,
    text         TEXT NOT NULL,
    embedding    BLOB NOT NULL
);
`

type row struct {
	Pos         int64  `db:"pos"`
	ReferenceID string `db:"reference_id"`
	ChunkID     string `db:"chunk_id"`
	Idx         int    `db:"idx"`
	Text        string `db:"text"`
	Embedding   []byte `db:"embedding"`
}

// Storage is a SQLite-backed vector store.
type Storage struct {
	db        *sqlx.DB
	dimension int
}

// Open opens a SQLite database using the modernc.org/sqlite driver.
// Use ":memory:" for a database that lives as long as the Storage.
func Open(dsn string) (*Storage, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// every pooled connection to ":memory:" would see its own empty database
	db.SetMaxOpenConns(1)
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error { return s.db.Close() }

// Init creates the chunks table and removes rows left from a previous build.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if _, err := s.db.ExecContext(ctx, chunksSchema); err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	s.dimension = dimension
	return s.Clear(ctx)
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO chunks(reference_id, chunk_id, idx, text, embedding) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ch := range chunks {
		if len(vectors[i]) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: %d != %d", len(vectors[i]), s.dimension)
		}
		if _, err := stmt.ExecContext(ctx, ch.ReferenceID, ch.ChunkID, ch.Index, ch.Text, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("sqlite: insert %s: %w", ch.ChunkID, err)
		}
	}
	return tx.Commit()
}

// Search scans all rows in insertion order and returns the topK by inner product.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: %d != %d", len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT pos, reference_id, chunk_id, idx, text, embedding FROM chunks ORDER BY pos`); err != nil {
		return nil, fmt.Errorf("sqlite: scan chunks: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(rows))
	for _, r := range rows {
		v, err := decodeVector(r.Embedding)
		if err != nil {
			return nil, err
		}
		score := 0.0
		for i := range v {
			score += v[i] * vector[i]
		}
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{ReferenceID: r.ReferenceID, ChunkID: r.ChunkID, Text: r.Text, Index: r.Idx},
			Score: score,
		})
	}
	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

// encodeVector stores float64 values as a little-endian BLOB without a length prefix.
func encodeVector(vec []float64) []byte {
	b := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

func decodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("sqlite: invalid embedding blob length %d (not multiple of 8)", len(b))
	}
	vec := make([]float64, len(b)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return vec, nil
}
