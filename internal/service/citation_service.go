// Package service runs the citation pipeline: chunk the references, index
// the chunks, then match every paragraph in document order.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"refcite/internal/domain"
	"refcite/internal/embedding"
	"refcite/internal/index"
	"refcite/internal/matcher"
	"refcite/internal/metrics"
	"refcite/internal/vectorstore"
)

// ErrNoChunksProduced is returned when no reference contributed any text.
var ErrNoChunksProduced = errors.New("no chunks produced from reference texts")

// EmbedderFactory returns a fresh embedder for one run.
type EmbedderFactory func() (embedding.Embedder, error)

// StorageFactory returns an empty vector storage for one run. Storages that
// implement io.Closer are closed when the run ends.
type StorageFactory func() (vectorstore.Storage, error)

// Options are the matching knobs of a run.
type Options struct {
	TopK                int
	SimilarityThreshold float64
	MaxReuseDistance    int
	Workers             int
}

// DefaultOptions mirrors the documented configuration defaults.
func DefaultOptions() Options {
	return Options{
		TopK:                index.DefaultTopK,
		SimilarityThreshold: matcher.DefaultSimilarityThreshold,
		MaxReuseDistance:    matcher.DefaultMaxReuseDistance,
		Workers:             index.DefaultWorkers,
	}
}

// ParagraphDecision is the matcher outcome for one paragraph together with
// the hits it was based on.
type ParagraphDecision struct {
	Index     int                       `json:"index"`
	Paragraph string                    `json:"paragraph"`
	Decision  domain.CitationDecision   `json:"decision"`
	Matches   []domain.SimilarityResult `json:"matches,omitempty"`
}

// Report describes a full run.
type Report struct {
	RunID      string              `json:"run_id"`
	Embedder   string              `json:"embedder"`
	References int                 `json:"references"`
	Chunks     int                 `json:"chunks"`
	Cited      int                 `json:"cited"`
	Elapsed    time.Duration       `json:"elapsed_ns"`
	Decisions  []ParagraphDecision `json:"decisions"`
}

// Citations returns the accepted decisions keyed by paragraph index.
func (r *Report) Citations() map[int]domain.CitationDecision {
	out := make(map[int]domain.CitationDecision, r.Cited)
	for _, d := range r.Decisions {
		if d.Decision.CitationRequired {
			out[d.Index] = d.Decision
		}
	}
	return out
}

// CitationService holds no state between runs; every run gets its own
// embedder, storage, index and matcher.
type CitationService struct {
	chunker     domain.Chunker
	newEmbedder EmbedderFactory
	newStorage  StorageFactory
	opts        Options
	logger      *zap.Logger
}

func NewCitationService(chunker domain.Chunker, newEmbedder EmbedderFactory, newStorage StorageFactory, opts Options, logger *zap.Logger) *CitationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = index.DefaultTopK
	}
	return &CitationService{
		chunker:     chunker,
		newEmbedder: newEmbedder,
		newStorage:  newStorage,
		opts:        opts,
		logger:      logger,
	}
}

// Run returns the accepted citation decisions keyed by paragraph index.
func (s *CitationService) Run(ctx context.Context, referenceTexts map[string]string, paragraphs []string) (map[int]domain.CitationDecision, error) {
	report, err := s.RunDetailed(ctx, referenceTexts, paragraphs)
	if err != nil {
		return nil, err
	}
	return report.Citations(), nil
}

// RunDetailed is Run but keeps every decision, including the rejected ones.
func (s *CitationService) RunDetailed(ctx context.Context, referenceTexts map[string]string, paragraphs []string) (*Report, error) {
	report, err := s.run(ctx, referenceTexts, paragraphs)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PipelineRuns.WithLabelValues("success").Inc()
	return report, nil
}

func (s *CitationService) run(ctx context.Context, referenceTexts map[string]string, paragraphs []string) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := s.logger.With(zap.String("run_id", runID))

	chunks := s.chunker.ChunkAll(referenceTexts)
	if len(chunks) == 0 {
		return nil, ErrNoChunksProduced
	}
	log.Info("references chunked",
		zap.Int("references", len(referenceTexts)),
		zap.Int("chunks", len(chunks)),
	)

	emb, err := s.newEmbedder()
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	store, err := s.newStorage()
	if err != nil {
		return nil, fmt.Errorf("create vector storage: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	ix := index.New(emb, store,
		index.WithWorkers(s.opts.Workers),
		index.WithDefaultTopK(s.opts.TopK),
		index.WithLogger(log),
	)
	if err := ix.Build(ctx, chunks); err != nil {
		return nil, fmt.Errorf("build similarity index: %w", err)
	}

	m := matcher.New(s.opts.SimilarityThreshold, s.opts.MaxReuseDistance)
	report := &Report{
		RunID:      runID,
		Embedder:   emb.Name(),
		References: len(referenceTexts),
		Chunks:     len(chunks),
		Decisions:  make([]ParagraphDecision, 0, len(paragraphs)),
	}
	for i, p := range paragraphs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pd := ParagraphDecision{Index: i, Paragraph: p}
		if strings.TrimSpace(p) == "" {
			pd.Decision = domain.CitationDecision{Reason: matcher.ReasonNoMatch}
			report.Decisions = append(report.Decisions, pd)
			continue
		}
		results, err := ix.Search(ctx, p, s.opts.TopK)
		if err != nil {
			return nil, fmt.Errorf("paragraph %d: %w", i, err)
		}
		pd.Matches = results
		pd.Decision = m.Match(results)
		if pd.Decision.CitationRequired {
			report.Cited++
		}
		log.Debug("paragraph matched",
			zap.Int("paragraph", i),
			zap.Bool("cited", pd.Decision.CitationRequired),
			zap.String("reference_id", pd.Decision.ReferenceID),
			zap.String("reason", pd.Decision.Reason),
		)
		report.Decisions = append(report.Decisions, pd)
	}

	report.Elapsed = time.Since(start)
	log.Info("citation run finished",
		zap.Int("paragraphs", len(paragraphs)),
		zap.Int("cited", report.Cited),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}
