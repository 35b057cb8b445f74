package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcite/internal/chunker"
	"refcite/internal/embedding"
	"refcite/internal/embedding/tfidf"
	"refcite/internal/vectorstore"
	"refcite/internal/vectorstore/memory"
	"refcite/internal/vectorstore/sqlite"
)

func newTestService(opts Options) *CitationService {
	return NewCitationService(
		chunker.NewSentenceChunker(20, 5),
		func() (embedding.Embedder, error) { return tfidf.NewEmbedder(), nil },
		func() (vectorstore.Storage, error) { return memory.NewStorage(), nil },
		opts,
		nil,
	)
}

var references = map[string]string{
	"neural.txt":  "Neural networks are widely used in deep learning. Deep neural networks stack many layers.",
	"climate.txt": "Climate change is caused by greenhouse gas emissions. Rising emissions warm the planet.",
	"empty.txt":   "   ",
}

func TestRunCitesMatchingParagraphs(t *testing.T) {
	opts := DefaultOptions()
	opts.SimilarityThreshold = 0.3
	svc := newTestService(opts)

	decisions, err := svc.Run(context.Background(), references, []string{
		"Greenhouse gas emissions drive climate change.",
		"Completely unrelated text about cooking pasta.",
		"Deep learning relies on neural networks.",
	})
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	assert.Equal(t, "climate.txt", decisions[0].ReferenceID)
	assert.Equal(t, "neural.txt", decisions[2].ReferenceID)
	_, ok := decisions[1]
	assert.False(t, ok)
	for _, d := range decisions {
		assert.True(t, d.CitationRequired)
		assert.GreaterOrEqual(t, d.ConfidenceScore, 0.3)
	}
}

func TestRunDetailedKeepsRejectedDecisions(t *testing.T) {
	opts := DefaultOptions()
	opts.SimilarityThreshold = 0.3
	svc := newTestService(opts)

	paragraphs := []string{
		"Greenhouse gas emissions drive climate change.",
		"Climate change follows greenhouse gas emissions.",
		"",
	}
	report, err := svc.RunDetailed(context.Background(), references, paragraphs)
	require.NoError(t, err)
	require.Len(t, report.Decisions, 3)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "tfidf", report.Embedder)
	assert.Equal(t, 3, report.References)
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, 1, report.Cited)

	assert.True(t, report.Decisions[0].Decision.CitationRequired)
	// same reference twice in a row is blocked
	assert.False(t, report.Decisions[1].Decision.CitationRequired)
	assert.Equal(t, "Matches found but repetition rules blocked them", report.Decisions[1].Decision.Reason)
	assert.NotEmpty(t, report.Decisions[1].Matches)
	assert.Equal(t, "No match above similarity threshold", report.Decisions[2].Decision.Reason)

	assert.Len(t, report.Citations(), 1)
}

func TestRunFailsWithoutChunks(t *testing.T) {
	svc := newTestService(DefaultOptions())
	_, err := svc.Run(context.Background(), map[string]string{"a.txt": "", "b.txt": " \n\t"}, []string{"anything"})
	require.ErrorIs(t, err, ErrNoChunksProduced)
}

func TestRunUsesFreshStatePerRun(t *testing.T) {
	opts := DefaultOptions()
	opts.SimilarityThreshold = 0.3
	svc := newTestService(opts)
	paragraphs := []string{"Greenhouse gas emissions drive climate change."}

	first, err := svc.Run(context.Background(), references, paragraphs)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), references, paragraphs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestService(DefaultOptions()).Run(ctx, references, []string{"climate"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunWithSQLiteStorage(t *testing.T) {
	opts := DefaultOptions()
	opts.SimilarityThreshold = 0.3
	svc := NewCitationService(
		chunker.NewSentenceChunker(0, 0),
		func() (embedding.Embedder, error) { return tfidf.NewEmbedder(), nil },
		func() (vectorstore.Storage, error) { return sqlite.Open("") },
		opts,
		nil,
	)
	decisions, err := svc.Run(context.Background(), references, []string{"Deep neural networks"})
	require.NoError(t, err)
	require.Contains(t, decisions, 0)
	assert.True(t, strings.HasPrefix(decisions[0].ReferenceID, "neural"))
}
