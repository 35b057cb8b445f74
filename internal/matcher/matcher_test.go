package matcher

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcite/internal/domain"
)

func hit(ref string, score float64) domain.SimilarityResult {
	return domain.SimilarityResult{ReferenceID: ref, ChunkID: ref + "_chunk_0", Score: score}
}

func TestMatchAcceptsBestAboveThreshold(t *testing.T) {
	m := New(0.75, 1)
	d := m.Match([]domain.SimilarityResult{hit("a", 0.82), hit("b", 0.78), hit("c", 0.45)})

	assert.True(t, d.CitationRequired)
	assert.Equal(t, "a", d.ReferenceID)
	assert.Equal(t, 0.82, d.ConfidenceScore)
	assert.Equal(t, ReasonAccepted, d.Reason)
	assert.Equal(t, []string{"a"}, m.History())
}

func TestMatchBelowThreshold(t *testing.T) {
	m := New(0.75, 1)
	d := m.Match([]domain.SimilarityResult{hit("a", 0.74), hit("b", 0.2)})

	assert.False(t, d.CitationRequired)
	assert.Empty(t, d.ReferenceID)
	assert.Equal(t, ReasonNoMatch, d.Reason)
	assert.Empty(t, m.History())

	d = m.Match(nil)
	assert.Equal(t, ReasonNoMatch, d.Reason)
}

func TestMatchThresholdIsInclusive(t *testing.T) {
	d := New(0.75, 1).Match([]domain.SimilarityResult{hit("a", 0.75)})
	assert.True(t, d.CitationRequired)
}

func TestMatchRoundsConfidence(t *testing.T) {
	d := New(0.5, 1).Match([]domain.SimilarityResult{hit("a", 0.876543)})
	assert.Equal(t, 0.877, d.ConfidenceScore)
}

func TestMatchResortsUnsortedInput(t *testing.T) {
	d := New(0.5, 1).Match([]domain.SimilarityResult{hit("low", 0.6), hit("high", 0.9)})
	assert.Equal(t, "high", d.ReferenceID)
}

func TestRepetitionBlocksImmediateReuse(t *testing.T) {
	m := New(0.75, 1)
	first := m.Match([]domain.SimilarityResult{hit("a", 0.9)})
	require.True(t, first.CitationRequired)

	second := m.Match([]domain.SimilarityResult{hit("a", 0.9)})
	assert.False(t, second.CitationRequired)
	assert.Equal(t, ReasonBlocked, second.Reason)
	assert.Equal(t, []string{"a"}, m.History())
}

func TestRepetitionFallsBackToNextCandidate(t *testing.T) {
	m := New(0.75, 1)
	m.Match([]domain.SimilarityResult{hit("a", 0.9)})

	d := m.Match([]domain.SimilarityResult{hit("a", 0.95), hit("b", 0.8)})
	assert.True(t, d.CitationRequired)
	assert.Equal(t, "b", d.ReferenceID)
	assert.Equal(t, 0.8, d.ConfidenceScore)

	// one other citation since "a" was accepted
	d = m.Match([]domain.SimilarityResult{hit("a", 0.9)})
	assert.True(t, d.CitationRequired)
	assert.Equal(t, "a", d.ReferenceID)
	assert.Equal(t, []string{"a", "b", "a"}, m.History())
}

func TestReuseDistanceCountsAcceptedCitations(t *testing.T) {
	m := New(0.75, 2)
	m.Match([]domain.SimilarityResult{hit("a", 0.9)})
	// rejected paragraphs do not move the distance
	m.Match([]domain.SimilarityResult{hit("x", 0.1)})
	m.Match([]domain.SimilarityResult{hit("b", 0.9)})

	d := m.Match([]domain.SimilarityResult{hit("a", 0.9)})
	assert.False(t, d.CitationRequired)

	m.Match([]domain.SimilarityResult{hit("c", 0.9)})
	d = m.Match([]domain.SimilarityResult{hit("a", 0.9)})
	assert.True(t, d.CitationRequired)
}

func TestZeroReuseDistanceAllowsRepeats(t *testing.T) {
	m := New(0.75, 0)
	for i := 0; i < 3; i++ {
		assert.True(t, m.Match([]domain.SimilarityResult{hit("a", 0.9)}).CitationRequired)
	}
}

func TestHistoryKeepsLastTwenty(t *testing.T) {
	m := New(0.5, 1)
	for i := 0; i < 25; i++ {
		d := m.Match([]domain.SimilarityResult{hit(fmt.Sprintf("ref%d", i), 0.9)})
		require.True(t, d.CitationRequired)
	}
	h := m.History()
	require.Len(t, h, HistorySize)
	assert.Equal(t, "ref5", h[0])
	assert.Equal(t, "ref24", h[HistorySize-1])

	// ref0 was evicted, so it is treated as never cited
	assert.True(t, m.Match([]domain.SimilarityResult{hit("ref0", 0.9)}).CitationRequired)

	m.Reset()
	assert.Empty(t, m.History())
}

func TestNeverCitesBelowThreshold(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := New(0.6, 1)
	for round := 0; round < 200; round++ {
		results := make([]domain.SimilarityResult, 1+rng.Intn(6))
		for i := range results {
			results[i] = hit(fmt.Sprintf("r%d", rng.Intn(4)), rng.Float64()*2-1)
		}
		d := m.Match(results)
		if !d.CitationRequired {
			continue
		}
		best := -2.0
		for _, r := range results {
			if r.ReferenceID == d.ReferenceID && r.Score >= 0.6 && r.Score > best {
				best = r.Score
			}
		}
		require.GreaterOrEqual(t, best, 0.6, "round %d cited %s below threshold", round, d.ReferenceID)
	}
}
