// Package matcher decides, paragraph by paragraph, whether the best
// similarity hits justify a citation.
package matcher

import (
	"math"
	"sort"

	"refcite/internal/domain"
	"refcite/internal/metrics"
)

const (
	DefaultSimilarityThreshold = 0.75
	DefaultMaxReuseDistance    = 1
)

const (
	ReasonNoMatch  = "No match above similarity threshold"
	ReasonAccepted = "High semantic similarity and passes quality controls"
	ReasonBlocked  = "Matches found but repetition rules blocked them"
)

// Matcher applies the similarity threshold and the reuse policy.
// It keeps the ids it accepted, so one Matcher must see paragraphs in
// document order and must not be shared between runs.
type Matcher struct {
	threshold        float64
	maxReuseDistance int
	history          history
}

func New(similarityThreshold float64, maxReuseDistance int) *Matcher {
	if maxReuseDistance < 0 {
		maxReuseDistance = 0
	}
	return &Matcher{threshold: similarityThreshold, maxReuseDistance: maxReuseDistance}
}

// Match returns the decision for one paragraph's search results.
func (m *Matcher) Match(results []domain.SimilarityResult) domain.CitationDecision {
	candidates := make([]domain.SimilarityResult, 0, len(results))
	for _, r := range results {
		if r.Score >= m.threshold {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		metrics.RecordDecision("below_threshold")
		return domain.CitationDecision{Reason: ReasonNoMatch}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	for _, c := range candidates {
		if !m.allowed(c.ReferenceID) {
			continue
		}
		m.history.push(c.ReferenceID)
		metrics.RecordDecision("cited")
		return domain.CitationDecision{
			CitationRequired: true,
			ReferenceID:      c.ReferenceID,
			ConfidenceScore:  math.Round(c.Score*1000) / 1000,
			Reason:           ReasonAccepted,
		}
	}
	metrics.RecordDecision("repetition_blocked")
	return domain.CitationDecision{Reason: ReasonBlocked}
}

func (m *Matcher) allowed(referenceID string) bool {
	d, seen := m.history.distance(referenceID)
	return !seen || d >= m.maxReuseDistance
}

// History returns the accepted reference ids, oldest first.
func (m *Matcher) History() []string { return m.history.entries() }

// Reset forgets every accepted citation.
func (m *Matcher) Reset() { m.history.reset() }
