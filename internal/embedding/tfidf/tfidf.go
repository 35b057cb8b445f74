package tfidf

import (
	"context"
	"errors"
	"maps"
	"math"
	"slices"

	"refcite/internal/embedding"
	"refcite/internal/textutil"
)

// ErrNotPrepared is returned by Embed before Prepare has fitted a corpus.
var ErrNotPrepared = errors.New("tfidf: embedder not prepared")

// term is one vocabulary column and its smoothed inverse document frequency.
type term struct {
	col int
	idf float64
}

// Embedder fits a TF-IDF vocabulary on the chunks of one run.
// Columns follow the lexical order of terms, so equal corpora give equal vectors.
// After Prepare it is read-only and safe for concurrent Embed calls.
type Embedder struct {
	terms map[string]term
}

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder() *Embedder { return &Embedder{} }

func (e *Embedder) Name() string { return "tfidf" }

// Prepare fits the vocabulary on corpus, replacing any earlier fit.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("tfidf: empty corpus")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		tokens := textutil.Tokenize(text)
		slices.Sort(tokens)
		for _, tok := range slices.Compact(tokens) {
			df[tok]++
		}
	}
	if len(df) == 0 {
		return errors.New("tfidf: corpus has no indexable terms")
	}
	n := float64(len(corpus))
	terms := make(map[string]term, len(df))
	for col, tok := range slices.Sorted(maps.Keys(df)) {
		terms[tok] = term{col: col, idf: math.Log((1+n)/(1+float64(df[tok]))) + 1}
	}
	e.terms = terms
	return nil
}

// Dimension is the vocabulary size, 0 before Prepare.
func (e *Embedder) Dimension() int { return len(e.terms) }

// Embed weights the term frequencies of text by idf and L2-normalizes the result.
// Text sharing no term with the corpus yields the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	if e.terms == nil {
		return nil, ErrNotPrepared
	}
	vec := make([]float64, len(e.terms))
	known := 0
	for _, tok := range textutil.Tokenize(text) {
		if t, ok := e.terms[tok]; ok {
			vec[t.col] += t.idf
			known++
		}
	}
	if known == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] /= float64(known)
	}
	return embedding.Normalize(vec), nil
}
