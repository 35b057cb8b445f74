package chunker

import (
	"sort"
	"strconv"
	"strings"

	"refcite/internal/domain"
	"refcite/internal/textutil"
)

const (
	DefaultMaxChunkWords = 150
	DefaultOverlapWords  = 30
)

// SentenceChunker packs whole sentences into chunks bounded by a word budget.
// Each chunk after the first starts with the trailing words of its predecessor.
type SentenceChunker struct {
	maxChunkWords int
	overlapWords  int
}

func NewSentenceChunker(maxChunkWords, overlapWords int) *SentenceChunker {
	if maxChunkWords <= 0 {
		maxChunkWords = DefaultMaxChunkWords
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	return &SentenceChunker{
		maxChunkWords: maxChunkWords,
		overlapWords:  overlapWords,
	}
}

// ChunkAll chunks every reference in ascending reference id order, skipping
// references whose text is empty or whitespace only.
func (c *SentenceChunker) ChunkAll(texts map[string]string) []domain.Chunk {
	ids := make([]string, 0, len(texts))
	for id := range texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []domain.Chunk
	for _, id := range ids {
		if strings.TrimSpace(texts[id]) == "" {
			continue
		}
		out = append(out, c.Chunk(id, texts[id])...)
	}
	return out
}

// Chunk splits a single reference text. It returns nil for blank text.
func (c *SentenceChunker) Chunk(referenceID, text string) []domain.Chunk {
	var texts []string
	var (
		current []string
		words   int
	)
	for _, sentence := range textutil.Sentences(textutil.Normalize(text)) {
		n := textutil.WordCount(sentence)
		if words+n > c.maxChunkWords && len(current) > 0 {
			closed := strings.Join(current, " ")
			texts = append(texts, closed)
			current, words = nil, 0
			if overlap := textutil.LastWords(closed, c.overlapWords); overlap != "" {
				current = []string{overlap}
				words = textutil.WordCount(overlap)
			}
		}
		current = append(current, sentence)
		words += n
	}
	if len(current) > 0 {
		texts = append(texts, strings.Join(current, " "))
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{
			ReferenceID: referenceID,
			ChunkID:     referenceID + "_chunk_" + strconv.Itoa(i),
			Text:        t,
			Index:       i,
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	return chunks
}
