package domain

// Chunk is a bounded span of sentences from one reference, the unit of indexing.
type Chunk struct {
	ReferenceID string
	ChunkID     string
	Text        string
	Index       int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// SimilarityResult is one ranked hit returned by the similarity index.
type SimilarityResult struct {
	ReferenceID string  `json:"reference_id"`
	ChunkID     string  `json:"chunk_id"`
	Text        string  `json:"text"`
	Score       float64 `json:"similarity_score"`
}

// CitationDecision is the outcome of matching one paragraph.
// ReferenceID is empty when no citation is required.
type CitationDecision struct {
	CitationRequired bool    `json:"citation_required"`
	ReferenceID      string  `json:"reference_id,omitempty"`
	ConfidenceScore  float64 `json:"confidence_score"`
	Reason           string  `json:"reason"`
}

// ReferenceMetadata describes a reference for citation rendering.
type ReferenceMetadata struct {
	Authors []string `json:"authors" yaml:"authors"`
	Year    string   `json:"year" yaml:"year"`
	Title   string   `json:"title" yaml:"title"`
	Source  string   `json:"source" yaml:"source"`
	// Index is the IEEE number, assigned in order of first citation.
	Index int `json:"index,omitempty" yaml:"index,omitempty"`
}

// Chunker splits reference texts into chunks suitable for indexing.
type Chunker interface {
	Chunk(referenceID, text string) []Chunk
	ChunkAll(texts map[string]string) []Chunk
}
