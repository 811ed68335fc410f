package models

// Chunk is a bounded slice of a fetched document, the unit of embedding
// and retrieval. Position preserves the original ordering within the
// source document, starting at 0.
type Chunk struct {
	ID        string    `json:"chunk_id"`
	SourceURL string    `json:"source_url"`
	Text      string    `json:"text"`
	Position  int       `json:"position"`
	Embedding []float32 `json:"-"`
}

// ScoredChunk pairs a chunk with its similarity score for one query.
// Scores are cosine similarities over L2-normalized vectors, so they
// fall in [-1, 1] with 1 meaning identical direction.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
