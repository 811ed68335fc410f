package chunker

import (
	"regexp"
	"strings"

	"webchat-backend/models"

	"github.com/google/uuid"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Chunker splits normalized text into overlapping character windows.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New validates and builds a chunker. Overlap must be strictly smaller
// than the chunk size and both must be positive.
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, &models.ConfigError{Field: "chunk_size", Reason: "must be a positive integer"}
	}
	if overlap < 0 {
		return nil, &models.ConfigError{Field: "chunk_overlap", Reason: "must not be negative"}
	}
	if overlap >= chunkSize {
		return nil, &models.ConfigError{Field: "chunk_overlap", Reason: "must be smaller than chunk_size"}
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split slides a window of chunkSize characters across the text,
// advancing by chunkSize-overlap each step. The final partial window is
// emitted if non-empty; only that tail chunk may be shorter than
// chunkSize. Boundaries and positions are deterministic for a given
// (text, chunkSize, overlap). Embeddings are attached later.
func (c *Chunker) Split(text, sourceURL string) []models.Chunk {
	// Window over runes, not bytes, so multibyte text never splits
	// mid-character at a chunk boundary.
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	step := c.chunkSize - c.overlap
	var chunks []models.Chunk
	for start, pos := 0, 0; start < len(runes); start, pos = start+step, pos+1 {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.Chunk{
			ID:        uuid.NewString(),
			SourceURL: sourceURL,
			Text:      string(runes[start:end]),
			Position:  pos,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// CleanText collapses runs of whitespace into single spaces and trims
// the result, matching what the fetcher feeds into Split.
func CleanText(text string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

// Stats summarizes a chunk set for session reporting.
func Stats(chunks []models.Chunk) (total int, avg float64) {
	if len(chunks) == 0 {
		return 0, 0
	}
	for _, ch := range chunks {
		total += len(ch.Text)
	}
	return total, float64(total) / float64(len(chunks))
}
