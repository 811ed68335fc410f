package vectorindex

import (
	"math"
	"sort"
	"sync"

	"webchat-backend/models"
)

// Index is an in-memory similarity index over embedded chunks. Vectors
// are L2-normalized on insertion so similarity reduces to an inner
// product, which equals cosine similarity. Entries live for the session
// lifetime only; there is no disk spill and no external service.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
}

type entry struct {
	chunk  models.Chunk
	vector []float32
}

func New() *Index { return &Index{} }

// Add inserts chunks with their embedding vectors. The first insertion
// fixes the index dimensionality; later mismatches are contract
// violations and fail without modifying the index.
func (ix *Index) Add(chunks []models.Chunk) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Validate against a local dimension so a rejected batch leaves the
	// index untouched, including the pinned dimensionality.
	dim := ix.dimension
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return &models.ConfigError{Field: "embedding", Reason: "chunk has no embedding vector"}
		}
		if dim == 0 {
			dim = len(ch.Embedding)
		} else if len(ch.Embedding) != dim {
			return &models.ConfigError{
				Field:  "embedding",
				Reason: "embedding dimension mismatch; one index must use a single embedding backend",
			}
		}
	}

	for _, ch := range chunks {
		ix.entries = append(ix.entries, entry{chunk: ch, vector: normalize(ch.Embedding)})
	}
	ix.dimension = dim
	return nil
}

// Query returns up to k entries by descending cosine similarity. Ties
// break by ascending position then ascending chunk ID so results are
// deterministic. An empty index yields an empty result, not an error.
func (ix *Index) Query(vector []float32, k int) ([]models.ScoredChunk, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.entries) == 0 {
		return nil, nil
	}
	if k <= 0 {
		return nil, &models.ConfigError{Field: "top_k", Reason: "must be a positive integer"}
	}
	if len(vector) != ix.dimension {
		return nil, &models.ConfigError{Field: "embedding", Reason: "query vector dimension mismatch"}
	}

	q := normalize(vector)
	results := make([]models.ScoredChunk, len(ix.entries))
	for i, e := range ix.entries {
		results[i] = models.ScoredChunk{Chunk: e.chunk, Score: dot(e.vector, q)}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Position != results[j].Chunk.Position {
			return results[i].Chunk.Position < results[j].Chunk.Position
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Dimension returns the fixed vector dimensionality, 0 if empty.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dimension
}

// Clear drops all entries and resets the dimensionality.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = nil
	ix.dimension = 0
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return append([]float32(nil), v...)
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
