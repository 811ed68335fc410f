package retriever

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"webchat-backend/internal/ai"
	"webchat-backend/internal/vectorindex"
	"webchat-backend/models"
)

// Retriever answers "which indexed chunks are relevant to this
// question". It embeds the question with the session's embedding
// backend and ranks against the in-memory index.
type Retriever struct {
	embedder ai.EmbeddingProvider
	index    *vectorindex.Index
}

func New(embedder ai.EmbeddingProvider, index *vectorindex.Index) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Retrieve returns up to topK chunks scored by similarity, most similar
// first. Entries below minScore are dropped, as are duplicates of the
// same (source URL, position) pair. Querying before any ingest is a
// caller error and fails with EmptyIndexError.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int, minScore float64) ([]models.ScoredChunk, error) {
	ctx, span := otel.Tracer("retriever").Start(ctx, "retriever.retrieve")
	defer span.End()

	if r.index.Len() == 0 {
		return nil, &models.EmptyIndexError{}
	}
	if question == "" {
		return nil, &models.ConfigError{Field: "question", Reason: "must not be empty"}
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	// Overfetch so min-score and dedup filtering still leaves topK
	// candidates when the index has near-duplicate entries.
	scored, err := r.index.Query(vector, topK*2)
	if err != nil {
		return nil, err
	}

	type key struct {
		url string
		pos int
	}
	seen := make(map[key]struct{}, len(scored))
	results := make([]models.ScoredChunk, 0, topK)
	for _, sc := range scored {
		if sc.Score < minScore {
			continue
		}
		k := key{url: sc.Chunk.SourceURL, pos: sc.Chunk.Position}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		results = append(results, sc)
		if len(results) == topK {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("retriever.top_k", topK),
		attribute.Int("retriever.results", len(results)),
	)
	return results, nil
}
