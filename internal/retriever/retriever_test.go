package retriever

import (
	"context"
	"errors"
	"testing"

	"webchat-backend/internal/vectorindex"
	"webchat-backend/models"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

func indexed(t *testing.T, chunks ...models.Chunk) *vectorindex.Index {
	t.Helper()
	ix := vectorindex.New()
	if err := ix.Add(chunks); err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestRetrieveEmptyIndex(t *testing.T) {
	r := New(&fakeEmbedder{vector: []float32{1, 0}}, vectorindex.New())

	_, err := r.Retrieve(context.Background(), "anything", 3, 0)
	var emptyErr *models.EmptyIndexError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptyIndexError, got %v", err)
	}
}

func TestRetrieveTopK(t *testing.T) {
	ix := indexed(t,
		models.Chunk{ID: "a", SourceURL: "u", Position: 0, Embedding: []float32{1, 0}},
		models.Chunk{ID: "b", SourceURL: "u", Position: 1, Embedding: []float32{0.9, 0.1}},
		models.Chunk{ID: "c", SourceURL: "u", Position: 2, Embedding: []float32{0, 1}},
	)
	r := New(&fakeEmbedder{vector: []float32{1, 0}}, ix)

	results, err := r.Retrieve(context.Background(), "q", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "a" || results[1].Chunk.ID != "b" {
		t.Errorf("got %s, %s; want a, b", results[0].Chunk.ID, results[1].Chunk.ID)
	}
}

func TestRetrieveMinScoreFilter(t *testing.T) {
	ix := indexed(t,
		models.Chunk{ID: "near", SourceURL: "u", Position: 0, Embedding: []float32{1, 0}},
		models.Chunk{ID: "far", SourceURL: "u", Position: 1, Embedding: []float32{0, 1}},
	)
	r := New(&fakeEmbedder{vector: []float32{1, 0}}, ix)

	results, err := r.Retrieve(context.Background(), "q", 5, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result above threshold, got %d", len(results))
	}
	if results[0].Chunk.ID != "near" {
		t.Errorf("got %s, want near", results[0].Chunk.ID)
	}
}

func TestRetrieveDeduplicates(t *testing.T) {
	// Same (source, position) pair indexed twice, as after a double merge.
	ix := indexed(t,
		models.Chunk{ID: "one", SourceURL: "u", Position: 0, Embedding: []float32{1, 0}},
		models.Chunk{ID: "two", SourceURL: "u", Position: 0, Embedding: []float32{1, 0}},
		models.Chunk{ID: "other", SourceURL: "u", Position: 1, Embedding: []float32{0.5, 0.5}},
	)
	r := New(&fakeEmbedder{vector: []float32{1, 0}}, ix)

	results, err := r.Retrieve(context.Background(), "q", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected duplicates collapsed to 2 results, got %d", len(results))
	}
}

func TestRetrieveEmbedFailure(t *testing.T) {
	ix := indexed(t,
		models.Chunk{ID: "a", SourceURL: "u", Position: 0, Embedding: []float32{1, 0}},
	)
	wantErr := &models.ProviderError{Provider: "fake", Kind: models.ProviderUnavailable, Err: errors.New("down")}
	r := New(&fakeEmbedder{vector: []float32{1, 0}, err: wantErr}, ix)

	_, err := r.Retrieve(context.Background(), "q", 3, 0)
	var provErr *models.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestRetrieveEmptyQuestion(t *testing.T) {
	ix := indexed(t,
		models.Chunk{ID: "a", SourceURL: "u", Position: 0, Embedding: []float32{1, 0}},
	)
	r := New(&fakeEmbedder{vector: []float32{1, 0}}, ix)

	if _, err := r.Retrieve(context.Background(), "", 3, 0); err == nil {
		t.Fatal("expected error for empty question")
	}
}
