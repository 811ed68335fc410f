package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webchat-backend/internal/config"
	"webchat-backend/models"
)

func testProviderConfig() *config.Config {
	return &config.Config{
		OpenAIModel:           "gpt-4o-mini",
		OpenAIEmbeddingsModel: "text-embedding-3-small",
		ProviderTimeout:       5 * time.Second,
		ProviderMaxRetries:    0,
		ProviderRPM:           6000,
	}
}

func testClient(t *testing.T, handler http.HandlerFunc) (*openaiClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := newOpenAIClient(testProviderConfig(), "test-key")
	c.baseURL = srv.URL
	return c, srv
}

func TestOpenAIEmbedBatchOrdersByIndex(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}

		var req embeddingsRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 2 {
			t.Errorf("input size = %d", len(req.Input))
		}

		// Entries deliberately out of order.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	})

	vecs, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("embeddings not reordered by index: %v", vecs)
	}
}

func TestOpenAIEmbedBatchCountMismatch(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	})

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	var provErr *models.ProviderError
	if !errors.As(err, &provErr) || provErr.Kind != models.ProviderMalformed {
		t.Fatalf("expected malformed ProviderError, got %v", err)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}

		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Temperature != 0.3 {
			t.Errorf("temperature = %f", req.Temperature)
		}
		if len(req.Messages) != 1 {
			t.Fatalf("messages = %d", len(req.Messages))
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "the answer, thanks for asking!"}},
			},
		})
	})

	chunks := []models.Chunk{
		{ID: "c1", SourceURL: "https://example.com", Position: 0, Text: "About us."},
	}
	result, err := c.Generate(context.Background(), "who are you?", chunks, 0.3, "Context:\n{context}\n\nQ: {question}")
	if err != nil {
		t.Fatal(err)
	}
	if result.Answer != "the answer, thanks for asking!" {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(result.UsedChunkIDs) != 1 || result.UsedChunkIDs[0] != "c1" {
		t.Errorf("used chunk IDs = %v", result.UsedChunkIDs)
	}
}

func TestOpenAIAuthErrorNotRetried(t *testing.T) {
	calls := 0
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})
	c.maxRetries = 3

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	var provErr *models.ProviderError
	if !errors.As(err, &provErr) || provErr.Kind != models.ProviderAuth {
		t.Fatalf("expected auth ProviderError, got %v", err)
	}
	if provErr.Retryable() {
		t.Error("auth error reported retryable")
	}
	if calls != 1 {
		t.Errorf("auth failure was retried %d times", calls-1)
	}
}

func TestOpenAIServerErrorClassifiedUnavailable(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	var provErr *models.ProviderError
	if !errors.As(err, &provErr) || provErr.Kind != models.ProviderUnavailable {
		t.Fatalf("expected unavailable ProviderError, got %v", err)
	}
	if !provErr.Retryable() {
		t.Error("server error should be retryable")
	}
}

func TestOpenAIRateLimitClassified(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	var provErr *models.ProviderError
	if !errors.As(err, &provErr) || provErr.Kind != models.ProviderRateLimit {
		t.Fatalf("expected rate-limit ProviderError, got %v", err)
	}
}
