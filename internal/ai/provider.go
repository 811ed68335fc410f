package ai

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"webchat-backend/internal/config"
	"webchat-backend/internal/prompt"
	"webchat-backend/models"
)

// Provider names accepted by the factories.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// EmbeddingProvider produces fixed-dimension vectors for text. All
// vectors from one provider instance share a single dimensionality.
type EmbeddingProvider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch is order-preserving and equivalent to sequential
	// Embed calls.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateResult is the outcome of one LLM generation call.
type GenerateResult struct {
	Answer string
	// UsedChunkIDs lists the chunks attributable to the answer. When the
	// backend gives no finer signal this is all supplied context chunks.
	UsedChunkIDs []string
}

// AnswerGenerator wraps an LLM completion backend.
type AnswerGenerator interface {
	Name() string
	Generate(ctx context.Context, question string, contextChunks []models.Chunk, temperature float64, promptTemplate string) (GenerateResult, error)
}

// NewEmbeddingProvider builds the embedding variant for a provider name.
// An explicit apiKey overrides the process-level key from cfg.
func NewEmbeddingProvider(cfg *config.Config, name, apiKey string) (EmbeddingProvider, error) {
	switch name {
	case ProviderOpenAI:
		key := firstNonEmpty(apiKey, cfg.OpenAIAPIKey)
		if key == "" {
			return nil, &models.ConfigError{Field: "api_key", Reason: "missing OpenAI API key"}
		}
		return newOpenAIClient(cfg, key), nil
	case ProviderGemini:
		key := firstNonEmpty(apiKey, cfg.GeminiAPIKey)
		if key == "" {
			return nil, &models.ConfigError{Field: "api_key", Reason: "missing Google API key"}
		}
		return newGeminiClient(cfg, key)
	default:
		return nil, &models.ConfigError{Field: "embeddings_provider", Reason: "unsupported provider: " + name}
	}
}

// NewAnswerGenerator builds the generation variant for a provider name.
// Generation and embedding providers may name different vendors.
func NewAnswerGenerator(cfg *config.Config, name, apiKey string) (AnswerGenerator, error) {
	switch name {
	case ProviderOpenAI:
		key := firstNonEmpty(apiKey, cfg.OpenAIAPIKey)
		if key == "" {
			return nil, &models.ConfigError{Field: "api_key", Reason: "missing OpenAI API key"}
		}
		return newOpenAIClient(cfg, key), nil
	case ProviderGemini:
		key := firstNonEmpty(apiKey, cfg.GeminiAPIKey)
		if key == "" {
			return nil, &models.ConfigError{Field: "api_key", Reason: "missing Google API key"}
		}
		return newGeminiClient(cfg, key)
	default:
		return nil, &models.ConfigError{Field: "provider", Reason: "unsupported provider: " + name}
	}
}

// buildPrompt assembles the final prompt: context chunks concatenated in
// position order, substituted into the template with the question.
// Returns the prompt and the IDs of every chunk it includes.
func buildPrompt(question string, contextChunks []models.Chunk, promptTemplate string) (string, []string) {
	ordered := append([]models.Chunk(nil), contextChunks...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].SourceURL != ordered[j].SourceURL {
			return ordered[i].SourceURL < ordered[j].SourceURL
		}
		return ordered[i].Position < ordered[j].Position
	})

	parts := make([]string, 0, len(ordered))
	ids := make([]string, 0, len(ordered))
	for _, ch := range ordered {
		parts = append(parts, ch.Text)
		ids = append(ids, ch.ID)
	}

	return prompt.Render(promptTemplate, strings.Join(parts, "\n\n"), question), ids
}

// withRetry runs fn, retrying transient provider failures a bounded
// number of times with doubling backoff. Auth and malformed-response
// errors fail immediately.
func withRetry(ctx context.Context, maxRetries int, fn func() error) error {
	backoff := 500 * time.Millisecond
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var perr *models.ProviderError
		if !errors.As(err, &perr) || !perr.Retryable() || attempt >= maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
