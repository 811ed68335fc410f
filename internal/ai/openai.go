package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"webchat-backend/internal/config"
	"webchat-backend/internal/logger"
	"webchat-backend/models"
)

const openaiBaseURL = "https://api.openai.com"

// openaiClient implements EmbeddingProvider and AnswerGenerator against
// the OpenAI HTTP API.
type openaiClient struct {
	apiKey          string
	baseURL         string
	completionModel string
	embeddingModel  string
	dimension       int
	httpClient      *http.Client
	breaker         *gobreaker.CircuitBreaker
	limiter         *rate.Limiter
	maxRetries      int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func newOpenAIClient(cfg *config.Config, apiKey string) *openaiClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "OpenAIAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	rpm := cfg.ProviderRPM
	if rpm <= 0 {
		rpm = 60
	}

	return &openaiClient{
		apiKey:          apiKey,
		baseURL:         openaiBaseURL,
		completionModel: cfg.OpenAIModel,
		embeddingModel:  cfg.OpenAIEmbeddingsModel,
		dimension:       openaiDimension(cfg.OpenAIEmbeddingsModel),
		httpClient:      &http.Client{Timeout: cfg.ProviderTimeout},
		breaker:         breaker,
		limiter:         rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), rpm/10+1),
		maxRetries:      cfg.ProviderMaxRetries,
	}
}

func openaiDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-ada-002", "text-embedding-3-small":
		return 1536
	default:
		return 1536
	}
}

func (c *openaiClient) Name() string   { return ProviderOpenAI }
func (c *openaiClient) Dimension() int { return c.dimension }

func (c *openaiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *openaiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("openai-client")
	ctx, span := tracer.Start(ctx, "openai.embed_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("openai.batch_size", len(texts)),
		attribute.String("openai.model", c.embeddingModel),
	)

	body, err := json.Marshal(embeddingsRequest{Model: c.embeddingModel, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var vecs [][]float32
	err = withRetry(ctx, c.maxRetries, func() error {
		raw, err := c.post(ctx, "/v1/embeddings", body)
		if err != nil {
			return err
		}
		var resp embeddingsResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return &models.ProviderError{Provider: ProviderOpenAI, Kind: models.ProviderMalformed, Err: err}
		}
		if len(resp.Data) != len(texts) {
			return &models.ProviderError{
				Provider: ProviderOpenAI,
				Kind:     models.ProviderMalformed,
				Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
			}
		}
		// The API echoes each input's index; order by it rather than
		// trusting response ordering.
		out := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(out) || len(d.Embedding) == 0 {
				return &models.ProviderError{
					Provider: ProviderOpenAI,
					Kind:     models.ProviderMalformed,
					Err:      fmt.Errorf("bad embedding entry at index %d", d.Index),
				}
			}
			out[d.Index] = d.Embedding
		}
		vecs = out
		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("openai.error", true))
		return nil, err
	}
	return vecs, nil
}

func (c *openaiClient) Generate(ctx context.Context, question string, contextChunks []models.Chunk, temperature float64, promptTemplate string) (GenerateResult, error) {
	tracer := otel.Tracer("openai-client")
	ctx, span := tracer.Start(ctx, "openai.generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("openai.context_chunks", len(contextChunks)),
		attribute.String("openai.model", c.completionModel),
		attribute.Float64("openai.temperature", temperature),
	)

	fullPrompt, usedIDs := buildPrompt(question, contextChunks, promptTemplate)

	body, err := json.Marshal(chatRequest{
		Model:       c.completionModel,
		Messages:    []chatMessage{{Role: "user", Content: fullPrompt}},
		Temperature: temperature,
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var answer string
	err = withRetry(ctx, c.maxRetries, func() error {
		raw, err := c.post(ctx, "/v1/chat/completions", body)
		if err != nil {
			return err
		}
		var resp chatResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return &models.ProviderError{Provider: ProviderOpenAI, Kind: models.ProviderMalformed, Err: err}
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return &models.ProviderError{
				Provider: ProviderOpenAI,
				Kind:     models.ProviderMalformed,
				Err:      errors.New("no choices in response"),
			}
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("openai.error", true))
		return GenerateResult{}, err
	}

	return GenerateResult{Answer: answer, UsedChunkIDs: usedIDs}, nil
}

// post sends one authenticated request through the rate limiter and
// circuit breaker, classifying HTTP failures into the error taxonomy.
func (c *openaiClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &models.ProviderError{Provider: ProviderOpenAI, Kind: models.ProviderUnavailable, Err: err}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &models.ProviderError{Provider: ProviderOpenAI, Kind: models.ProviderUnavailable, Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &models.ProviderError{Provider: ProviderOpenAI, Kind: models.ProviderMalformed, Err: err}
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return raw, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &models.ProviderError{
				Provider: ProviderOpenAI, Kind: models.ProviderAuth,
				Err: fmt.Errorf("API returned status %d", resp.StatusCode),
			}
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &models.ProviderError{
				Provider: ProviderOpenAI, Kind: models.ProviderRateLimit,
				Err: fmt.Errorf("API returned status %d", resp.StatusCode),
			}
		case resp.StatusCode >= 500:
			return nil, &models.ProviderError{
				Provider: ProviderOpenAI, Kind: models.ProviderUnavailable,
				Err: fmt.Errorf("API returned status %d", resp.StatusCode),
			}
		default:
			return nil, &models.ProviderError{
				Provider: ProviderOpenAI, Kind: models.ProviderMalformed,
				Err: fmt.Errorf("API returned status %d", resp.StatusCode),
			}
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, &models.ProviderError{Provider: ProviderOpenAI, Kind: models.ProviderUnavailable, Err: err}
		}
		return nil, err
	}
	return result.([]byte), nil
}
