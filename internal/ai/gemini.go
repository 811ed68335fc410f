package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"webchat-backend/internal/config"
	"webchat-backend/internal/logger"
	"webchat-backend/models"
)

// geminiClient implements EmbeddingProvider and AnswerGenerator against
// the Google Generative AI API. Calls go through a circuit breaker and a
// client-side rate limiter; transient failures are retried with backoff.
type geminiClient struct {
	client          *genai.Client
	completionModel string
	embeddingModel  string
	dimension       int
	breaker         *gobreaker.CircuitBreaker
	limiter         *rate.Limiter
	maxRetries      int
}

func newGeminiClient(cfg *config.Config, apiKey string) (*geminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderAuth, Err: err}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
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
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), rpm/10+1)

	return &geminiClient{
		client:          client,
		completionModel: cfg.GeminiModel,
		embeddingModel:  cfg.GoogleEmbeddingsModel,
		dimension:       geminiDimension(cfg.GoogleEmbeddingsModel),
		breaker:         breaker,
		limiter:         limiter,
		maxRetries:      cfg.ProviderMaxRetries,
	}, nil
}

func geminiDimension(model string) int {
	// text-embedding-004 and embedding-001 both produce 768-dim vectors.
	return 768
}

func (c *geminiClient) Name() string   { return ProviderGemini }
func (c *geminiClient) Dimension() int { return c.dimension }

func (c *geminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *geminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gemini.batch_size", len(texts)),
		attribute.String("gemini.model", c.embeddingModel),
	)

	var vecs [][]float32
	err := withRetry(ctx, c.maxRetries, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderUnavailable, Err: err}
		}
		result, err := c.breaker.Execute(func() (interface{}, error) {
			em := c.client.EmbeddingModel(c.embeddingModel)
			batch := em.NewBatch()
			for _, t := range texts {
				batch.AddContent(genai.Text(t))
			}
			resp, err := em.BatchEmbedContents(ctx, batch)
			if err != nil {
				return nil, c.classify(err)
			}
			if len(resp.Embeddings) != len(texts) {
				return nil, &models.ProviderError{
					Provider: ProviderGemini,
					Kind:     models.ProviderMalformed,
					Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)),
				}
			}
			out := make([][]float32, len(resp.Embeddings))
			for i, e := range resp.Embeddings {
				if e == nil || len(e.Values) == 0 {
					return nil, &models.ProviderError{
						Provider: ProviderGemini,
						Kind:     models.ProviderMalformed,
						Err:      fmt.Errorf("empty embedding at index %d", i),
					}
				}
				out[i] = e.Values
			}
			return out, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderUnavailable, Err: err}
			}
			return err
		}
		vecs = result.([][]float32)
		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}
	return vecs, nil
}

func (c *geminiClient) Generate(ctx context.Context, question string, contextChunks []models.Chunk, temperature float64, promptTemplate string) (GenerateResult, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gemini.context_chunks", len(contextChunks)),
		attribute.String("gemini.model", c.completionModel),
		attribute.Float64("gemini.temperature", temperature),
	)

	fullPrompt, usedIDs := buildPrompt(question, contextChunks, promptTemplate)

	var answer string
	err := withRetry(ctx, c.maxRetries, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderUnavailable, Err: err}
		}
		result, err := c.breaker.Execute(func() (interface{}, error) {
			model := c.client.GenerativeModel(c.completionModel)
			model.SetTemperature(float32(temperature))
			resp, err := model.GenerateContent(ctx, genai.Text(fullPrompt))
			if err != nil {
				return nil, c.classify(err)
			}
			text := extractCandidateText(resp)
			if text == "" {
				return nil, &models.ProviderError{
					Provider: ProviderGemini,
					Kind:     models.ProviderMalformed,
					Err:      errors.New("no text candidates in response"),
				}
			}
			return text, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderUnavailable, Err: err}
			}
			return err
		}
		answer = result.(string)
		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return GenerateResult{}, err
	}

	return GenerateResult{Answer: answer, UsedChunkIDs: usedIDs}, nil
}

// classify maps genai transport errors onto the provider error taxonomy.
func (c *geminiClient) classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderAuth, Err: err}
		case gerr.Code == 429:
			return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderRateLimit, Err: err}
		case gerr.Code >= 500:
			return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderUnavailable, Err: err}
		default:
			return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderMalformed, Err: err}
		}
	}
	// API key problems surface as plain errors mentioning the key
	if strings.Contains(strings.ToLower(err.Error()), "api key") {
		return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderAuth, Err: err}
	}
	return &models.ProviderError{Provider: ProviderGemini, Kind: models.ProviderUnavailable, Err: err}
}

func extractCandidateText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}
