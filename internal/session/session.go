package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"webchat-backend/internal/ai"
	"webchat-backend/internal/chunker"
	"webchat-backend/internal/config"
	"webchat-backend/internal/fetcher"
	"webchat-backend/internal/logger"
	"webchat-backend/internal/prompt"
	"webchat-backend/internal/retriever"
	"webchat-backend/internal/vectorindex"
	"webchat-backend/models"
)

// Provider batch APIs cap request sizes; 100 inputs per call is safe
// for both backends.
const embedBatchSize = 100

const snippetLength = 160

// ContentFetcher fetches and normalizes site content for one URL.
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string, followLinks bool) (*models.Document, error)
}

// ChatbotSession is one isolated chatbot instance: its settings, its
// in-memory vector index and its conversation history. All methods are
// safe for concurrent use.
type ChatbotSession struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	cfg          *config.Config
	settings     models.SessionConfig
	state        string
	index        *vectorindex.Index
	history      []models.ConversationTurn
	ingestedURLs []string
	chunkChars   int
	lastActivity time.Time

	fetcher ContentFetcher

	// Overridable in tests.
	newEmbedder  func(cfg *config.Config, name, apiKey string) (ai.EmbeddingProvider, error)
	newGenerator func(cfg *config.Config, name, apiKey string) (ai.AnswerGenerator, error)
}

// NewChatbotSession creates an empty session with the given settings
// already validated by the caller.
func NewChatbotSession(id string, cfg *config.Config, settings models.SessionConfig) *ChatbotSession {
	now := time.Now()
	return &ChatbotSession{
		ID:           id,
		CreatedAt:    now,
		cfg:          cfg,
		settings:     settings,
		state:        models.SessionEmpty,
		index:        vectorindex.New(),
		lastActivity: now,
		fetcher:      fetcher.New(cfg),
		newEmbedder:  ai.NewEmbeddingProvider,
		newGenerator: ai.NewAnswerGenerator,
	}
}

// DefaultSettings derives the initial session settings from process
// configuration.
func DefaultSettings(cfg *config.Config) models.SessionConfig {
	return models.SessionConfig{
		Provider:     cfg.DefaultProvider,
		Temperature:  cfg.DefaultTemperature,
		ChunkSize:    cfg.DefaultChunkSize,
		ChunkOverlap: cfg.DefaultOverlap,
		WebsiteName:  cfg.WebsiteName,
		TopK:         cfg.DefaultTopK,
		MinScore:     cfg.DefaultMinScore,
	}
}

// Ingest fetches a URL, chunks and embeds its content and publishes the
// result into the session index. The operation is all-or-nothing: any
// failure leaves the previous index, state and history untouched. By
// default the new content replaces whatever was indexed before; merge
// appends it instead.
func (s *ChatbotSession) Ingest(ctx context.Context, rawURL string, merge, followLinks bool) (*models.IngestSummary, error) {
	ctx, span := otel.Tracer("session").Start(ctx, "session.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.ID), attribute.Bool("ingest.merge", merge))

	s.mu.Lock()
	settings := s.settings
	indexDim := s.index.Dimension()
	merging := merge && s.state == models.SessionReady
	s.mu.Unlock()

	embedder, err := s.newEmbedder(s.cfg, settings.EmbedderName(), settings.APIKey)
	if err != nil {
		return nil, err
	}
	// A merge must extend the existing index, so the embedder has to
	// produce vectors of the same width. Catch the pairing before any
	// fetching or embedding work.
	if merging && indexDim != 0 {
		if dim := embedder.Dimension(); dim != 0 && dim != indexDim {
			return nil, &models.ConfigError{
				Field:  "embeddings_provider",
				Reason: fmt.Sprintf("embedder produces %d-dim vectors but the index holds %d-dim vectors", dim, indexDim),
			}
		}
	}

	doc, err := s.fetcher.Fetch(ctx, rawURL, followLinks)
	if err != nil {
		return nil, err
	}

	ck, err := chunker.New(settings.ChunkSize, settings.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	chunks := ck.Split(doc.Text, doc.URL)
	if len(chunks) == 0 {
		return nil, &models.FetchError{URL: doc.URL, Reason: "page yielded no indexable text"}
	}

	if err := embedChunks(ctx, embedder, chunks); err != nil {
		return nil, err
	}

	// Everything fallible is done. Publish under the lock: merge appends
	// into the live index, replace swaps in a freshly built one.
	s.mu.Lock()
	defer s.mu.Unlock()

	totalChars, _ := chunker.Stats(chunks)
	merged := merge && s.state == models.SessionReady
	if merged {
		if err := s.index.Add(chunks); err != nil {
			return nil, err
		}
		if !containsURL(s.ingestedURLs, doc.URL) {
			s.ingestedURLs = append(s.ingestedURLs, doc.URL)
		}
		s.chunkChars += totalChars
	} else {
		fresh := vectorindex.New()
		if err := fresh.Add(chunks); err != nil {
			return nil, err
		}
		s.index = fresh
		s.ingestedURLs = []string{doc.URL}
		s.chunkChars = totalChars
	}
	s.state = models.SessionReady
	s.lastActivity = time.Now()

	logger.Info("content ingested",
		"session_id", s.ID,
		"url", doc.URL,
		"pages", doc.Pages,
		"chunks", len(chunks),
		"merged", merged,
	)

	return &models.IngestSummary{
		SourceURL: doc.URL,
		NumChunks: len(chunks),
		Pages:     doc.Pages,
		Merged:    merged,
	}, nil
}

// Ask answers a question from indexed content. The conversation turn is
// appended only after generation succeeds; a failed ask leaves history
// unchanged. Asking before any ingest fails with EmptyIndexError.
func (s *ChatbotSession) Ask(ctx context.Context, question string) (*models.AskResult, error) {
	ctx, span := otel.Tracer("session").Start(ctx, "session.ask")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.ID))

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &models.ConfigError{Field: "question", Reason: "must not be empty"}
	}

	s.mu.Lock()
	if s.state != models.SessionReady {
		s.mu.Unlock()
		return nil, &models.EmptyIndexError{SessionID: s.ID}
	}
	settings := s.settings
	index := s.index
	s.mu.Unlock()

	embedder, err := s.newEmbedder(s.cfg, settings.EmbedderName(), settings.APIKey)
	if err != nil {
		return nil, err
	}
	generator, err := s.newGenerator(s.cfg, settings.Provider, settings.APIKey)
	if err != nil {
		return nil, err
	}

	scored, err := retriever.New(embedder, index).Retrieve(ctx, question, settings.TopK, settings.MinScore)
	if err != nil {
		return nil, err
	}

	contextChunks := make([]models.Chunk, len(scored))
	for i, sc := range scored {
		contextChunks[i] = sc.Chunk
	}

	var template string
	if settings.PromptStyle == models.PromptStyleQA {
		template = prompt.QATemplate(settings.WebsiteName)
	} else {
		template = prompt.ChatTemplate(settings.Provider, settings.WebsiteName)
	}
	result, err := generator.Generate(ctx, question, contextChunks, settings.Temperature, template)
	if err != nil {
		return nil, err
	}

	citedIDs := result.UsedChunkIDs
	if len(citedIDs) == 0 {
		for _, ch := range contextChunks {
			citedIDs = append(citedIDs, ch.ID)
		}
	}
	sources := citedSources(contextChunks, citedIDs)

	turn := models.ConversationTurn{
		Question:      question,
		Answer:        result.Answer,
		CitedChunkIDs: citedIDs,
		Timestamp:     time.Now(),
	}

	s.mu.Lock()
	s.history = append(s.history, turn)
	s.lastActivity = turn.Timestamp
	s.mu.Unlock()

	return &models.AskResult{
		Answer:        result.Answer,
		CitedSources:  sources,
		CitedChunkIDs: citedIDs,
	}, nil
}

// Configure replaces the session settings. Changing the chunk
// parameters invalidates an existing index, since its chunks no longer
// reflect the configured geometry; the session drops back to empty and
// must re-ingest. History survives reconfiguration.
func (s *ChatbotSession) Configure(settings models.SessionConfig) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == models.SessionReady && settings.ChunkingChanged(s.settings) {
		s.index.Clear()
		s.state = models.SessionEmpty
		s.ingestedURLs = nil
		s.chunkChars = 0
		logger.Info("chunking parameters changed, index invalidated", "session_id", s.ID)
	}
	s.settings = settings
	s.lastActivity = time.Now()
	return nil
}

// Reset clears the index and the conversation history but keeps the
// settings, returning the session to its initial empty state.
func (s *ChatbotSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Clear()
	s.history = nil
	s.ingestedURLs = nil
	s.chunkChars = 0
	s.state = models.SessionEmpty
	s.lastActivity = time.Now()
}

// History returns a copy of the conversation turns in order.
func (s *ChatbotSession) History() []models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ConversationTurn(nil), s.history...)
}

// Settings returns the current session settings.
func (s *ChatbotSession) Settings() models.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// State returns the current lifecycle state.
func (s *ChatbotSession) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats snapshots the session for the stats endpoint.
func (s *ChatbotSession) Stats() models.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avg float64
	if n := s.index.Len(); n > 0 {
		avg = float64(s.chunkChars) / float64(n)
	}
	return models.SessionStats{
		SessionID:    s.ID,
		State:        s.state,
		ChunkCount:   s.index.Len(),
		TurnCount:    len(s.history),
		IngestedURLs: append([]string(nil), s.ingestedURLs...),
		AvgChunkSize: avg,
		LastActivity: s.lastActivity,
	}
}

// LastActivity returns the time of the most recent operation.
func (s *ChatbotSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func embedChunks(ctx context.Context, embedder ai.EmbeddingProvider, chunks []models.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return &models.ProviderError{
				Provider: embedder.Name(),
				Kind:     models.ProviderMalformed,
				Err:      fmt.Errorf("got %d embeddings for %d inputs", len(vectors), len(batch)),
			}
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
	}
	return nil
}

func citedSources(chunks []models.Chunk, citedIDs []string) []models.CitedSource {
	cited := make(map[string]struct{}, len(citedIDs))
	for _, id := range citedIDs {
		cited[id] = struct{}{}
	}

	seen := make(map[string]struct{})
	var sources []models.CitedSource
	for _, ch := range chunks {
		if _, ok := cited[ch.ID]; !ok {
			continue
		}
		if _, ok := seen[ch.SourceURL]; ok {
			continue
		}
		seen[ch.SourceURL] = struct{}{}
		sources = append(sources, models.CitedSource{
			URL:     ch.SourceURL,
			Snippet: snippet(ch.Text),
		})
	}
	return sources
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= snippetLength {
		return text
	}
	cut := text[:snippetLength]
	if idx := strings.LastIndexByte(cut, ' '); idx > snippetLength/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func containsURL(urls []string, u string) bool {
	for _, existing := range urls {
		if existing == u {
			return true
		}
	}
	return false
}
