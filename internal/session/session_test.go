package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"webchat-backend/internal/ai"
	"webchat-backend/internal/config"
	"webchat-backend/models"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultProvider:    "openai",
		OpenAIAPIKey:       "test-key",
		DefaultTemperature: 0.3,
		DefaultChunkSize:   1000,
		DefaultOverlap:     100,
		DefaultTopK:        3,
		WebsiteName:        "BotPenguin",
		SessionTTL:         time.Hour,
	}
}

type fakeFetcher struct {
	text string
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, followLinks bool) (*models.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Document{
		URL:       rawURL,
		Title:     "Test Page",
		Text:      f.text,
		Pages:     1,
		FetchedAt: time.Now(),
	}, nil
}

type fakeEmbedder struct {
	calls int
	err   error
	dim   int
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Dimension() int {
	if f.dim != 0 {
		return f.dim
	}
	return 3
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeGenerator struct {
	answer   string
	err      error
	calls    int
	template string
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, question string, contextChunks []models.Chunk, temperature float64, promptTemplate string) (ai.GenerateResult, error) {
	f.calls++
	f.template = promptTemplate
	if f.err != nil {
		return ai.GenerateResult{}, f.err
	}
	ids := make([]string, len(contextChunks))
	for i, ch := range contextChunks {
		ids[i] = ch.ID
	}
	return ai.GenerateResult{Answer: f.answer, UsedChunkIDs: ids}, nil
}

func newTestSession(t *testing.T, fetch *fakeFetcher, embed *fakeEmbedder, gen *fakeGenerator) *ChatbotSession {
	t.Helper()
	cfg := testConfig()
	s := NewChatbotSession("test-session", cfg, DefaultSettings(cfg))
	s.fetcher = fetch
	s.newEmbedder = func(*config.Config, string, string) (ai.EmbeddingProvider, error) { return embed, nil }
	s.newGenerator = func(*config.Config, string, string) (ai.AnswerGenerator, error) { return gen, nil }
	return s
}

func TestIngestTransitionsToReady(t *testing.T) {
	text := strings.Repeat("a", 3000)
	s := newTestSession(t, &fakeFetcher{text: text}, &fakeEmbedder{}, &fakeGenerator{answer: "ok"})

	summary, err := s.Ingest(context.Background(), "https://example.com", false, false)
	if err != nil {
		t.Fatal(err)
	}
	// 3000 chars at size 1000 / overlap 100: starts 0, 900, 1800, 2700.
	if summary.NumChunks != 4 {
		t.Errorf("NumChunks = %d, want 4", summary.NumChunks)
	}
	if s.State() != models.SessionReady {
		t.Errorf("state = %s, want ready", s.State())
	}

	stats := s.Stats()
	if stats.ChunkCount != 4 {
		t.Errorf("ChunkCount = %d, want 4", stats.ChunkCount)
	}
	if len(stats.IngestedURLs) != 1 {
		t.Errorf("IngestedURLs = %v", stats.IngestedURLs)
	}
}

func TestIngestFetchFailureLeavesSessionEmpty(t *testing.T) {
	fetchErr := &models.FetchError{URL: "https://bad.example.com", Reason: "connection refused"}
	s := newTestSession(t, &fakeFetcher{err: fetchErr}, &fakeEmbedder{}, &fakeGenerator{})

	_, err := s.Ingest(context.Background(), "https://bad.example.com", false, false)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if s.State() != models.SessionEmpty {
		t.Errorf("state = %s, want empty", s.State())
	}
	if s.Stats().ChunkCount != 0 {
		t.Error("failed ingest left chunks behind")
	}
}

func TestIngestEmbedFailurePreservesPreviousIndex(t *testing.T) {
	embed := &fakeEmbedder{}
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, embed, &fakeGenerator{})

	if _, err := s.Ingest(context.Background(), "https://example.com", false, false); err != nil {
		t.Fatal(err)
	}
	before := s.Stats()

	embed.err = &models.ProviderError{Provider: "fake", Kind: models.ProviderUnavailable, Err: errors.New("down")}
	_, err := s.Ingest(context.Background(), "https://example.com/other", false, false)
	if err == nil {
		t.Fatal("expected embed failure")
	}

	after := s.Stats()
	if after.ChunkCount != before.ChunkCount {
		t.Errorf("chunk count changed %d -> %d on failed ingest", before.ChunkCount, after.ChunkCount)
	}
	if s.State() != models.SessionReady {
		t.Errorf("state = %s, want ready", s.State())
	}
	if len(after.IngestedURLs) != 1 || after.IngestedURLs[0] != "https://example.com" {
		t.Errorf("IngestedURLs = %v", after.IngestedURLs)
	}
}

func TestIngestReplaceIsDefault(t *testing.T) {
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, &fakeGenerator{})

	if _, err := s.Ingest(context.Background(), "https://example.com/first", false, false); err != nil {
		t.Fatal(err)
	}
	first := s.Stats().ChunkCount

	if _, err := s.Ingest(context.Background(), "https://example.com/second", false, false); err != nil {
		t.Fatal(err)
	}

	stats := s.Stats()
	if stats.ChunkCount != first {
		t.Errorf("replace produced %d chunks, want %d", stats.ChunkCount, first)
	}
	if len(stats.IngestedURLs) != 1 || stats.IngestedURLs[0] != "https://example.com/second" {
		t.Errorf("IngestedURLs = %v, want only the second URL", stats.IngestedURLs)
	}
}

func TestIngestMergeAppends(t *testing.T) {
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, &fakeGenerator{})

	if _, err := s.Ingest(context.Background(), "https://example.com/first", false, false); err != nil {
		t.Fatal(err)
	}
	first := s.Stats().ChunkCount

	summary, err := s.Ingest(context.Background(), "https://example.com/second", true, false)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.Merged {
		t.Error("summary.Merged = false for merge ingest")
	}

	stats := s.Stats()
	if stats.ChunkCount != first*2 {
		t.Errorf("merge produced %d chunks, want %d", stats.ChunkCount, first*2)
	}
	if len(stats.IngestedURLs) != 2 {
		t.Errorf("IngestedURLs = %v, want both URLs", stats.IngestedURLs)
	}
}

func TestIngestMergeSameURLReportsMerged(t *testing.T) {
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, &fakeGenerator{})

	if _, err := s.Ingest(context.Background(), "https://example.com", false, false); err != nil {
		t.Fatal(err)
	}
	first := s.Stats().ChunkCount

	summary, err := s.Ingest(context.Background(), "https://example.com", true, false)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.Merged {
		t.Error("summary.Merged = false even though chunks were appended")
	}
	if got := s.Stats().ChunkCount; got != first*2 {
		t.Errorf("chunk count = %d, want %d", got, first*2)
	}
}

func TestIngestMergeIntoEmptySessionIsNotMerged(t *testing.T) {
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, &fakeGenerator{})

	summary, err := s.Ingest(context.Background(), "https://example.com", true, false)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Merged {
		t.Error("summary.Merged = true for the first ingest of an empty session")
	}
}

func TestIngestMergeRejectsMismatchedEmbedderDimension(t *testing.T) {
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, &fakeGenerator{})

	if _, err := s.Ingest(context.Background(), "https://example.com/first", false, false); err != nil {
		t.Fatal(err)
	}

	// A different-width embedder cannot extend the existing index. The
	// pairing fails before any fetch happens.
	s.newEmbedder = func(*config.Config, string, string) (ai.EmbeddingProvider, error) {
		return &fakeEmbedder{dim: 4}, nil
	}
	s.fetcher = &fakeFetcher{err: errors.New("fetch should not run")}

	_, err := s.Ingest(context.Background(), "https://example.com/second", true, false)
	var cfgErr *models.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
	if s.Stats().ChunkCount == 0 {
		t.Error("failed merge damaged the existing index")
	}
}

func TestAskBeforeIngest(t *testing.T) {
	gen := &fakeGenerator{answer: "should not run"}
	s := newTestSession(t, &fakeFetcher{text: "x"}, &fakeEmbedder{}, gen)

	_, err := s.Ask(context.Background(), "What is this site?")
	var emptyErr *models.EmptyIndexError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptyIndexError, got %v", err)
	}
	if gen.calls != 0 {
		t.Error("generator was called on an empty session")
	}
	if len(s.History()) != 0 {
		t.Error("failed ask appended to history")
	}
}

func TestAskAppendsHistoryInOrder(t *testing.T) {
	gen := &fakeGenerator{answer: "the answer, thanks for asking!"}
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, gen)

	if _, err := s.Ingest(context.Background(), "https://example.com", false, false); err != nil {
		t.Fatal(err)
	}

	for _, q := range []string{"first question", "second question"} {
		result, err := s.Ask(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		if result.Answer != gen.answer {
			t.Errorf("answer = %q", result.Answer)
		}
		if len(result.CitedSources) == 0 {
			t.Error("answer has no cited sources")
		}
	}

	history := s.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Question != "first question" || history[1].Question != "second question" {
		t.Errorf("history out of order: %q, %q", history[0].Question, history[1].Question)
	}
	if len(history[0].CitedChunkIDs) == 0 {
		t.Error("turn has no cited chunk IDs")
	}
}

func TestAskHonorsPromptStyle(t *testing.T) {
	gen := &fakeGenerator{answer: "ok"}
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, gen)

	settings := DefaultSettings(testConfig())
	settings.PromptStyle = models.PromptStyleQA
	if err := s.Configure(settings); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Ingest(context.Background(), "https://example.com", false, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gen.template, "Helpful Answer:") {
		t.Errorf("qa style did not reach the generator, template = %q", gen.template)
	}

	settings.PromptStyle = models.PromptStyleChat
	if err := s.Configure(settings); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gen.template, "Helpful Answer:") {
		t.Error("chat style still used the qa template")
	}
}

func TestAskGenerateFailureLeavesHistoryUnchanged(t *testing.T) {
	gen := &fakeGenerator{err: &models.ProviderError{Provider: "fake", Kind: models.ProviderAuth, Err: errors.New("bad key")}}
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, gen)

	if _, err := s.Ingest(context.Background(), "https://example.com", false, false); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Ask(context.Background(), "q"); err == nil {
		t.Fatal("expected generation failure")
	}
	if len(s.History()) != 0 {
		t.Error("failed ask appended to history")
	}
}

func TestConfigureChunkingChangeInvalidatesIndex(t *testing.T) {
	gen := &fakeGenerator{answer: "a"}
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, gen)

	if _, err := s.Ingest(context.Background(), "https://example.com", false, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}

	settings := s.Settings()
	settings.ChunkSize = 1500
	if err := s.Configure(settings); err != nil {
		t.Fatal(err)
	}

	if s.State() != models.SessionEmpty {
		t.Errorf("state = %s, want empty after chunking change", s.State())
	}
	if s.Stats().ChunkCount != 0 {
		t.Error("index survived a chunking change")
	}
	if len(s.History()) != 1 {
		t.Error("history was dropped by reconfiguration")
	}
}

func TestConfigureSameChunkingKeepsIndex(t *testing.T) {
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, &fakeGenerator{})

	if _, err := s.Ingest(context.Background(), "https://example.com", false, false); err != nil {
		t.Fatal(err)
	}

	settings := s.Settings()
	settings.Temperature = 0.9
	if err := s.Configure(settings); err != nil {
		t.Fatal(err)
	}

	if s.State() != models.SessionReady {
		t.Errorf("state = %s, want ready", s.State())
	}
	if s.Settings().Temperature != 0.9 {
		t.Error("temperature change was not applied")
	}
}

func TestConfigureRejectsInvalidSettings(t *testing.T) {
	s := newTestSession(t, &fakeFetcher{text: "x"}, &fakeEmbedder{}, &fakeGenerator{})

	settings := s.Settings()
	settings.Temperature = 1.5
	if err := s.Configure(settings); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestReset(t *testing.T) {
	gen := &fakeGenerator{answer: "a"}
	s := newTestSession(t, &fakeFetcher{text: strings.Repeat("a", 2000)}, &fakeEmbedder{}, gen)

	if _, err := s.Ingest(context.Background(), "https://example.com", false, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}

	before := s.Settings()
	s.Reset()

	if s.State() != models.SessionEmpty {
		t.Errorf("state = %s, want empty", s.State())
	}
	if len(s.History()) != 0 {
		t.Error("reset kept history")
	}
	if s.Stats().ChunkCount != 0 {
		t.Error("reset kept chunks")
	}
	if s.Settings() != before {
		t.Error("reset changed settings")
	}
}
