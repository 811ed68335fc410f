package models

import "time"

// Session states.
const (
	SessionEmpty = "empty"
	SessionReady = "ready"
)

// SessionConfig carries the per-session settings surfaced by the UI.
// Provider selects the generation backend; EmbeddingsProvider may name a
// different vendor (mixing is allowed, only embedding dimensions must be
// consistent within one index). Empty EmbeddingsProvider means "same as
// Provider". API keys, when set, override the process-level keys.
type SessionConfig struct {
	Provider           string  `json:"provider"`
	EmbeddingsProvider string  `json:"embeddings_provider,omitempty"`
	APIKey             string  `json:"api_key,omitempty"`
	Temperature        float64 `json:"temperature"`
	ChunkSize          int     `json:"chunk_size"`
	ChunkOverlap       int     `json:"chunk_overlap"`
	WebsiteName        string  `json:"website_name"`
	PromptStyle        string  `json:"prompt_style,omitempty"`
	TopK               int     `json:"top_k"`
	MinScore           float64 `json:"min_score"`
}

// Prompt styles. Chat uses the provider-tuned system prompt, QA the
// plain question-answering template.
const (
	PromptStyleChat = "chat"
	PromptStyleQA   = "qa"
)

// SessionConfigPatch is the create-request body. Pointer fields tell an
// explicit zero apart from an omitted value, so a requested
// temperature of 0.0 is honored rather than replaced by the default.
type SessionConfigPatch struct {
	Provider           *string  `json:"provider"`
	EmbeddingsProvider *string  `json:"embeddings_provider"`
	APIKey             *string  `json:"api_key"`
	Temperature        *float64 `json:"temperature"`
	ChunkSize          *int     `json:"chunk_size"`
	ChunkOverlap       *int     `json:"chunk_overlap"`
	WebsiteName        *string  `json:"website_name"`
	PromptStyle        *string  `json:"prompt_style"`
	TopK               *int     `json:"top_k"`
	MinScore           *float64 `json:"min_score"`
}

// Apply overlays the set fields onto base and returns the result.
func (p *SessionConfigPatch) Apply(base SessionConfig) SessionConfig {
	if p == nil {
		return base
	}
	if p.Provider != nil {
		base.Provider = *p.Provider
	}
	if p.EmbeddingsProvider != nil {
		base.EmbeddingsProvider = *p.EmbeddingsProvider
	}
	if p.APIKey != nil {
		base.APIKey = *p.APIKey
	}
	if p.Temperature != nil {
		base.Temperature = *p.Temperature
	}
	if p.ChunkSize != nil {
		base.ChunkSize = *p.ChunkSize
	}
	if p.ChunkOverlap != nil {
		base.ChunkOverlap = *p.ChunkOverlap
	}
	if p.WebsiteName != nil {
		base.WebsiteName = *p.WebsiteName
	}
	if p.PromptStyle != nil {
		base.PromptStyle = *p.PromptStyle
	}
	if p.TopK != nil {
		base.TopK = *p.TopK
	}
	if p.MinScore != nil {
		base.MinScore = *p.MinScore
	}
	return base
}

// Validate enforces the configuration surface ranges.
func (c SessionConfig) Validate() error {
	if c.Provider == "" {
		return &ConfigError{Field: "provider", Reason: "provider name is required"}
	}
	if c.Temperature < 0.0 || c.Temperature > 1.0 {
		return &ConfigError{Field: "temperature", Reason: "must be within [0.0, 1.0]"}
	}
	if c.ChunkSize < 500 || c.ChunkSize > 2000 {
		return &ConfigError{Field: "chunk_size", Reason: "must be within [500, 2000]"}
	}
	if c.ChunkOverlap < 50 || c.ChunkOverlap > 500 {
		return &ConfigError{Field: "chunk_overlap", Reason: "must be within [50, 500]"}
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return &ConfigError{Field: "chunk_overlap", Reason: "must be smaller than chunk_size"}
	}
	if c.TopK <= 0 {
		return &ConfigError{Field: "top_k", Reason: "must be a positive integer"}
	}
	switch c.PromptStyle {
	case "", PromptStyleChat, PromptStyleQA:
	default:
		return &ConfigError{Field: "prompt_style", Reason: `must be "chat" or "qa"`}
	}
	return nil
}

// EmbedderName resolves the embedding backend: the explicit
// embeddings provider if set, otherwise the generation provider.
func (c SessionConfig) EmbedderName() string {
	if c.EmbeddingsProvider != "" {
		return c.EmbeddingsProvider
	}
	return c.Provider
}

// ChunkingChanged reports whether the chunk parameters differ, which
// invalidates an index built under the old ones.
func (c SessionConfig) ChunkingChanged(prev SessionConfig) bool {
	return c.ChunkSize != prev.ChunkSize || c.ChunkOverlap != prev.ChunkOverlap
}

// ConversationTurn is one question/answer exchange. Turns are append-only
// and never mutated after creation.
type ConversationTurn struct {
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	CitedChunkIDs []string  `json:"cited_chunk_ids"`
	Timestamp     time.Time `json:"timestamp"`
}

// IngestSummary reports the outcome of a successful ingest call.
type IngestSummary struct {
	SourceURL string `json:"source_url"`
	NumChunks int    `json:"num_chunks"`
	Pages     int    `json:"pages"`
	Merged    bool   `json:"merged"`
}

// SessionStats is a point-in-time snapshot of session state.
type SessionStats struct {
	SessionID    string    `json:"session_id"`
	State        string    `json:"state"`
	ChunkCount   int       `json:"chunk_count"`
	TurnCount    int       `json:"turn_count"`
	IngestedURLs []string  `json:"ingested_urls"`
	AvgChunkSize float64   `json:"avg_chunk_size"`
	LastActivity time.Time `json:"last_activity"`
}

// CitedSource is a user-facing citation: the source URL plus a short
// snippet of the chunk that grounded the answer.
type CitedSource struct {
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// AskResult is the outcome of one answered question.
type AskResult struct {
	Answer        string        `json:"answer"`
	CitedSources  []CitedSource `json:"cited_sources"`
	CitedChunkIDs []string      `json:"cited_chunk_ids"`
}
