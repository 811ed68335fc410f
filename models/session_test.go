package models

import "testing"

func validConfig() SessionConfig {
	return SessionConfig{
		Provider:     "openai",
		Temperature:  0.3,
		ChunkSize:    1000,
		ChunkOverlap: 200,
		WebsiteName:  "BotPenguin",
		TopK:         3,
	}
}

func TestSessionConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*SessionConfig)
	}{
		{"missing provider", func(c *SessionConfig) { c.Provider = "" }},
		{"temperature too high", func(c *SessionConfig) { c.Temperature = 1.1 }},
		{"temperature negative", func(c *SessionConfig) { c.Temperature = -0.1 }},
		{"chunk size too small", func(c *SessionConfig) { c.ChunkSize = 499 }},
		{"chunk size too large", func(c *SessionConfig) { c.ChunkSize = 2001 }},
		{"overlap too small", func(c *SessionConfig) { c.ChunkOverlap = 49 }},
		{"overlap too large", func(c *SessionConfig) { c.ChunkOverlap = 501 }},
		{"overlap equals size", func(c *SessionConfig) { c.ChunkSize = 500; c.ChunkOverlap = 500 }},
		{"zero top_k", func(c *SessionConfig) { c.TopK = 0 }},
		{"unknown prompt style", func(c *SessionConfig) { c.PromptStyle = "verbose" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSessionConfigBoundaryValues(t *testing.T) {
	cfg := validConfig()
	cfg.ChunkSize = 500
	cfg.ChunkOverlap = 50
	if err := cfg.Validate(); err != nil {
		t.Errorf("lower bounds rejected: %v", err)
	}

	cfg = validConfig()
	cfg.ChunkSize = 2000
	cfg.ChunkOverlap = 500
	cfg.Temperature = 1.0
	if err := cfg.Validate(); err != nil {
		t.Errorf("upper bounds rejected: %v", err)
	}
}

func TestSessionConfigPatchApply(t *testing.T) {
	base := validConfig()

	if got := (*SessionConfigPatch)(nil).Apply(base); got != base {
		t.Errorf("nil patch changed the base: %+v", got)
	}

	temp := 0.0
	size := 1500
	patched := (&SessionConfigPatch{Temperature: &temp, ChunkSize: &size}).Apply(base)
	if patched.Temperature != 0.0 {
		t.Errorf("temperature = %v, want explicit 0.0", patched.Temperature)
	}
	if patched.ChunkSize != 1500 {
		t.Errorf("chunk size = %d, want 1500", patched.ChunkSize)
	}
	if patched.Provider != base.Provider || patched.ChunkOverlap != base.ChunkOverlap {
		t.Error("unset patch fields did not keep base values")
	}
}

func TestChunkingChanged(t *testing.T) {
	base := validConfig()

	same := base
	same.Temperature = 0.9
	if same.ChunkingChanged(base) {
		t.Error("non-chunking change reported as chunking change")
	}

	resized := base
	resized.ChunkSize = 1500
	if !resized.ChunkingChanged(base) {
		t.Error("chunk size change not detected")
	}

	reoverlapped := base
	reoverlapped.ChunkOverlap = 100
	if !reoverlapped.ChunkingChanged(base) {
		t.Error("overlap change not detected")
	}
}

func TestEmbedderName(t *testing.T) {
	cfg := validConfig()
	if cfg.EmbedderName() != "openai" {
		t.Errorf("EmbedderName = %s, want provider fallback", cfg.EmbedderName())
	}

	cfg.EmbeddingsProvider = "gemini"
	if cfg.EmbedderName() != "gemini" {
		t.Errorf("EmbedderName = %s, want explicit override", cfg.EmbedderName())
	}
}
