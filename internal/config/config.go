package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Provider credentials and models
	DefaultProvider       string // "openai" or "gemini"
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIEmbeddingsModel string
	GeminiAPIKey          string
	GeminiModel           string
	GoogleEmbeddingsModel string
	ProviderTimeout       time.Duration
	ProviderMaxRetries    int
	ProviderRPM           int

	// Pipeline defaults
	DefaultTemperature float64
	DefaultChunkSize   int
	DefaultOverlap     int
	DefaultTopK        int
	DefaultMinScore    float64
	WebsiteName        string

	// Fetcher
	FetchTimeout  time.Duration
	MaxCrawlPages int
	RenderJS      bool
	RenderTimeout time.Duration

	// Sessions
	SessionTTL    time.Duration
	SweepInterval time.Duration

	// Redis (rate limiting + asynq)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Background worker
	WorkerEnabled     bool
	WorkerConcurrency int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTLPEndpoint     string
	TelemetryEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		DefaultProvider:       getEnv("DEFAULT_PROVIDER", "openai"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:          getEnv("GOOGLE_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		ProviderTimeout:       time.Duration(getEnvInt("PROVIDER_TIMEOUT", 30)) * time.Second,
		ProviderMaxRetries:    getEnvInt("PROVIDER_MAX_RETRIES", 3),
		ProviderRPM:           getEnvInt("PROVIDER_RPM", 60),

		DefaultTemperature: getEnvFloat64("DEFAULT_TEMPERATURE", 0.3),
		DefaultChunkSize:   getEnvInt("DEFAULT_CHUNK_SIZE", 1000),
		DefaultOverlap:     getEnvInt("DEFAULT_CHUNK_OVERLAP", 200),
		DefaultTopK:        getEnvInt("DEFAULT_TOP_K", 3),
		DefaultMinScore:    getEnvFloat64("DEFAULT_MIN_SCORE", 0),
		WebsiteName:        getEnv("WEBSITE_NAME", "BotPenguin"),

		FetchTimeout:  time.Duration(getEnvInt("FETCH_TIMEOUT", 30)) * time.Second,
		MaxCrawlPages: getEnvInt("MAX_CRAWL_PAGES", 10),
		RenderJS:      getEnvBool("RENDER_JS", false),
		RenderTimeout: time.Duration(getEnvInt("RENDER_TIMEOUT", 45)) * time.Second,

		SessionTTL:    time.Duration(getEnvInt("SESSION_TTL_MINUTES", 120)) * time.Minute,
		SweepInterval: time.Duration(getEnvInt("SESSION_SWEEP_MINUTES", 15)) * time.Minute,

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		WorkerEnabled:     getEnvBool("WORKER_ENABLED", false),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 5),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: getEnvBool("TELEMETRY_ENABLED", false),
	}

	if cfg.DefaultProvider != "openai" && cfg.DefaultProvider != "gemini" {
		return nil, fmt.Errorf("DEFAULT_PROVIDER must be 'openai' or 'gemini', got %q", cfg.DefaultProvider)
	}
	if cfg.DefaultOverlap >= cfg.DefaultChunkSize {
		return nil, fmt.Errorf("DEFAULT_CHUNK_OVERLAP (%d) must be smaller than DEFAULT_CHUNK_SIZE (%d)",
			cfg.DefaultOverlap, cfg.DefaultChunkSize)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
