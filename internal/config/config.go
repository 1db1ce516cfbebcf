package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Primary completion provider (OpenAI-compatible).
	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	OpenRouterModel   string `envconfig:"OPENROUTER_MODEL" default:"deepseek/deepseek-chat-v3-0324:free"`

	// Secondary provider, used when the primary exhausts its retries.
	GroqAPIKey  string `envconfig:"GROQ_API_KEY"`
	GroqBaseURL string `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	GroqModel   string `envconfig:"GROQ_MODEL" default:"llama-3.1-8b-instant"`

	CompletionTimeout time.Duration `envconfig:"COMPLETION_TIMEOUT" default:"30s"`

	// ReindexInterval schedules periodic full reindexes so profile edits
	// are picked up without a restart. Zero disables the schedule.
	ReindexInterval time.Duration `envconfig:"REINDEX_INTERVAL" default:"0s"`

	EmbeddingAPIKey  string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBaseURL string `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingModel   string `envconfig:"EMBEDDING_MODEL" default:"all-MiniLM-L6-v2"`

	// Profile document location: a local path, or an S3 object when the S3
	// settings are present.
	ProfilePath string `envconfig:"PROFILE_PATH" default:"data/profile.json"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"askfolio-assets"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3ObjectKey string `envconfig:"S3_OBJECT_KEY" default:"profile.json"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"1"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"5"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("ASKFOLIO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// HasS3 reports whether the profile should be fetched from object storage.
func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenRouter() bool {
	return c.OpenRouterAPIKey != ""
}

func (c *Config) HasGroq() bool {
	return c.GroqAPIKey != ""
}

// AllowAllOrigins reports whether CORS should echo any origin.
func (c *Config) AllowAllOrigins() bool {
	for _, origin := range c.AllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			return true
		}
	}
	return false
}
