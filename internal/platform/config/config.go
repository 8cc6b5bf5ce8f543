package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const appEnvLocal = "local"

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"0"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"0"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"0s"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"0s"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"0s"`

	// API surface
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	APIStrictStatus    bool     `env:"API_STRICT_STATUS" envDefault:"false"`

	// Cache and queue
	RedisURL     string        `env:"REDIS_URL"`
	CacheViewTTL time.Duration `env:"CACHE_VIEW_TTL" envDefault:"10m"`
	QueueKey     string        `env:"QUEUE_KEY" envDefault:"insights:queue:regenerate"`

	// Generation providers
	LLMAPIKey              string        `env:"LLM_API_KEY"`
	LLMModel               string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMBaseURL             string        `env:"LLM_BASE_URL"`
	AnthropicAPIKey        string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel         string        `env:"ANTHROPIC_MODEL" envDefault:"claude-haiku-4-5"`
	GenerationWebhookURL   string        `env:"GENERATION_WEBHOOK_URL"`
	GenerationWebhookToken string        `env:"GENERATION_WEBHOOK_TOKEN"`
	GenerationWebhookTTL   time.Duration `env:"GENERATION_WEBHOOK_TIMEOUT" envDefault:"120s"`
	MockGenerationEnabled  bool          `env:"MOCK_GENERATION_ENABLED" envDefault:"false"`
	RateLimitRPS           int           `env:"RATE_LIMIT_RPS" envDefault:"1"`
	LLMCircuitThreshold    int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	LLMCircuitTimeout      time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"1m"`
	GenerationMaxRetries   int           `env:"GENERATION_MAX_RETRIES" envDefault:"2"`
	GenerationRetryInitial time.Duration `env:"GENERATION_RETRY_INITIAL" envDefault:"500ms"`
	GenerationTimeout      time.Duration `env:"GENERATION_TIMEOUT" envDefault:"5m"`

	// Worker
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`
	WorkerPopTimeout   time.Duration `env:"WORKER_POP_TIMEOUT" envDefault:"5s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	normalize(cfg)

	return cfg, nil
}

// IsLocal reports whether the service runs in a developer environment.
func (c *Config) IsLocal() bool {
	return c.AppEnv == appEnvLocal
}

// HasGenerationProvider reports whether at least one real generation backend is configured.
func (c *Config) HasGenerationProvider() bool {
	return c.LLMAPIKey != "" || c.AnthropicAPIKey != "" || c.GenerationWebhookURL != ""
}

func normalize(cfg *Config) {
	origins := cfg.CORSAllowedOrigins[:0]

	for _, o := range cfg.CORSAllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}

	cfg.CORSAllowedOrigins = origins

	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 1
	}

	if cfg.GenerationMaxRetries < 0 {
		cfg.GenerationMaxRetries = 0
	}
}
