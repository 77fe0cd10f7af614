package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the applyflow binaries.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Core      CoreConfig
	AI        AIConfig
	Worker    WorkerConfig
	Retry     RetryConfig
	Breaker   BreakerConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// CoreConfig configures the client for the downstream Core submission service.
type CoreConfig struct {
	BaseURL      string
	SharedSecret string
	Timeout      time.Duration
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	OpenAI           OpenAIConfig
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// WorkerConfig tunes the queue-processing loop.
type WorkerConfig struct {
	PollInterval      time.Duration
	BatchSize         int
	MaxAttempts       int
	Concurrency       int
	RateLimitCooldown time.Duration
	StaleClaimAfter   time.Duration
}

// RetryConfig tunes the per-submission retry policy: retries within one
// processing attempt, distinct from the item-level attempt budget.
type RetryConfig struct {
	MaxRetries         int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	ExponentialBackoff bool
	RetryableStatuses  []int
}

type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

// RateLimitConfig carries the job board's externally imposed submission caps.
type RateLimitConfig struct {
	HourlyLimit int
	DailyLimit  int
}

var validProviders = map[string]bool{
	"openai": true,
	"mock":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("APPLYFLOW_PORT", 8080),
			Env:               envString("APPLYFLOW_ENV", "development"),
			RequestsPerMinute: envInt("API_REQUESTS_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Core: CoreConfig{
			BaseURL:      os.Getenv("CORE_BASE_URL"),
			SharedSecret: os.Getenv("CORE_SHARED_SECRET"),
			Timeout:      envDuration("CORE_TIMEOUT", 30*time.Second),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4"),
			},
		},
		Worker: WorkerConfig{
			PollInterval:      envDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			BatchSize:         envInt("WORKER_BATCH_SIZE", 20),
			MaxAttempts:       envInt("WORKER_MAX_ATTEMPTS", 5),
			Concurrency:       envInt("WORKER_CONCURRENCY", 1),
			RateLimitCooldown: envDuration("WORKER_RATE_LIMIT_COOLDOWN", 60*time.Minute),
			StaleClaimAfter:   envDuration("WORKER_STALE_CLAIM_AFTER", 10*time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries:         envInt("RETRY_MAX_RETRIES", 2),
			InitialDelay:       envDuration("RETRY_INITIAL_DELAY", 1*time.Second),
			MaxDelay:           envDuration("RETRY_MAX_DELAY", 30*time.Second),
			ExponentialBackoff: envBool("RETRY_EXPONENTIAL_BACKOFF", true),
			RetryableStatuses:  envIntList("RETRY_RETRYABLE_STATUSES", []int{408, 429, 500, 502, 503, 504}),
		},
		Breaker: BreakerConfig{
			FailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 5),
			SuccessThreshold: envInt("BREAKER_SUCCESS_THRESHOLD", 2),
			ResetTimeout:     envDuration("BREAKER_RESET_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			HourlyLimit: envInt("SUBMISSIONS_HOURLY_LIMIT", 8),
			DailyLimit:  envInt("SUBMISSIONS_DAILY_LIMIT", 200),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Core.BaseURL == "" {
		return fmt.Errorf("CORE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Core.BaseURL, "http://") && !strings.HasPrefix(c.Core.BaseURL, "https://") {
		return fmt.Errorf("CORE_BASE_URL must start with http:// or https://, got %q", c.Core.BaseURL)
	}
	if c.Core.SharedSecret == "" {
		return fmt.Errorf("CORE_SHARED_SECRET is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}

	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("WORKER_BATCH_SIZE must be positive, got %d", c.Worker.BatchSize)
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("WORKER_MAX_ATTEMPTS must be positive, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}

	if c.RateLimit.HourlyLimit <= 0 {
		return fmt.Errorf("SUBMISSIONS_HOURLY_LIMIT must be positive, got %d", c.RateLimit.HourlyLimit)
	}
	if c.RateLimit.DailyLimit <= 0 {
		return fmt.Errorf("SUBMISSIONS_DAILY_LIMIT must be positive, got %d", c.RateLimit.DailyLimit)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envIntList(key string, defaultVal []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultVal
		}
		out = append(out, i)
	}
	return out
}
