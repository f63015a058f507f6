package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	NatsURL     string

	Broadcast BroadcastConfig
	Retry     RetryConfig
	Outbox    OutboxConfig
	Provider  ProviderConfig

	IdempotencyTTL time.Duration
}

// ProviderConfig points at the downstream delivery provider.
type ProviderConfig struct {
	Endpoint  string
	SecretKey string
}

// BroadcastConfig tunes the bulk dispatch path.
type BroadcastConfig struct {
	ChunkSize     int
	BatchSize     int
	MaxConcurrent int
	NumWorkers    int
}

// RetryConfig tunes the notification retry policy.
type RetryConfig struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	RetryPermanent bool
}

// OutboxConfig tunes the outbox relay poller.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	natsURL := getEnv("NATS_URL", "nats://localhost:4222")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	maxConcurrent := getEnvInt("MAX_CONCURRENT_PROVIDER_CALLS", 20)

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: dbURL,
		RedisURL:    redisURL,
		NatsURL:     natsURL,
		Broadcast: BroadcastConfig{
			ChunkSize:     getEnvInt("BROADCAST_CHUNK_SIZE", 500),
			BatchSize:     getEnvInt("BROADCAST_BATCH_SIZE", maxConcurrent),
			MaxConcurrent: maxConcurrent,
			NumWorkers:    getEnvInt("NUM_WORKERS", 50),
		},
		Retry: RetryConfig{
			MaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BaseBackoff:    getEnvDuration("RETRY_BASE_BACKOFF", time.Second),
			MaxBackoff:     getEnvDuration("RETRY_MAX_BACKOFF", 60*time.Second),
			Multiplier:     getEnvFloat("RETRY_MULTIPLIER", 2.0),
			RetryPermanent: getEnvBool("RETRY_PERMANENT_FAILURES", false),
		},
		Outbox: OutboxConfig{
			PollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
		},
		Provider: ProviderConfig{
			Endpoint:  getEnv("PROVIDER_ENDPOINT", "http://localhost:9090/send"),
			SecretKey: getEnv("PROVIDER_SECRET_KEY", ""),
		},
		IdempotencyTTL: getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	}

	if cfg.Broadcast.ChunkSize <= 0 {
		return nil, fmt.Errorf("BROADCAST_CHUNK_SIZE must be positive")
	}
	if cfg.Broadcast.BatchSize <= 0 {
		return nil, fmt.Errorf("BROADCAST_BATCH_SIZE must be positive")
	}
	if cfg.Retry.Multiplier < 1 {
		return nil, fmt.Errorf("RETRY_MULTIPLIER must be >= 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
