package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/delivery")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Broadcast.ChunkSize != 500 {
		t.Errorf("expected default chunk size 500, got %d", cfg.Broadcast.ChunkSize)
	}
	if cfg.Broadcast.MaxConcurrent != 20 {
		t.Errorf("expected default max concurrent 20, got %d", cfg.Broadcast.MaxConcurrent)
	}
	if cfg.Broadcast.BatchSize != cfg.Broadcast.MaxConcurrent {
		t.Error("batch size should default to max concurrent")
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseBackoff != time.Second {
		t.Errorf("expected default base backoff 1s, got %v", cfg.Retry.BaseBackoff)
	}
	if cfg.Retry.RetryPermanent {
		t.Error("permanent failures must not retry by default")
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Errorf("expected default idempotency TTL 24h, got %v", cfg.IdempotencyTTL)
	}
}

func TestLoad_RequiredURLs(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost:5432/delivery")
	t.Setenv("REDIS_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when REDIS_URL is missing")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("BROADCAST_CHUNK_SIZE", "50")
	t.Setenv("MAX_CONCURRENT_PROVIDER_CALLS", "8")
	t.Setenv("RETRY_BASE_BACKOFF", "500ms")
	t.Setenv("RETRY_PERMANENT_FAILURES", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Broadcast.ChunkSize != 50 {
		t.Errorf("expected chunk size 50, got %d", cfg.Broadcast.ChunkSize)
	}
	if cfg.Broadcast.BatchSize != 8 {
		t.Errorf("batch size should follow max concurrent, got %d", cfg.Broadcast.BatchSize)
	}
	if cfg.Retry.BaseBackoff != 500*time.Millisecond {
		t.Errorf("expected base backoff 500ms, got %v", cfg.Retry.BaseBackoff)
	}
	if !cfg.Retry.RetryPermanent {
		t.Error("expected permanent retries enabled")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("BROADCAST_CHUNK_SIZE", "-1")

	if _, err := Load(); err == nil {
		t.Error("expected error for non-positive chunk size")
	}

	t.Setenv("BROADCAST_CHUNK_SIZE", "500")
	t.Setenv("RETRY_MULTIPLIER", "0.5")

	if _, err := Load(); err == nil {
		t.Error("expected error for multiplier below 1")
	}
}
