package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency record statuses kept in Redis.
const (
	IdemInProgress = "in_progress"
	IdemProcessed  = "processed"
	IdemFailed     = "failed"
)

// IdempotencyStore deduplicates redelivered events across consumer instances.
// Records expire after the configured TTL; a duplicate arriving after expiry
// is treated as a new event — an accepted weakening of exactly-once.
type IdempotencyStore struct {
	redisClient *redis.Client
	logger      *slog.Logger
	ttl         time.Duration
	script      *redis.Script
}

// Lua script for the atomic first-processing check.
// 1. If no record exists, claim it as in_progress and return 1 (first)
// 2. If the record is failed, re-claim it and return 1 (retryable)
// 3. Otherwise (in_progress or processed) return 0 (duplicate)
var firstProcessingScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]
local ttl = tonumber(ARGV[2])

local status = redis.call('HGET', key, 'status')

if status == false or status == 'failed' then
    redis.call('HSET', key, 'status', 'in_progress', 'token', token)
    redis.call('EXPIRE', key, ttl)
    return 1
end

return 0
`)

func NewIdempotencyStore(redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *IdempotencyStore {
	return &IdempotencyStore{
		redisClient: redisClient,
		logger:      logger,
		ttl:         ttl,
		script:      firstProcessingScript,
	}
}

func idemKey(eventID string) string {
	return fmt.Sprintf("idem:%s", eventID)
}

// IsFirstProcessing atomically claims the event id for this attempt. It
// returns false when a record already exists in in_progress or processed
// state; a previously failed record may be re-claimed.
func (s *IdempotencyStore) IsFirstProcessing(ctx context.Context, eventID, attemptToken string) (bool, error) {
	result, err := s.script.Run(ctx, s.redisClient, []string{idemKey(eventID)},
		attemptToken, int(s.ttl.Seconds()),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("idempotency check for %s: %w", eventID, err)
	}

	if result == 0 {
		s.logger.Debug("duplicate event detected", "event_id", eventID)
		return false, nil
	}
	return true, nil
}

// MarkProcessed transitions the record terminally to processed.
func (s *IdempotencyStore) MarkProcessed(ctx context.Context, eventID string) error {
	return s.setStatus(ctx, eventID, IdemProcessed)
}

// MarkFailed transitions the record to failed so a retry may re-claim it.
func (s *IdempotencyStore) MarkFailed(ctx context.Context, eventID, reason string) error {
	key := idemKey(eventID)
	pipe := s.redisClient.TxPipeline()
	pipe.HSet(ctx, key, "status", IdemFailed, "reason", reason)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking %s failed: %w", eventID, err)
	}
	return nil
}

// Status returns the current record status, or "" when none exists.
func (s *IdempotencyStore) Status(ctx context.Context, eventID string) (string, error) {
	status, err := s.redisClient.HGet(ctx, idemKey(eventID), "status").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading idempotency status for %s: %w", eventID, err)
	}
	return status, nil
}

func (s *IdempotencyStore) setStatus(ctx context.Context, eventID, status string) error {
	key := idemKey(eventID)
	pipe := s.redisClient.TxPipeline()
	pipe.HSet(ctx, key, "status", status)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking %s %s: %w", eventID, status, err)
	}
	return nil
}
