package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CodeCircuitOpen marks sends short-circuited by an open breaker. The
// failure is transient — the provider may recover after the cooldown.
const CodeCircuitOpen = "circuit_open"

// Breaker wraps a Client with a per-channel circuit breaker backed by Redis,
// so the open/closed state is shared across consumer instances.
// State transitions: closed → open → half-open → closed.
type Breaker struct {
	inner            Client
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

func NewBreaker(inner Client, redisClient *redis.Client, logger *slog.Logger) *Breaker {
	return &Breaker{
		inner:            inner,
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: 5,
		cooldownPeriod:   30 * time.Second,
	}
}

func cbKey(channel string) string {
	return fmt.Sprintf("cb:%s", channel)
}

// Send short-circuits when the channel's circuit is open, otherwise delegates
// to the wrapped client and records the outcome.
func (b *Breaker) Send(ctx context.Context, req Request) Result {
	channel := req.Channel
	if channel == "" {
		channel = "default"
	}

	if state, ok := b.allowRequest(ctx, channel); !ok {
		return Failure(CodeCircuitOpen, fmt.Sprintf("circuit %s for channel %s", state, channel), false)
	}

	res := b.inner.Send(ctx, req)
	if res.Success {
		b.recordSuccess(ctx, channel)
	} else {
		b.recordFailure(ctx, channel)
	}
	return res
}

func (b *Breaker) allowRequest(ctx context.Context, channel string) (string, bool) {
	key := cbKey(channel)

	data, err := b.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		// No state yet, or Redis unreachable — fail open
		return StateClosed, true
	}

	switch data["state"] {
	case StateOpen:
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if time.Now().Unix()-lastFailedAt >= int64(b.cooldownPeriod.Seconds()) {
			// Cooldown elapsed: allow one test request
			b.redisClient.HSet(ctx, key, "state", StateHalfOpen)
			b.logger.Info("circuit breaker half-open", "channel", channel)
			return StateHalfOpen, true
		}
		return StateOpen, false

	case StateHalfOpen:
		return StateHalfOpen, true

	default:
		return StateClosed, true
	}
}

func (b *Breaker) recordSuccess(ctx context.Context, channel string) {
	key := cbKey(channel)

	state, _ := b.redisClient.HGet(ctx, key, "state").Result()

	b.redisClient.HSet(ctx, key,
		"state", StateClosed,
		"failures", 0,
	)

	if state == StateHalfOpen {
		b.logger.Info("circuit breaker closed (recovered)", "channel", channel)
	}
}

func (b *Breaker) recordFailure(ctx context.Context, channel string) {
	key := cbKey(channel)

	failures, err := b.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		b.logger.Error("failed to record circuit breaker failure", "error", err)
		return
	}

	b.redisClient.HSet(ctx, key, "last_failed_at", time.Now().Unix())

	state, _ := b.redisClient.HGet(ctx, key, "state").Result()

	switch {
	case state == StateHalfOpen:
		// Half-open test failed: back to open
		b.redisClient.HSet(ctx, key, "state", StateOpen)
		b.logger.Warn("circuit breaker re-opened (half-open test failed)", "channel", channel)
	case failures >= int64(b.failureThreshold):
		b.redisClient.HSet(ctx, key, "state", StateOpen)
		b.logger.Warn("circuit breaker opened",
			"channel", channel,
			"failures", failures,
			"threshold", b.failureThreshold,
		)
	case state == "":
		b.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}
