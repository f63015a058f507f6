package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/Ashish12meena/aigreentick-microservices/internal/broker"
	"github.com/Ashish12meena/aigreentick-microservices/internal/config"
	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/Ashish12meena/aigreentick-microservices/internal/provider"
)

// Scheduler is the single authority for the retry-vs-dead-letter decision.
// Both the main and retry consumers delegate every failure here.
type Scheduler struct {
	pub    Publisher
	cfg    config.RetryConfig
	logger *slog.Logger
}

func NewScheduler(pub Publisher, cfg config.RetryConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{pub: pub, cfg: cfg, logger: logger}
}

// Delay computes the exponential backoff for a retry attempt: capped at the
// max backoff, jittered by ±25% to avoid synchronized retry storms, and
// floored at the base backoff.
func (s *Scheduler) Delay(retryCount int) time.Duration {
	delay := float64(s.cfg.BaseBackoff) * math.Pow(s.cfg.Multiplier, float64(retryCount))
	delay = math.Min(delay, float64(s.cfg.MaxBackoff))

	jitter := delay * 0.25 * (rand.Float64() - 0.5) * 2
	delay += jitter

	if delay < float64(s.cfg.BaseBackoff) {
		delay = float64(s.cfg.BaseBackoff)
	}
	return time.Duration(delay)
}

// HandleFailure routes a failed event: re-publish to the retry subject with
// an incremented retry count, or — once the retry budget is exhausted, or
// immediately for permanent failures when configured — to the dead-letter
// subject plus a failure audit event.
func (s *Scheduler) HandleFailure(ctx context.Context, event *domain.DeliveryEvent, reason *provider.FailureReason) error {
	exhausted := event.RetryCount >= s.cfg.MaxAttempts
	permanent := reason.Permanent && !s.cfg.RetryPermanent

	if exhausted || permanent {
		return s.deadLetter(ctx, event, reason)
	}

	event.RetryCount++

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling retry event: %w", err)
	}

	msgID := fmt.Sprintf("%s-r%d", event.EventID, event.RetryCount)
	if _, err := s.pub.Publish(ctx, broker.SubjectRetry, event.RoutingKey(), msgID, data); err != nil {
		return fmt.Errorf("publishing retry for %s: %w", event.EventID, err)
	}

	s.logger.Info("delivery event scheduled for retry",
		"event_id", event.EventID,
		"retry_count", event.RetryCount,
		"reason", reason.Code,
	)
	return nil
}

func (s *Scheduler) deadLetter(ctx context.Context, event *domain.DeliveryEvent, reason *provider.FailureReason) error {
	event.SetMeta(domain.MetaDLQReason, reason.Message)
	event.SetMeta(domain.MetaDLQTimestamp, time.Now().UTC().Format(time.RFC3339))

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling dead-letter event: %w", err)
	}

	if _, err := s.pub.Publish(ctx, broker.SubjectDLQ, event.RoutingKey(), event.EventID+"-dlq", data); err != nil {
		return fmt.Errorf("publishing dead letter for %s: %w", event.EventID, err)
	}

	s.logger.Error("delivery event dead-lettered",
		"event_id", event.EventID,
		"retry_count", event.RetryCount,
		"reason", reason.Message,
	)

	// Failure audit event; best effort, the dead letter itself is durable.
	event.SetMeta(domain.MetaFailureReason, reason.Message)
	event.SetMeta(domain.MetaFailureTime, time.Now().UTC().Format(time.RFC3339))
	failedData, err := json.Marshal(event)
	if err == nil {
		if _, err := s.pub.Publish(ctx, broker.SubjectFailed, event.RoutingKey(), event.EventID+"-failed", failedData); err != nil {
			s.logger.Warn("failed to publish failure event", "event_id", event.EventID, "error", err)
		}
	}
	return nil
}
