package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ashish12meena/aigreentick-microservices/internal/broker"
	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/Ashish12meena/aigreentick-microservices/internal/provider"
	"github.com/Ashish12meena/aigreentick-microservices/internal/template"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Idempotency gates duplicate processing of redelivered events.
type Idempotency interface {
	IsFirstProcessing(ctx context.Context, eventID, attemptToken string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, reason string) error
}

// OutcomeStore persists a delivery outcome together with its audit outbox
// entry in one transaction.
type OutcomeStore interface {
	SaveOutcomeWithAudit(ctx context.Context, outcome *domain.NotificationOutcome, entry *domain.OutboxEntry) error
}

// Acker is the subset of a consumed log message the consumer needs. It is
// satisfied by jetstream.Msg.
type Acker interface {
	Ack() error
	Nak() error
}

// Consumer processes delivery events from the primary subject: idempotency
// gate, content resolution, provider call, and the success/failure follow-up.
type Consumer struct {
	idem      Idempotency
	resolver  *template.Resolver
	client    provider.Client
	scheduler *Scheduler
	pub       Publisher
	outcomes  OutcomeStore
	logger    *slog.Logger

	// instanceID identifies this consumer instance as the idempotency
	// attempt owner.
	instanceID string
}

func NewConsumer(
	idem Idempotency,
	resolver *template.Resolver,
	client provider.Client,
	scheduler *Scheduler,
	pub Publisher,
	outcomes OutcomeStore,
	logger *slog.Logger,
) *Consumer {
	return &Consumer{
		idem:       idem,
		resolver:   resolver,
		client:     client,
		scheduler:  scheduler,
		pub:        pub,
		outcomes:   outcomes,
		logger:     logger,
		instanceID: uuid.NewString(),
	}
}

// Start begins consuming from the given durable consumer. Messages are
// acknowledged only after processing resolves; a transient gate failure naks
// for redelivery.
func (c *Consumer) Start(ctx context.Context, consumer jetstream.Consumer) (jetstream.ConsumeContext, error) {
	return consumer.Consume(func(msg jetstream.Msg) {
		event, ok := c.parse(msg)
		if !ok {
			return
		}
		c.Handle(ctx, msg, event)
	})
}

func (c *Consumer) parse(msg jetstream.Msg) (*domain.DeliveryEvent, bool) {
	var event domain.DeliveryEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		c.logger.Error("unparseable delivery event, terminating message",
			"subject", msg.Subject(),
			"error", err,
		)
		// Redelivery cannot fix a malformed payload.
		_ = msg.Term()
		return nil, false
	}
	return &event, true
}

// Handle runs the full per-event state machine: received → (duplicate?
// dropped) → processing → succeeded | retry scheduled | dead-lettered.
func (c *Consumer) Handle(ctx context.Context, msg Acker, event *domain.DeliveryEvent) {
	first, err := c.idem.IsFirstProcessing(ctx, event.EventID, c.instanceID)
	if err != nil {
		c.logger.Error("idempotency check failed", "event_id", event.EventID, "error", err)
		_ = msg.Nak()
		return
	}
	if !first {
		c.logger.Warn("duplicate event dropped", "event_id", event.EventID)
		_ = msg.Ack()
		return
	}

	start := time.Now()
	res := c.process(ctx, event)
	elapsed := time.Since(start).Milliseconds()

	if !res.Success {
		if err := c.idem.MarkFailed(ctx, event.EventID, res.Reason.Message); err != nil {
			c.logger.Error("failed to mark idempotency record failed", "event_id", event.EventID, "error", err)
		}
		if err := c.scheduler.HandleFailure(ctx, event, res.Reason); err != nil {
			c.logger.Error("failure handling failed, message will redeliver", "event_id", event.EventID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
		return
	}

	if err := c.idem.MarkProcessed(ctx, event.EventID); err != nil {
		c.logger.Error("failed to mark idempotency record processed", "event_id", event.EventID, "error", err)
	}

	// Outcome persistence never blocks acknowledgement; the outbox poller
	// self-heals the audit trail.
	notificationID := c.persistOutcome(ctx, event, res, elapsed)
	c.publishSuccess(ctx, event, notificationID)

	_ = msg.Ack()
	c.logger.Info("delivery event processed",
		"event_id", event.EventID,
		"retry_count", event.RetryCount,
		"processing_time_ms", elapsed,
	)
}

// process resolves content and invokes the provider. Resolution failures are
// permanent — redelivery cannot fix an unknown template.
func (c *Consumer) process(ctx context.Context, event *domain.DeliveryEvent) provider.Result {
	body := event.Body
	if event.TemplateCode != "" {
		rendered, err := c.resolver.Resolve(event.TemplateCode, event.TemplateVariables)
		if err != nil {
			return provider.Failure("template_resolution", err.Error(), true)
		}
		body = rendered
	}

	if len(event.Recipients) == 0 {
		return provider.Failure("no_recipients", "delivery event has no recipients", true)
	}

	payload, err := json.Marshal(map[string]any{
		"recipients": event.Recipients,
		"subject":    event.Subject,
		"body":       body,
	})
	if err != nil {
		return provider.Failure("payload_marshal", err.Error(), true)
	}

	return c.client.Send(ctx, provider.Request{
		Recipient: event.Recipients[0],
		Channel:   "email",
		Payload:   payload,
	})
}

func (c *Consumer) persistOutcome(ctx context.Context, event *domain.DeliveryEvent, res provider.Result, elapsedMs int64) string {
	outcome := &domain.NotificationOutcome{
		ID:                uuid.NewString(),
		EventID:           event.EventID,
		CorrelationID:     event.CorrelationID,
		Recipient:         event.Recipients[0],
		Status:            domain.NotificationDelivered,
		ProviderMessageID: res.ProviderMessageID,
		ProcessingTimeMs:  elapsedMs,
		Audit:             domain.NewAuditInfo(event.SourceService),
	}

	audit := domain.DeliveryAudit{
		AuditID:          uuid.NewString(),
		NotificationID:   outcome.ID,
		EventID:          event.EventID,
		CorrelationID:    event.CorrelationID,
		Channel:          "email",
		Status:           outcome.Status,
		Recipient:        outcome.Recipient,
		RetryCount:       event.RetryCount,
		ProcessingTimeMs: elapsedMs,
		Timestamp:        time.Now().UTC(),
	}
	payload, err := json.Marshal(audit)
	if err != nil {
		c.logger.Error("failed to marshal audit event", "event_id", event.EventID, "error", err)
		return outcome.ID
	}

	entry := &domain.OutboxEntry{
		ID:            uuid.NewString(),
		EventID:       audit.AuditID,
		AggregateType: "NOTIFICATION_AUDIT",
		AggregateID:   outcome.ID,
		EventType:     "AUDIT_EVENT",
		Payload:       string(payload),
		Status:        domain.OutboxPending,
		Audit:         domain.NewAuditInfo(event.SourceService),
	}

	if err := c.outcomes.SaveOutcomeWithAudit(ctx, outcome, entry); err != nil {
		c.logger.Error("failed to persist delivery outcome", "event_id", event.EventID, "error", err)
	}
	return outcome.ID
}

func (c *Consumer) publishSuccess(ctx context.Context, event *domain.DeliveryEvent, notificationID string) {
	event.SetMeta(domain.MetaNotificationID, notificationID)
	event.SetMeta(domain.MetaSuccessTime, time.Now().UTC().Format(time.RFC3339))
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	msgID := fmt.Sprintf("%s-ok", event.EventID)
	if _, err := c.pub.Publish(ctx, broker.SubjectSuccess, event.RoutingKey(), msgID, data); err != nil {
		c.logger.Warn("failed to publish success event", "event_id", event.EventID, "error", err)
	}
}
