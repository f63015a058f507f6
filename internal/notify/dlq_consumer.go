package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// DeadLetterStore persists exhausted events for manual review.
type DeadLetterStore interface {
	InsertDeadLetter(ctx context.Context, rec *domain.DeadLetterRecord) error
}

// DLQConsumer stores every dead-lettered event verbatim, with its origin
// coordinates, for the admin surface to inspect and replay.
type DLQConsumer struct {
	store  DeadLetterStore
	logger *slog.Logger
}

func NewDLQConsumer(store DeadLetterStore, logger *slog.Logger) *DLQConsumer {
	return &DLQConsumer{store: store, logger: logger}
}

// Start begins consuming from the dead-letter subject's durable consumer.
func (dc *DLQConsumer) Start(ctx context.Context, consumer jetstream.Consumer) (jetstream.ConsumeContext, error) {
	return consumer.Consume(func(msg jetstream.Msg) {
		dc.handle(ctx, msg)
	})
}

func (dc *DLQConsumer) handle(ctx context.Context, msg jetstream.Msg) {
	var event domain.DeliveryEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		dc.logger.Error("unparseable dead-letter event, terminating message", "error", err)
		_ = msg.Term()
		return
	}

	var sequence uint64
	if meta, err := msg.Metadata(); err == nil {
		sequence = meta.Sequence.Stream
	}

	reason := "unknown"
	if r, ok := event.Metadata[domain.MetaDLQReason]; ok {
		reason = r
	}

	rec := &domain.DeadLetterRecord{
		ID:             uuid.NewString(),
		EventID:        event.EventID,
		OriginSubject:  msg.Subject(),
		StreamSequence: sequence,
		Payload:        string(msg.Data()),
		RetryCount:     event.RetryCount,
		FailureReason:  reason,
		Processed:      false,
		Audit:          domain.NewAuditInfo("dlq-consumer"),
	}

	if err := dc.store.InsertDeadLetter(ctx, rec); err != nil {
		dc.logger.Error("failed to store dead letter, will redeliver",
			"event_id", event.EventID,
			"error", err,
		)
		_ = msg.Nak()
		return
	}

	dc.logger.Warn("dead letter stored",
		"event_id", event.EventID,
		"retry_count", event.RetryCount,
		"reason", reason,
	)
	_ = msg.Ack()
}
