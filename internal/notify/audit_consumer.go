package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/nats-io/nats.go/jetstream"
)

// AuditStore persists delivery audit records.
type AuditStore interface {
	InsertDeliveryAudit(ctx context.Context, a *domain.DeliveryAudit) error
}

// AuditConsumer is the audit sink: it reads audit events published through
// the outbox relay and persists them.
type AuditConsumer struct {
	store  AuditStore
	logger *slog.Logger
}

func NewAuditConsumer(store AuditStore, logger *slog.Logger) *AuditConsumer {
	return &AuditConsumer{store: store, logger: logger}
}

// Start begins consuming from the audit subject's durable consumer.
func (ac *AuditConsumer) Start(ctx context.Context, consumer jetstream.Consumer) (jetstream.ConsumeContext, error) {
	return consumer.Consume(func(msg jetstream.Msg) {
		var audit domain.DeliveryAudit
		if err := json.Unmarshal(msg.Data(), &audit); err != nil {
			ac.logger.Error("unparseable audit event, terminating message", "error", err)
			_ = msg.Term()
			return
		}

		if err := ac.store.InsertDeliveryAudit(ctx, &audit); err != nil {
			ac.logger.Error("failed to store audit record, will redeliver",
				"audit_id", audit.AuditID,
				"error", err,
			)
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	})
}
