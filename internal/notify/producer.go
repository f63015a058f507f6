package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ashish12meena/aigreentick-microservices/internal/broker"
	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher is the durable-log surface the notification path publishes to.
type Publisher interface {
	Publish(ctx context.Context, subjectPrefix, key, msgID string, data []byte) (*jetstream.PubAck, error)
}

// Producer publishes delivery events onto the primary subject. It assigns an
// event id and timestamp when absent and routes by the event's partition key;
// it never mutates application state beyond the publish.
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

// Publish sends the event to the primary subject and returns the log's
// acknowledgement.
func (p *Producer) Publish(ctx context.Context, event *domain.DeliveryEvent) (*jetstream.PubAck, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling delivery event: %w", err)
	}

	ack, err := p.pub.Publish(ctx, broker.SubjectMain, event.RoutingKey(), event.EventID, data)
	if err != nil {
		return nil, fmt.Errorf("publishing delivery event %s: %w", event.EventID, err)
	}

	p.logger.Info("delivery event queued",
		"event_id", event.EventID,
		"recipients", len(event.Recipients),
		"sequence", ack.Sequence,
	)
	return ack, nil
}

// Replay re-publishes a previously dead-lettered event to the primary
// subject under a fresh publish id, so stream-level duplicate detection does
// not swallow the replay.
func (p *Producer) Replay(ctx context.Context, event *domain.DeliveryEvent) (*jetstream.PubAck, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling delivery event: %w", err)
	}

	msgID := fmt.Sprintf("%s-replay-%s", event.EventID, uuid.NewString()[:8])
	ack, err := p.pub.Publish(ctx, broker.SubjectMain, event.RoutingKey(), msgID, data)
	if err != nil {
		return nil, fmt.Errorf("replaying delivery event %s: %w", event.EventID, err)
	}
	return ack, nil
}
