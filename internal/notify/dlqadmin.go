package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
)

// DeadLetterAdminStore is the durable store surface for manual dead-letter
// operations.
type DeadLetterAdminStore interface {
	GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetterRecord, error)
	ListUnprocessedDeadLetters(ctx context.Context, offset, limit int) ([]domain.DeadLetterRecord, error)
	DeadLetterStats(ctx context.Context) (domain.DeadLetterStats, error)
	MarkDeadLetterProcessed(ctx context.Context, id, operator, notes string) error
}

// DLQAdmin exposes the manual inspect/retry/resolve operations over the
// dead-letter store. Every mutation carries operator attribution.
type DLQAdmin struct {
	store    DeadLetterAdminStore
	producer *Producer
	logger   *slog.Logger
}

func NewDLQAdmin(store DeadLetterAdminStore, producer *Producer, logger *slog.Logger) *DLQAdmin {
	return &DLQAdmin{store: store, producer: producer, logger: logger}
}

// ListUnprocessed returns one page of unprocessed dead letters, oldest first.
func (a *DLQAdmin) ListUnprocessed(ctx context.Context, page, pageSize int) ([]domain.DeadLetterRecord, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return a.store.ListUnprocessedDeadLetters(ctx, (page-1)*pageSize, pageSize)
}

// Stats returns counts for the admin dashboard.
func (a *DLQAdmin) Stats(ctx context.Context) (domain.DeadLetterStats, error) {
	return a.store.DeadLetterStats(ctx)
}

// Retry replays one dead letter: the stored event is deserialized, its retry
// count reset, its dead-letter metadata stripped, and the result re-published
// to the primary subject. The record is marked processed with attribution and
// kept — never deleted.
func (a *DLQAdmin) Retry(ctx context.Context, id, operator, notes string) error {
	rec, err := a.store.GetDeadLetter(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("dead letter not found: %s", id)
	}
	if rec.Processed {
		return fmt.Errorf("dead letter already processed: %s", id)
	}

	var event domain.DeliveryEvent
	if err := json.Unmarshal([]byte(rec.Payload), &event); err != nil {
		return fmt.Errorf("deserializing dead letter %s: %w", id, err)
	}

	event.RetryCount = 0
	event.StripDLQMeta()

	if _, err := a.producer.Replay(ctx, &event); err != nil {
		return fmt.Errorf("re-publishing dead letter %s: %w", id, err)
	}

	if notes == "" {
		notes = "retried via admin"
	}
	if err := a.store.MarkDeadLetterProcessed(ctx, id, operator, notes); err != nil {
		return fmt.Errorf("marking dead letter processed: %w", err)
	}

	a.logger.Info("dead letter retried",
		"dead_letter_id", id,
		"event_id", event.EventID,
		"operator", operator,
	)
	return nil
}

// RetryAll replays every unprocessed dead letter, continuing past individual
// failures. Returns how many were retried.
func (a *DLQAdmin) RetryAll(ctx context.Context, operator, notes string) (int, error) {
	retried := 0
	for {
		records, err := a.store.ListUnprocessedDeadLetters(ctx, 0, 100)
		if err != nil {
			return retried, err
		}
		if len(records) == 0 {
			return retried, nil
		}

		progressed := false
		for _, rec := range records {
			if err := a.Retry(ctx, rec.ID, operator, notes); err != nil {
				a.logger.Error("batch retry failed for record", "dead_letter_id", rec.ID, "error", err)
				continue
			}
			retried++
			progressed = true
		}
		if !progressed {
			// Every record in the page failed; stop rather than spin.
			return retried, fmt.Errorf("batch retry made no progress")
		}
	}
}

// MarkProcessed manually resolves a dead letter without retrying it.
func (a *DLQAdmin) MarkProcessed(ctx context.Context, id, operator, notes string) error {
	if notes == "" {
		notes = "manually marked as processed"
	}
	if err := a.store.MarkDeadLetterProcessed(ctx, id, operator, notes); err != nil {
		return err
	}
	a.logger.Info("dead letter marked processed", "dead_letter_id", id, "operator", operator)
	return nil
}
