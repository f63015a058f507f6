package store

import (
	"context"
	"fmt"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
)

// SaveOutcomeWithAudit writes a notification outcome and its pending audit
// outbox entry in one transaction, so the audit intent survives a crash even
// if publishing has not happened yet.
func (s *PostgresStore) SaveOutcomeWithAudit(ctx context.Context, outcome *domain.NotificationOutcome, entry *domain.OutboxEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO notification_outcomes (id, event_id, correlation_id, recipient, status,
			provider_message_id, error_message, processing_time_ms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, outcome.ID, outcome.EventID, outcome.CorrelationID, outcome.Recipient, outcome.Status,
		outcome.ProviderMessageID, outcome.ErrorMessage, outcome.ProcessingTimeMs,
		outcome.Audit.CreatedAt, outcome.Audit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting notification outcome: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_entries (id, event_id, aggregate_type, aggregate_id, event_type,
			payload, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.EventID, entry.AggregateType, entry.AggregateID, entry.EventType,
		entry.Payload, entry.Status, entry.RetryCount, entry.Audit.CreatedAt, entry.Audit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting outbox entry: %w", err)
	}

	return tx.Commit(ctx)
}

// FetchPendingOutbox returns pending entries oldest first, bounded by limit.
func (s *PostgresStore) FetchPendingOutbox(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload,
		       status, retry_count, error_message, created_at, updated_at
		FROM outbox_entries
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`, domain.OutboxPending, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outbox entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.OutboxEntry{}
	for rows.Next() {
		var e domain.OutboxEntry
		var errMsg *string
		if err := rows.Scan(
			&e.ID, &e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload,
			&e.Status, &e.RetryCount, &errMsg, &e.Audit.CreatedAt, &e.Audit.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning outbox entry: %w", err)
		}
		if errMsg != nil {
			e.ErrorMessage = *errMsg
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkOutboxPublished transitions an entry to published.
func (s *PostgresStore) MarkOutboxPublished(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_entries SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, domain.OutboxPublished)
	if err != nil {
		return fmt.Errorf("marking outbox entry published: %w", err)
	}
	return nil
}

// MarkOutboxFailed transitions an entry to failed with an incremented retry
// count and the publish error.
func (s *PostgresStore) MarkOutboxFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_entries
		SET status = $2, retry_count = retry_count + 1, error_message = $3, updated_at = NOW()
		WHERE id = $1
	`, id, domain.OutboxFailed, errMsg)
	if err != nil {
		return fmt.Errorf("marking outbox entry failed: %w", err)
	}
	return nil
}

// InsertDeliveryAudit persists one audit record consumed from the audit
// subject.
func (s *PostgresStore) InsertDeliveryAudit(ctx context.Context, a *domain.DeliveryAudit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_audits (audit_id, notification_id, event_id, correlation_id,
			channel, status, recipient, retry_count, processing_time_ms, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (audit_id) DO NOTHING
	`, a.AuditID, a.NotificationID, a.EventID, a.CorrelationID, a.Channel, a.Status,
		a.Recipient, a.RetryCount, a.ProcessingTimeMs, a.ErrorMessage, a.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting delivery audit: %w", err)
	}
	return nil
}
