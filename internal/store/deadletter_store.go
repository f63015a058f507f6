package store

import (
	"context"
	"fmt"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/jackc/pgx/v5"
)

// InsertDeadLetter persists an exhausted event verbatim with processed=false.
func (s *PostgresStore) InsertDeadLetter(ctx context.Context, rec *domain.DeadLetterRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letters (id, event_id, origin_subject, stream_sequence, payload,
			retry_count, failure_reason, processed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.EventID, rec.OriginSubject, rec.StreamSequence, rec.Payload,
		rec.RetryCount, rec.FailureReason, rec.Processed, rec.Audit.CreatedAt, rec.Audit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

// GetDeadLetter returns one dead letter by id, or nil when it does not exist.
func (s *PostgresStore) GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetterRecord, error) {
	var rec domain.DeadLetterRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, event_id, origin_subject, stream_sequence, payload, retry_count,
		       failure_reason, processed, reprocessed_by, reprocessing_notes, created_at, updated_at
		FROM dead_letters WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.EventID, &rec.OriginSubject, &rec.StreamSequence, &rec.Payload,
		&rec.RetryCount, &rec.FailureReason, &rec.Processed, &rec.ReprocessedBy,
		&rec.ReprocessingNotes, &rec.Audit.CreatedAt, &rec.Audit.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying dead letter: %w", err)
	}
	return &rec, nil
}

// ListUnprocessedDeadLetters returns unprocessed dead letters oldest first,
// paginated.
func (s *PostgresStore) ListUnprocessedDeadLetters(ctx context.Context, offset, limit int) ([]domain.DeadLetterRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, origin_subject, stream_sequence, payload, retry_count,
		       failure_reason, processed, reprocessed_by, reprocessing_notes, created_at, updated_at
		FROM dead_letters
		WHERE processed = false
		ORDER BY created_at
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	records := []domain.DeadLetterRecord{}
	for rows.Next() {
		var rec domain.DeadLetterRecord
		if err := rows.Scan(
			&rec.ID, &rec.EventID, &rec.OriginSubject, &rec.StreamSequence, &rec.Payload,
			&rec.RetryCount, &rec.FailureReason, &rec.Processed, &rec.ReprocessedBy,
			&rec.ReprocessingNotes, &rec.Audit.CreatedAt, &rec.Audit.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeadLetterStats returns total/processed/unprocessed counts.
func (s *PostgresStore) DeadLetterStats(ctx context.Context) (domain.DeadLetterStats, error) {
	var stats domain.DeadLetterStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE processed = false) FROM dead_letters
	`).Scan(&stats.Total, &stats.Unprocessed)
	if err != nil {
		return stats, fmt.Errorf("counting dead letters: %w", err)
	}
	stats.Processed = stats.Total - stats.Unprocessed
	return stats, nil
}

// MarkDeadLetterProcessed flips processed and records who resolved it and why.
// The row is never deleted — the audit trail survives the retry.
func (s *PostgresStore) MarkDeadLetterProcessed(ctx context.Context, id, operator, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dead_letters
		SET processed = true, reprocessed_by = $2, reprocessing_notes = $3, updated_at = NOW()
		WHERE id = $1
	`, id, operator, notes)
	if err != nil {
		return fmt.Errorf("marking dead letter processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dead letter not found: %s", id)
	}
	return nil
}
