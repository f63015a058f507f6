package store

import (
	"context"
	"fmt"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/jackc/pgx/v5"
)

// InsertCampaign persists a new campaign.
func (s *PostgresStore) InsertCampaign(ctx context.Context, c *domain.Campaign) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO campaigns (id, name, template_name, total_recipients, status, scheduled_at, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Name, c.TemplateName, c.TotalRecipients, c.Status, c.ScheduledAt,
		c.Audit.CreatedAt, c.Audit.UpdatedAt, c.Audit.CreatedBy)
	if err != nil {
		return fmt.Errorf("inserting campaign: %w", err)
	}
	return nil
}

// GetCampaign returns a campaign by id, or nil when it does not exist.
func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, template_name, total_recipients, status, scheduled_at, created_at, updated_at, created_by
		FROM campaigns WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &c.TemplateName, &c.TotalRecipients, &c.Status,
		&c.ScheduledAt, &c.Audit.CreatedAt, &c.Audit.UpdatedAt, &c.Audit.CreatedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying campaign: %w", err)
	}
	return &c, nil
}

// UpdateCampaignStatus transitions a campaign's status.
func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, id, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("updating campaign status: %w", err)
	}
	return nil
}

// BulkInsertUnits inserts one chunk of pending delivery units via COPY.
func (s *PostgresStore) BulkInsertUnits(ctx context.Context, units []*domain.DeliveryUnit) error {
	if len(units) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(units))
	for _, u := range units {
		rows = append(rows, []interface{}{
			u.ID, u.CampaignID, u.Recipient, u.Status,
			u.RequestPayload, u.Audit.CreatedAt, u.Audit.UpdatedAt,
		})
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"delivery_units"},
		[]string{"id", "campaign_id", "recipient", "status", "request_payload", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("bulk inserting delivery units: %w", err)
	}
	return nil
}

// BulkReplaceUnits upserts completed units by id in a single batch round trip.
func (s *PostgresStore) BulkReplaceUnits(ctx context.Context, units []*domain.DeliveryUnit) error {
	if len(units) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range units {
		batch.Queue(`
			UPDATE delivery_units
			SET status = $2, provider_message_id = $3, request_payload = $4,
			    response_payload = $5, error_message = $6, updated_at = $7
			WHERE id = $1
		`, u.ID, u.Status, u.ProviderMessageID, u.RequestPayload,
			u.ResponsePayload, u.ErrorMessage, u.Audit.UpdatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range units {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("bulk replacing delivery units: %w", err)
		}
	}
	return nil
}

// CountUnitsByStatus returns delivery unit counts grouped by status for one
// campaign, for the status-query surface.
func (s *PostgresStore) CountUnitsByStatus(ctx context.Context, campaignID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM delivery_units WHERE campaign_id = $1 GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("counting delivery units: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning unit count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListUnitsByStatus returns units for a campaign filtered by status.
func (s *PostgresStore) ListUnitsByStatus(ctx context.Context, campaignID, status string, limit int) ([]domain.DeliveryUnit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, campaign_id, recipient, status, provider_message_id,
		       request_payload, response_payload, error_message, created_at, updated_at
		FROM delivery_units
		WHERE campaign_id = $1 AND status = $2
		ORDER BY created_at
		LIMIT $3
	`, campaignID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("querying delivery units: %w", err)
	}
	defer rows.Close()

	units := []domain.DeliveryUnit{}
	for rows.Next() {
		var u domain.DeliveryUnit
		var reqPayload, respPayload, errMsg *string
		if err := rows.Scan(
			&u.ID, &u.CampaignID, &u.Recipient, &u.Status, &u.ProviderMessageID,
			&reqPayload, &respPayload, &errMsg, &u.Audit.CreatedAt, &u.Audit.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning delivery unit: %w", err)
		}
		if reqPayload != nil {
			u.RequestPayload = *reqPayload
		}
		if respPayload != nil {
			u.ResponsePayload = *respPayload
		}
		if errMsg != nil {
			u.ErrorMessage = *errMsg
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
