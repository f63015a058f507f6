package domain

import "time"

// Notification outcome statuses recorded for the audit trail.
const (
	NotificationDelivered = "delivered"
	NotificationFailed    = "failed"
)

// NotificationOutcome is the durable record of one processed delivery event.
type NotificationOutcome struct {
	ID                string    `json:"id"`
	EventID           string    `json:"event_id"`
	CorrelationID     string    `json:"correlation_id,omitempty"`
	Recipient         string    `json:"recipient"`
	Status            string    `json:"status"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	ProcessingTimeMs  int64     `json:"processing_time_ms"`
	Audit             AuditInfo `json:"audit"`
}

// DeliveryAudit describes one delivery attempt's outcome as published through
// the outbox to the audit subject and persisted by the audit consumer.
type DeliveryAudit struct {
	AuditID          string    `json:"audit_id"`
	NotificationID   string    `json:"notification_id,omitempty"`
	EventID          string    `json:"event_id"`
	CorrelationID    string    `json:"correlation_id,omitempty"`
	Channel          string    `json:"channel"`
	Status           string    `json:"status"`
	Recipient        string    `json:"recipient"`
	RetryCount       int       `json:"retry_count"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
