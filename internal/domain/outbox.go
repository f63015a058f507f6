package domain

// Outbox entry statuses. An entry is created pending in the same transaction
// as the primary write and moves to published or failed exactly once per poll
// attempt.
const (
	OutboxPending   = "pending"
	OutboxPublished = "published"
	OutboxFailed    = "failed"
)

// OutboxEntry is a side-effect event awaiting asynchronous publication.
type OutboxEntry struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	EventType     string    `json:"event_type"`
	Payload       string    `json:"payload"`
	Status        string    `json:"status"`
	RetryCount    int       `json:"retry_count"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Audit         AuditInfo `json:"audit"`
}
