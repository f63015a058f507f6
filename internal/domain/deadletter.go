package domain

// DeadLetterRecord is the durable copy of an event that exhausted its retry
// budget. Retrying it never deletes the row — processed flips to true and the
// operator attribution is kept for the audit trail.
type DeadLetterRecord struct {
	ID                string    `json:"id"`
	EventID           string    `json:"event_id"`
	OriginSubject     string    `json:"origin_subject"`
	StreamSequence    uint64    `json:"stream_sequence"`
	Payload           string    `json:"payload"`
	RetryCount        int       `json:"retry_count"`
	FailureReason     string    `json:"failure_reason"`
	Processed         bool      `json:"processed"`
	ReprocessedBy     *string   `json:"reprocessed_by,omitempty"`
	ReprocessingNotes *string   `json:"reprocessing_notes,omitempty"`
	Audit             AuditInfo `json:"audit"`
}

// DeadLetterStats summarizes the dead-letter store for the admin surface.
type DeadLetterStats struct {
	Total       int64 `json:"total"`
	Unprocessed int64 `json:"unprocessed"`
	Processed   int64 `json:"processed"`
}
