package domain

import "time"

// Metadata keys stamped onto an event as it moves between subjects.
const (
	MetaDLQReason      = "dlqReason"
	MetaDLQTimestamp   = "dlqTimestamp"
	MetaNotificationID = "notificationId"
	MetaFailureReason  = "failureReason"
	MetaFailureTime    = "failureTimestamp"
	MetaSuccessTime    = "successTimestamp"
)

// DeliveryEvent is the wire value for one notification delivery request.
// Immutable on the consumer side except RetryCount, which increments each
// time the event is re-published to the retry subject.
type DeliveryEvent struct {
	EventID           string            `json:"event_id"`
	CorrelationID     string            `json:"correlation_id,omitempty"`
	Recipients        []string          `json:"recipients"`
	Subject           string            `json:"subject,omitempty"`
	Body              string            `json:"body,omitempty"`
	TemplateCode      string            `json:"template_code,omitempty"`
	TemplateVariables map[string]string `json:"template_variables,omitempty"`
	RetryCount        int               `json:"retry_count"`
	UserID            string            `json:"user_id,omitempty"`
	SourceService     string            `json:"source_service,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// RoutingKey derives the partition key for this event so that events for the
// same user (or, failing that, the same first recipient) keep publish order.
func (e *DeliveryEvent) RoutingKey() string {
	if e.UserID != "" {
		return e.UserID
	}
	if len(e.Recipients) > 0 {
		return e.Recipients[0]
	}
	return e.EventID
}

// SetMeta writes a metadata entry, allocating the map on first use.
func (e *DeliveryEvent) SetMeta(key, value string) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
}

// StripDLQMeta removes dead-letter bookkeeping before a manual re-publish.
func (e *DeliveryEvent) StripDLQMeta() {
	delete(e.Metadata, MetaDLQReason)
	delete(e.Metadata, MetaDLQTimestamp)
}
