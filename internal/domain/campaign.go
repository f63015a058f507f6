package domain

import "time"

// Campaign statuses. A campaign transitions to completed only after every
// chunk of delivery units has been flushed.
const (
	CampaignSending   = "sending"
	CampaignScheduled = "scheduled"
	CampaignCompleted = "completed"
)

// Delivery unit statuses. A unit is created pending and resolves to exactly
// one terminal status; once it leaves pending only the response fields change.
const (
	UnitPending = "pending"
	UnitSent    = "sent"
	UnitFailed  = "failed"
)

// Campaign is the aggregate root for one bulk broadcast.
type Campaign struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	TemplateName    string     `json:"template_name"`
	TotalRecipients int        `json:"total_recipients"`
	Status          string     `json:"status"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Audit           AuditInfo  `json:"audit"`
}

// DeliveryUnit is one recipient's send attempt within a campaign. Units are
// bulk-inserted pending before any provider call and mutated only by the
// dispatch worker that owns them.
type DeliveryUnit struct {
	ID                string    `json:"id"`
	CampaignID        string    `json:"campaign_id"`
	Recipient         string    `json:"recipient"`
	Status            string    `json:"status"`
	ProviderMessageID *string   `json:"provider_message_id,omitempty"`
	RequestPayload    string    `json:"request_payload,omitempty"`
	ResponsePayload   string    `json:"response_payload,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	Audit             AuditInfo `json:"audit"`
}

// Resolved reports whether the unit has reached a terminal status.
func (u *DeliveryUnit) Resolved() bool {
	return u.Status == UnitSent || u.Status == UnitFailed
}

// MarkSent records a successful provider call.
func (u *DeliveryUnit) MarkSent(providerMessageID, response string) {
	u.Status = UnitSent
	u.ProviderMessageID = &providerMessageID
	u.ResponsePayload = response
	u.Audit.Touch()
}

// MarkFailed records a failed provider call with its reason.
func (u *DeliveryUnit) MarkFailed(reason string) {
	u.Status = UnitFailed
	u.ErrorMessage = reason
	u.Audit.Touch()
}
