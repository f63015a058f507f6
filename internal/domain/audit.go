package domain

import "time"

// AuditInfo carries the shared created/updated bookkeeping embedded in every
// persisted record. It is a plain value, not a base type — records compose it.
type AuditInfo struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// NewAuditInfo returns audit fields stamped with the current time.
func NewAuditInfo(createdBy string) AuditInfo {
	now := time.Now().UTC()
	return AuditInfo{CreatedAt: now, UpdatedAt: now, CreatedBy: createdBy}
}

// Touch updates the modification timestamp.
func (a *AuditInfo) Touch() {
	a.UpdatedAt = time.Now().UTC()
}
