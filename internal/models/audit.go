package models

import "time"

const (
	ActionLeaveSubmitted  = "LEAVE_SUBMITTED"
	ActionLeaveUpdated    = "LEAVE_UPDATED"
	ActionLeaveApproved   = "LEAVE_APPROVED"
	ActionLeaveRejected   = "LEAVE_REJECTED"
	ActionLeaveCancelled  = "LEAVE_CANCELLED"
	ActionUserActivated   = "USER_ACTIVATED"
	ActionUserDeactivated = "USER_DEACTIVATED"
	ActionRoleChanged     = "ROLE_CHANGED"
)

const (
	EntityLeaveRequest = "leave_request"
	EntityUser         = "user"
)

// AuditEntry is an immutable record of a state-changing action. Entries are
// only ever inserted; there is no update or delete path.
type AuditEntry struct {
	AuditID     string    `json:"audit_id"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	EntityKind  string    `json:"entity_kind"`
	EntityID    string    `json:"entity_id"`
	OldStatus   string    `json:"old_status,omitempty"`
	NewStatus   string    `json:"new_status,omitempty"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
