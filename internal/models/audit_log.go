package models

import (
	"time"
)

const (
	ActionClickAccepted = "CLICK_ACCEPTED"
	ActionClickRejected = "CLICK_REJECTED"
	ActionCodeAccepted  = "CODE_ACCEPTED"
	ActionLeadCompleted = "LEAD_COMPLETED"
	ActionHelpSent      = "HELP_SENT"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	VisitorID string    `gorm:"size:32;index" json:"visitor_id"` // empty for click-side events
	Action    string    `gorm:"size:50;not null" json:"action"`
	EntityID  string    `gorm:"size:50" json:"entity_id"` // token, code or lead id
	Details   string    `gorm:"type:text" json:"details"`
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	Timestamp time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"timestamp"`
}
