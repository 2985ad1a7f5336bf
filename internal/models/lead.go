package models

import (
	"time"
)

// LeadRecord is the enriched lead handed to the delivery sinks.
// Phone is the visitor's messaging identity.
type LeadRecord struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	Code      string    `gorm:"size:40;index" json:"code"`
	Phone     string    `gorm:"size:32;index" json:"phone"`
	Name      string    `gorm:"size:255" json:"name"`
	Attribution
}

func (LeadRecord) TableName() string {
	return "leads"
}

// NewLeadRecord merges the captured name with the attribution snapshot held in state.
func NewLeadRecord(id string, state *ConversationState, name string, now time.Time) LeadRecord {
	lead := LeadRecord{
		ID:        id,
		Timestamp: now.UTC(),
		Code:      state.Code,
		Phone:     state.VisitorID,
		Name:      name,
	}
	if click := state.LinkedClick; click != nil {
		lead.Attribution = click.Attribution
		if lead.Code == "" {
			lead.Code = click.Code
		}
	}
	return lead
}
