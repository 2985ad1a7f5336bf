package models

import "time"

type Phase string

const (
	// PhaseAwaitingCode is implicit: it is never stored, absence of state means it.
	PhaseAwaitingCode Phase = ""
	PhaseAwaitingName Phase = "awaiting_name"
	PhaseCompleted    Phase = "completed"
)

// ConversationState tracks one visitor through the scripted exchange.
// LinkedClick is a snapshot taken when the code was recognized.
type ConversationState struct {
	VisitorID   string       `json:"visitor_id"`
	Phase       Phase        `json:"phase"`
	Code        string       `json:"code"`
	Token       string       `json:"token,omitempty"`
	LinkedClick *ClickRecord `json:"linked_click"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// CompletionMarker suppresses every later message from the same visitor.
type CompletionMarker struct {
	Done        bool      `json:"done"`
	LeadID      string    `json:"lead_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
