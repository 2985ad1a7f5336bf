package models

import (
	"strings"
	"time"
)

// Attribution holds the campaign fields captured from a tracking link.
// A nil field means the parameter was absent on the click.
type Attribution struct {
	Source   *string `gorm:"column:utm_source;size:255" json:"utm_source"`
	Campaign *string `gorm:"column:utm_campaign;size:255" json:"utm_campaign"`
	Medium   *string `gorm:"column:utm_medium;size:255" json:"utm_medium"`
	Content  *string `gorm:"column:utm_content;size:255" json:"utm_content"`
	Term     *string `gorm:"column:utm_term;size:255" json:"utm_term"`
}

func NewAttribution(source, campaign, medium, content, term string) Attribution {
	return Attribution{
		Source:   optional(source),
		Campaign: optional(campaign),
		Medium:   optional(medium),
		Content:  optional(content),
		Term:     optional(term),
	}
}

// Fingerprint joins the full attribution tuple; absent fields are empty.
func (a Attribution) Fingerprint() string {
	return strings.Join([]string{
		Value(a.Source), Value(a.Campaign), Value(a.Medium), Value(a.Content), Value(a.Term),
	}, "\x1f")
}

// Value dereferences an optional field, returning "" when absent.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ClickRecord is the ledger entry written for every accepted ad click.
// It is never mutated after being stored.
type ClickRecord struct {
	Token string `json:"token"`
	Code  string `json:"code"`
	Attribution
	Phone     string    `json:"phone,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"ts"`
}

// ClickEvent is the audit row kept for accepted clicks.
type ClickEvent struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Token string `gorm:"size:20;index" json:"token"`
	Code  string `gorm:"size:40;index" json:"code"`
	Attribution
	Timestamp  time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"timestamp"`
	IPAddress  string    `gorm:"size:45" json:"ip_address,omitempty"`
	Country    string    `gorm:"size:100;default:'Unknown'" json:"country"`
	Browser    string    `gorm:"size:50" json:"browser"`
	OS         string    `gorm:"size:100" json:"os"`
	DeviceType string    `gorm:"size:50" json:"device_type"`
	UserAgent  string    `gorm:"size:255" json:"user_agent"` // raw until enriched
	Referrer   string    `gorm:"size:255;default:'Direct'" json:"referrer"`
}

func (ClickEvent) TableName() string {
	return "click_events"
}
