package services

import (
	"context"

	"github.com/yYagoKn/drp/internal/models"

	"gorm.io/gorm"
)

// LeadArchive keeps a local copy of every lead in the leads table.
type LeadArchive struct {
	db *gorm.DB
}

func NewLeadArchive(db *gorm.DB) *LeadArchive {
	return &LeadArchive{db: db}
}

func (a *LeadArchive) Name() string { return "archive" }

func (a *LeadArchive) Deliver(ctx context.Context, lead models.LeadRecord) error {
	return a.db.WithContext(ctx).Create(&lead).Error
}
