package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yYagoKn/drp/internal/models"

	"gorm.io/gorm"
)

const auditQueueSize = 100

// AuditService writes audit_logs rows from a background worker.
// A nil *AuditService accepts and discards every entry.
type AuditService struct {
	db      *gorm.DB
	logger  *slog.Logger
	channel chan models.AuditLog
	pending atomic.Int64
}

func NewAuditService(db *gorm.DB, logger *slog.Logger) *AuditService {
	return &AuditService{
		db:      db,
		logger:  logger,
		channel: make(chan models.AuditLog, auditQueueSize),
	}
}

func (s *AuditService) Start(ctx context.Context) {
	s.logger.Info("Audit worker starting")
	for {
		select {
		case entry := <-s.channel:
			s.write(entry)
		case <-ctx.Done():
			s.drain()
			s.logger.Info("Audit worker stopping")
			return
		}
	}
}

func (s *AuditService) LogAction(visitorID, action, entityID string, details any, ip string) {
	if s == nil {
		return
	}

	var detailStr string
	if details != nil {
		detailBytes, err := json.Marshal(details)
		if err != nil {
			s.logger.Warn("Audit details not encodable", "action", action, "error", err)
		}
		detailStr = string(detailBytes)
	}

	entry := models.AuditLog{
		VisitorID: visitorID,
		Action:    action,
		EntityID:  entityID,
		Details:   detailStr,
		IPAddress: ip,
		Timestamp: time.Now().UTC(),
	}

	s.pending.Add(1)
	select {
	case s.channel <- entry:
	default:
		s.pending.Add(-1)
		s.logger.Warn("Audit channel full, dropping log", "action", action)
	}
}

// Flush waits until every queued entry has been written or ctx is done.
func (s *AuditService) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return waitIdle(ctx, "audit", &s.pending)
}

func (s *AuditService) write(entry models.AuditLog) {
	defer s.pending.Add(-1)
	if err := s.db.Create(&entry).Error; err != nil {
		s.logger.Error("Failed to write audit log", "action", entry.Action, "error", err)
	}
}

func (s *AuditService) drain() {
	for {
		select {
		case entry := <-s.channel:
			s.write(entry)
		default:
			return
		}
	}
}
