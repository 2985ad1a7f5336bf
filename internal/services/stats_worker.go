package services

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/yYagoKn/drp/internal/models"

	"github.com/mssola/user_agent"
	"gorm.io/gorm"
)

const statsQueueSize = 1000

// column widths of click_events; postgres rejects longer values outright
const (
	maxUserAgentLen = 255
	maxReferrerLen  = 255
	maxBrowserLen   = 50
	maxOSLen        = 100
)

// StatsService records accepted clicks into click_events off the request path.
type StatsService struct {
	db           *gorm.DB
	logger       *slog.Logger
	clickChannel chan models.ClickEvent
	geoIPService *GeoIPService
	pending      atomic.Int64
}

func NewStatsService(db *gorm.DB, logger *slog.Logger, geoIPService *GeoIPService) *StatsService {
	return &StatsService{
		db:           db,
		logger:       logger,
		clickChannel: make(chan models.ClickEvent, statsQueueSize),
		geoIPService: geoIPService,
	}
}

func (s *StatsService) Start(ctx context.Context) {
	s.logger.Info("Stats worker starting")
	for {
		select {
		case click := <-s.clickChannel:
			s.record(click)
		case <-ctx.Done():
			s.logger.Info("Stats worker stopping")
			return
		}
	}
}

// RecordClickAsync never blocks the redirect; a full queue drops the event.
func (s *StatsService) RecordClickAsync(click models.ClickEvent) {
	if s == nil {
		return
	}
	s.pending.Add(1)
	select {
	case s.clickChannel <- click:
	default:
		s.pending.Add(-1)
		s.logger.Warn("Stats channel full, dropping click event", "token", click.Token)
	}
}

// Flush waits until every queued click has been recorded or ctx is done.
func (s *StatsService) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return waitIdle(ctx, "stats", &s.pending)
}

func (s *StatsService) record(click models.ClickEvent) {
	defer s.pending.Add(-1)
	s.enrichClickData(&click)

	if err := s.db.Create(&click).Error; err != nil {
		s.logger.Error("Failed to record click event", "token", click.Token, "error", err)
	}
}

func (s *StatsService) enrichClickData(click *models.ClickEvent) {
	ua := user_agent.New(click.UserAgent)
	browserName, browserVer := ua.Browser()
	click.Browser = strings.TrimSpace(browserName + " " + browserVer)
	click.OS = ua.OS()

	switch {
	case ua.Bot():
		click.DeviceType = "Bot"
	case ua.Mobile():
		click.DeviceType = "Mobile"
	default:
		click.DeviceType = "Desktop"
	}

	click.Country = s.geoIPService.GetCountry(click.IPAddress)
	if click.Referrer == "" {
		click.Referrer = "Direct"
	}

	click.IPAddress = maskIP(click.IPAddress)

	// in-app browser UAs and fbclid referrers routinely exceed the columns
	click.UserAgent = truncateRunes(click.UserAgent, maxUserAgentLen)
	click.Referrer = truncateRunes(click.Referrer, maxReferrerLen)
	click.Browser = truncateRunes(click.Browser, maxBrowserLen)
	click.OS = truncateRunes(click.OS, maxOSLen)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// maskIP zeroes the last IPv4 octet and hides IPv6 addresses entirely.
func maskIP(ip string) string {
	for i := len(ip) - 1; i >= 0; i-- {
		if ip[i] == '.' {
			return ip[:i] + ".0"
		}
		if ip[i] == ':' {
			return "IPv6 (Masked)"
		}
	}
	return ip
}
