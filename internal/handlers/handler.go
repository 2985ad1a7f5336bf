package handlers

import (
	"log/slog"

	"github.com/yYagoKn/drp/internal/config"
	"github.com/yYagoKn/drp/internal/metrics"
	"github.com/yYagoKn/drp/internal/services"
)

// maxWebhookBody bounds inbound platform payloads.
const maxWebhookBody = 1 << 20

type Handler struct {
	cfg        config.Config
	logger     *slog.Logger
	tracker    *services.TrackerService
	engine     *services.Engine
	dispatcher *services.Dispatcher
	metrics    *metrics.Metrics
}

func NewHandler(
	cfg config.Config,
	logger *slog.Logger,
	tracker *services.TrackerService,
	engine *services.Engine,
	dispatcher *services.Dispatcher,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		cfg:        cfg,
		logger:     logger,
		tracker:    tracker,
		engine:     engine,
		dispatcher: dispatcher,
		metrics:    m,
	}
}
