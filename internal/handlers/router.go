package handlers

import (
	"net/http"

	"github.com/yYagoKn/drp/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires every route. A nil limiter disables per-IP rate limiting.
func (h *Handler) SetupRouter(limiter middleware.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(h.logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	// Ad traffic
	public := r.Group("/")
	if limiter != nil {
		public.Use(middleware.RateLimit(limiter))
	}
	{
		public.GET("/click", h.Click)
		public.GET("/w", h.Click)
		public.GET("/qr", h.QRCode)
	}

	// Messaging platform
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", middleware.BodyLimit(maxWebhookBody), h.ReceiveWebhook)

	return r
}
