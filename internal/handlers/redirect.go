package handlers

import (
	"net/http"

	"github.com/yYagoKn/drp/internal/models"
	"github.com/yYagoKn/drp/internal/services"

	"github.com/gin-gonic/gin"
)

// ClickQuery is the tracking link's query string.
type ClickQuery struct {
	Phone       string `form:"phone" binding:"max=32"`
	Code        string `form:"code" binding:"max=64"`
	UTMSource   string `form:"utm_source" binding:"max=255"`
	UTMCampaign string `form:"utm_campaign" binding:"max=255"`
	UTMMedium   string `form:"utm_medium" binding:"max=255"`
	UTMContent  string `form:"utm_content" binding:"max=255"`
	UTMTerm     string `form:"utm_term" binding:"max=255"`
}

func (q ClickQuery) request(c *gin.Context) services.ClickRequest {
	return services.ClickRequest{
		Phone:       q.Phone,
		Code:        q.Code,
		Attribution: models.NewAttribution(q.UTMSource, q.UTMCampaign, q.UTMMedium, q.UTMContent, q.UTMTerm),
		ClientIP:    c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Referrer:    c.Request.Referer(),
	}
}

// Click records an ad click and redirects the visitor into the chat.
func (h *Handler) Click(c *gin.Context) {
	var q ClickQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   string(services.KindValidation),
			"message": err.Error(),
		})
		return
	}

	res, err := h.tracker.Track(c.Request.Context(), q.request(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, res.RedirectURL)
}
