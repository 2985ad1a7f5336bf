package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/yYagoKn/drp/internal/services"

	"github.com/gin-gonic/gin"
)

type QRQuery struct {
	ClickQuery
	Size   int    `form:"size" binding:"omitempty,min=64,max=1024"`
	Format string `form:"format" binding:"omitempty,oneof=png svg"`
	Fg     string `form:"fg"`
	Bg     string `form:"bg"`
}

// QRCode renders the tracking link for the same query as a QR code, so print
// campaigns go through the same click path.
func (h *Handler) QRCode(c *gin.Context) {
	var q QRQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   string(services.KindValidation),
			"message": err.Error(),
		})
		return
	}

	opts := services.QROptions{
		Content: h.trackingURL(c, q.ClickQuery),
		Size:    q.Size,
		FgColor: q.Fg,
		BgColor: q.Bg,
	}

	if q.Format == "svg" {
		svg, err := services.GenerateQRCodeSVG(opts)
		if err != nil {
			h.abortWithError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/svg+xml", []byte(svg))
		return
	}

	png, err := services.GenerateQRCodePNG(opts)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Header("Content-Length", strconv.Itoa(len(png)))
	c.Data(http.StatusOK, "image/png", png)
}

// trackingURL rebuilds the /click link for this deployment.
func (h *Handler) trackingURL(c *gin.Context, q ClickQuery) string {
	base := strings.TrimRight(h.cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}

	v := url.Values{}
	for key, value := range map[string]string{
		"phone":        q.Phone,
		"code":         q.Code,
		"utm_source":   q.UTMSource,
		"utm_campaign": q.UTMCampaign,
		"utm_medium":   q.UTMMedium,
		"utm_content":  q.UTMContent,
		"utm_term":     q.UTMTerm,
	} {
		if value != "" {
			v.Set(key, value)
		}
	}
	if len(v) == 0 {
		return base + "/click"
	}
	return base + "/click?" + v.Encode()
}
