package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/yYagoKn/drp/internal/services"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Hub-Signature-256"

// The batch is decoded level by level so one malformed entry, change or
// message only costs itself.
type webhookPayload struct {
	Entry []json.RawMessage `json:"entry"`
}

type webhookEntry struct {
	Changes []json.RawMessage `json:"changes"`
}

type webhookChange struct {
	Value struct {
		Messages []json.RawMessage `json:"messages"`
	} `json:"value"`
}

type titled struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type platformMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
	Interactive *struct {
		Type        string  `json:"type"`
		ButtonReply *titled `json:"button_reply,omitempty"`
		ListReply   *titled `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
}

// text returns whatever the visitor typed or tapped, trimmed.
func (m platformMessage) text() string {
	switch {
	case m.Text != nil:
		return strings.TrimSpace(m.Text.Body)
	case m.Button != nil:
		return strings.TrimSpace(m.Button.Text)
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return strings.TrimSpace(m.Interactive.ButtonReply.Title)
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return strings.TrimSpace(m.Interactive.ListReply.Title)
	}
	return ""
}

// decodeMessages flattens every message in the batch, in delivery order.
// Parts that fail to decode are skipped and counted.
func decodeMessages(body []byte) (out []services.InboundMessage, skipped int, err error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, 0, err
	}
	for _, rawEntry := range payload.Entry {
		var entry webhookEntry
		if json.Unmarshal(rawEntry, &entry) != nil {
			skipped++
			continue
		}
		for _, rawChange := range entry.Changes {
			var change webhookChange
			if json.Unmarshal(rawChange, &change) != nil {
				skipped++
				continue
			}
			for _, rawMsg := range change.Value.Messages {
				var msg platformMessage
				if json.Unmarshal(rawMsg, &msg) != nil {
					skipped++
					continue
				}
				out = append(out, services.InboundMessage{
					VisitorID: msg.From,
					MessageID: msg.ID,
					Text:      msg.text(),
				})
			}
		}
	}
	return out, skipped, nil
}

// VerifyWebhook answers the platform's subscription handshake.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	challenge, err := services.VerifySubscription(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
		h.cfg.VerifyToken,
	)
	if err != nil {
		h.logger.Warn("Webhook verification rejected", "error", err)
		h.abortWithError(c, err)
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook runs every message in the batch through the engine. Apart
// from a bad signature the platform always gets 200, so it never retries.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("Webhook body unreadable", "error", err)
		c.Status(http.StatusOK)
		return
	}

	if err := services.VerifySignature(h.cfg.AppSecret, body, c.GetHeader(signatureHeader)); err != nil {
		h.logger.Warn("Webhook signature rejected", "error", err)
		h.abortWithError(c, err)
		return
	}

	msgs, skipped, err := decodeMessages(body)
	if err != nil {
		h.logger.Warn("Webhook payload malformed", "error", err)
		c.Status(http.StatusOK)
		return
	}
	if skipped > 0 {
		h.logger.Warn("Skipped malformed webhook parts", "skipped", skipped, "processed", len(msgs))
	}

	// detached so a client disconnect doesn't abandon half a batch
	ctx := context.WithoutCancel(c.Request.Context())
	for _, msg := range msgs {
		h.handleMessage(ctx, msg)
	}

	c.Status(http.StatusOK)
}

func (h *Handler) handleMessage(ctx context.Context, msg services.InboundMessage) {
	res, err := h.engine.Handle(ctx, msg)
	if err != nil {
		h.logger.Error("Message processing failed", "visitor_id", msg.VisitorID, "message_id", msg.MessageID, "error", err)
	}

	if res.Lead != nil {
		h.dispatcher.DeliverLead(*res.Lead)
	}
	if res.Reply != "" {
		h.dispatcher.SendReply(msg.VisitorID, res.Reply)
	}
}
