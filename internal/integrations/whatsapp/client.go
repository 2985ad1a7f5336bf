// Package whatsapp sends replies through the WhatsApp Cloud API.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/yYagoKn/drp/internal/integrations"
)

const defaultBaseURL = "https://graph.facebook.com/v20.0"

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// Client posts text messages on behalf of one business phone number.
type Client struct {
	baseURL       string
	phoneNumberID string
	token         string
	httpClient    *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(phoneNumberID, token string, opts ...Option) (*Client, error) {
	phoneNumberID = strings.TrimSpace(phoneNumberID)
	if phoneNumberID == "" {
		return nil, errors.New("whatsapp: phone number id is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("whatsapp: access token is required")
	}
	c := &Client{
		baseURL:       defaultBaseURL,
		phoneNumberID: phoneNumberID,
		token:         token,
		httpClient:    integrations.DefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) messagesURL() string {
	return strings.TrimRight(c.baseURL, "/") + "/" + c.phoneNumberID + "/messages"
}

// SendText delivers a plain text message with link previews disabled.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if to == "" {
		return errors.New("whatsapp: recipient is required")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	_, err := integrations.PostJSON(ctx, c.httpClient, c.messagesURL(), sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	}, header)
	if err != nil {
		return fmt.Errorf("whatsapp: send text: %w", err)
	}
	return nil
}
