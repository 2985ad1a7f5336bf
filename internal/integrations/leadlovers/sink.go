// Package leadlovers relays completed leads to the Leadlovers CRM.
package leadlovers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/yYagoKn/drp/internal/integrations"
	"github.com/yYagoKn/drp/internal/models"
)

type leadRequest struct {
	Token       string  `json:"token"`
	Phone       string  `json:"phone"`
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	UTMSource   *string `json:"utm_source"`
	UTMCampaign *string `json:"utm_campaign"`
	UTMMedium   *string `json:"utm_medium"`
	UTMContent  *string `json:"utm_content"`
	UTMTerm     *string `json:"utm_term"`
}

type Sink struct {
	url        string
	token      string
	httpClient *http.Client
}

type Option func(*Sink)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *Sink) {
		s.httpClient = httpClient
	}
}

func New(url, token string, opts ...Option) (*Sink, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("leadlovers: url is required")
	}
	s := &Sink{
		url:        url,
		token:      token,
		httpClient: integrations.DefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sink) Name() string { return "leadlovers" }

func (s *Sink) Deliver(ctx context.Context, lead models.LeadRecord) error {
	_, err := integrations.PostJSON(ctx, s.httpClient, s.url, leadRequest{
		Token:       s.token,
		Phone:       lead.Phone,
		Name:        lead.Name,
		Code:        lead.Code,
		UTMSource:   lead.Source,
		UTMCampaign: lead.Campaign,
		UTMMedium:   lead.Medium,
		UTMContent:  lead.Content,
		UTMTerm:     lead.Term,
	}, nil)
	if err != nil {
		return fmt.Errorf("leadlovers: relay lead: %w", err)
	}
	return nil
}
