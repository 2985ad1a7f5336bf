// Package sheets appends lead rows to a spreadsheet through an Apps Script webhook.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yYagoKn/drp/internal/integrations"
	"github.com/yYagoKn/drp/internal/models"
)

// Row is one spreadsheet line. Absent attribution fields are null.
type Row struct {
	Timestamp   string  `json:"timestamp"`
	Code        *string `json:"code"`
	Phone       string  `json:"phone"`
	Name        string  `json:"name"`
	UTMSource   *string `json:"utm_source"`
	UTMCampaign *string `json:"utm_campaign"`
	UTMMedium   *string `json:"utm_medium"`
	UTMContent  *string `json:"utm_content"`
	UTMTerm     *string `json:"utm_term"`
}

type appendRequest struct {
	Secret  string `json:"secret"`
	DocName string `json:"docName"`
	TabName string `json:"tabName"`
	Data    []Row  `json:"data"`
}

type Sink struct {
	url        string
	secret     string
	docName    string
	tabName    string
	httpClient *http.Client
}

type Option func(*Sink)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *Sink) {
		s.httpClient = httpClient
	}
}

func New(url, secret, docName, tabName string, opts ...Option) (*Sink, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("sheets: webhook url is required")
	}
	s := &Sink{
		url:        url,
		secret:     secret,
		docName:    docName,
		tabName:    tabName,
		httpClient: integrations.DefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sink) Name() string { return "sheets" }

func (s *Sink) Deliver(ctx context.Context, lead models.LeadRecord) error {
	_, err := integrations.PostJSON(ctx, s.httpClient, s.url, appendRequest{
		Secret:  s.secret,
		DocName: s.docName,
		TabName: s.tabName,
		Data:    []Row{NewRow(lead)},
	}, nil)
	if err != nil {
		return fmt.Errorf("sheets: append row: %w", err)
	}
	return nil
}

func NewRow(lead models.LeadRecord) Row {
	var code *string
	if lead.Code != "" {
		code = &lead.Code
	}
	return Row{
		Timestamp:   lead.Timestamp.UTC().Format(time.RFC3339Nano),
		Code:        code,
		Phone:       lead.Phone,
		Name:        lead.Name,
		UTMSource:   lead.Source,
		UTMCampaign: lead.Campaign,
		UTMMedium:   lead.Medium,
		UTMContent:  lead.Content,
		UTMTerm:     lead.Term,
	}
}
