package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/yYagoKn/drp/internal/config"
	"github.com/yYagoKn/drp/internal/metrics"
	"github.com/yYagoKn/drp/internal/models"
	"github.com/yYagoKn/drp/pkg/utils"
)

// ClickLedger is the ledger write used on the click path.
type ClickLedger interface {
	SaveClick(ctx context.Context, click *models.ClickRecord) error
}

type ClickRequest struct {
	Phone       string
	Code        string
	Attribution models.Attribution
	ClientIP    string
	UserAgent   string
	Referrer    string
}

type ClickResult struct {
	Result FilterResult
	// Click is nil when the filter rejected the request.
	Click       *models.ClickRecord
	Phone       string
	Message     string
	RedirectURL string
}

func (r *ClickResult) Accepted() bool {
	return r.Result == FilterAccepted
}

type TrackerService struct {
	cfg     config.Config
	ledger  ClickLedger
	filter  *ClickFilter
	stats   *StatsService
	audit   *AuditService
	metrics *metrics.Metrics
	logger  *slog.Logger

	now            func() time.Time
	tokenGenerator func(int) string
	codeGenerator  func(int) string
}

func NewTrackerService(cfg config.Config, ledger ClickLedger, filter *ClickFilter, stats *StatsService, audit *AuditService, m *metrics.Metrics, logger *slog.Logger) *TrackerService {
	return &TrackerService{
		cfg:            cfg,
		ledger:         ledger,
		filter:         filter,
		stats:          stats,
		audit:          audit,
		metrics:        m,
		logger:         logger,
		now:            time.Now,
		tokenGenerator: utils.NewToken,
		codeGenerator: func(n int) string {
			return utils.NewCode(n, cfg.CodeAlphabet, cfg.CodePrefix)
		},
	}
}

// Track turns one ad click into a chat redirect. Only bad destination or code
// input fails; filtered clicks and ledger outages still redirect.
func (s *TrackerService) Track(ctx context.Context, req ClickRequest) (*ClickResult, error) {
	phone := ResolvePhone(req.Phone, s.cfg.TargetPhone)
	if phone == "" {
		s.metrics.Click("invalid")
		return nil, newError(KindValidation, "phone missing or invalid; send ?phone= with 10 to 15 digits or configure TARGET_PHONE", nil)
	}

	code := ""
	if req.Code != "" {
		normalized, ok := NormalizeCode(req.Code)
		if !ok {
			s.metrics.Click("invalid")
			return nil, newError(KindValidation, "code must be 3 to 40 letters, digits, '-' or '_'", nil)
		}
		code = normalized
	}

	now := s.now().UTC()
	fingerprint := ClickFingerprint(req.ClientIP, req.Attribution)
	verdict := s.filter.Evaluate(req.UserAgent, fingerprint, now)
	s.metrics.Click(string(verdict))

	if verdict != FilterAccepted {
		s.logger.Debug("Click filtered", "result", verdict, "client_ip", req.ClientIP)
		s.audit.LogAction("", models.ActionClickRejected, "", map[string]string{
			"reason":     string(verdict),
			"user_agent": req.UserAgent,
		}, req.ClientIP)

		return &ClickResult{
			Result:      verdict,
			Phone:       phone,
			Message:     s.cfg.GenericMessage,
			RedirectURL: ComposeURL(s.cfg.WAComposeURL, phone, s.cfg.GenericMessage),
		}, nil
	}

	if code == "" {
		code = s.codeGenerator(s.cfg.CodeLength)
	}
	click := &models.ClickRecord{
		Token:       s.tokenGenerator(s.cfg.TokenLength),
		Code:        code,
		Attribution: req.Attribution,
		Phone:       phone,
		ClientIP:    req.ClientIP,
		UserAgent:   req.UserAgent,
		CreatedAt:   now,
	}

	if err := s.ledger.SaveClick(ctx, click); err != nil {
		// the visitor can still complete the flow, only attribution is lost
		s.logger.Error("Failed to store click", "token", click.Token, "error", err)
	}

	s.stats.RecordClickAsync(models.ClickEvent{
		Token:       click.Token,
		Code:        click.Code,
		Attribution: click.Attribution,
		Timestamp:   now,
		IPAddress:   req.ClientIP,
		UserAgent:   req.UserAgent,
		Referrer:    req.Referrer,
	})
	s.audit.LogAction("", models.ActionClickAccepted, click.Token, map[string]string{
		"code":       click.Code,
		"utm_source": models.Value(click.Source),
	}, req.ClientIP)

	message := RenderClickMessage(s.cfg.DefaultMessage, click.Code, click.Token)
	return &ClickResult{
		Result:      FilterAccepted,
		Click:       click,
		Phone:       phone,
		Message:     message,
		RedirectURL: ComposeURL(s.cfg.WAComposeURL, phone, message),
	}, nil
}
