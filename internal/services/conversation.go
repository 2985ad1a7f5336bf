package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yYagoKn/drp/internal/metrics"
	"github.com/yYagoKn/drp/internal/models"
	"github.com/yYagoKn/drp/internal/repository"

	"github.com/google/uuid"
)

// ConversationLedger is the ledger surface the engine reads and writes.
type ConversationLedger interface {
	GetClick(ctx context.Context, token string) (*models.ClickRecord, error)
	DeleteClick(ctx context.Context, token string) error
	GetState(ctx context.Context, visitorID string) (*models.ConversationState, error)
	SaveState(ctx context.Context, state *models.ConversationState) error
	ClearState(ctx context.Context, visitorID string) error
	MarkCompleted(ctx context.Context, visitorID string, marker models.CompletionMarker) error
	IsCompleted(ctx context.Context, visitorID string) (bool, error)
	MarkMessageSeen(ctx context.Context, messageID string) (bool, error)
}

type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeCodeAccepted Outcome = "code_accepted"
	OutcomeCompleted    Outcome = "completed"
	OutcomeHelp         Outcome = "help"
	OutcomeFailed       Outcome = "failed"
)

type InboundMessage struct {
	VisitorID string
	MessageID string
	Text      string
}

// Result tells the caller what to send back and what to deliver.
// Reply is empty when nothing should be sent.
type Result struct {
	Outcome Outcome
	Reply   string
	Lead    *models.LeadRecord
	State   *models.ConversationState
}

// Engine runs the per-visitor exchange: code, then name, then done.
type Engine struct {
	ledger        ConversationLedger
	locks         *KeyedMutex
	replies       Replies
	maxNameLength int
	audit         *AuditService
	metrics       *metrics.Metrics
	logger        *slog.Logger

	now       func() time.Time
	newLeadID func() string
}

func NewEngine(ledger ConversationLedger, replies Replies, maxNameLength int, audit *AuditService, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		ledger:        ledger,
		locks:         NewKeyedMutex(),
		replies:       replies,
		maxNameLength: maxNameLength,
		audit:         audit,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
		newLeadID:     uuid.NewString,
	}
}

// Handle processes one inbound message. Messages for the same visitor are
// serialized; different visitors run concurrently. The returned error is
// always a collaborator failure and never reaches the visitor.
func (e *Engine) Handle(ctx context.Context, msg InboundMessage) (Result, error) {
	res, err := e.handle(ctx, msg)
	e.metrics.Message(string(res.Outcome))
	return res, err
}

func (e *Engine) handle(ctx context.Context, msg InboundMessage) (Result, error) {
	if msg.VisitorID == "" {
		return Result{Outcome: OutcomeIgnored}, nil
	}

	unlock := e.locks.Lock(msg.VisitorID)
	defer unlock()

	log := e.logger.With("visitor_id", msg.VisitorID, "message_id", msg.MessageID)

	if msg.MessageID != "" {
		first, err := e.ledger.MarkMessageSeen(ctx, msg.MessageID)
		if err != nil {
			log.Warn("Message dedup unavailable, processing anyway", "error", err)
		} else if !first {
			log.Debug("Duplicate delivery dropped")
			return Result{Outcome: OutcomeDuplicate}, nil
		}
	}

	done, err := e.ledger.IsCompleted(ctx, msg.VisitorID)
	if err != nil {
		log.Warn("Completion lookup failed, treating as not completed", "error", err)
	}
	if done {
		return Result{Outcome: OutcomeIgnored}, nil
	}

	state, err := e.ledger.GetState(ctx, msg.VisitorID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn("State lookup failed, treating as absent", "error", err)
		}
		state = nil
	}

	text := msg.Text
	if state != nil && state.Phase == models.PhaseAwaitingName {
		if name := CapName(text, e.maxNameLength); name != "" {
			return e.complete(ctx, log, state, name), nil
		}
	}

	parsed := ParseMessage(text)
	if parsed.HasCode() {
		return e.acceptCode(ctx, log, msg.VisitorID, parsed)
	}

	e.audit.LogAction(msg.VisitorID, models.ActionHelpSent, "", nil, "")
	return Result{Outcome: OutcomeHelp, Reply: e.replies.Help()}, nil
}

func (e *Engine) acceptCode(ctx context.Context, log *slog.Logger, visitorID string, parsed ParsedMessage) (Result, error) {
	var click *models.ClickRecord
	if parsed.Token != "" {
		c, err := e.ledger.GetClick(ctx, parsed.Token)
		switch {
		case err == nil:
			click = c
		case errors.Is(err, repository.ErrNotFound):
			log.Info("Click not found or expired", "token", parsed.Token)
		default:
			log.Warn("Click lookup failed, continuing without attribution", "token", parsed.Token, "error", err)
		}
	}

	preferred := ""
	if click != nil {
		preferred = click.Code
	}
	code := parsed.Resolve(preferred)
	if click != nil && click.Code != code {
		log.Info("Code differs from the clicked link", "code", code, "click_code", click.Code)
	}

	state := &models.ConversationState{
		VisitorID:   visitorID,
		Phase:       models.PhaseAwaitingName,
		Code:        code,
		Token:       parsed.Token,
		LinkedClick: click,
		UpdatedAt:   e.now().UTC(),
	}
	if err := e.ledger.SaveState(ctx, state); err != nil {
		return Result{Outcome: OutcomeFailed}, newError(KindCollaborator, "save conversation state", err)
	}

	// consumed: a replayed code+token can't produce a second lead
	if click != nil {
		if err := e.ledger.DeleteClick(ctx, click.Token); err != nil {
			log.Warn("Failed to consume click", "token", click.Token, "error", err)
		}
	}

	e.audit.LogAction(visitorID, models.ActionCodeAccepted, code, map[string]any{
		"token":      parsed.Token,
		"attributed": click != nil,
	}, "")

	return Result{Outcome: OutcomeCodeAccepted, Reply: e.replies.AskName(), State: state}, nil
}

func (e *Engine) complete(ctx context.Context, log *slog.Logger, state *models.ConversationState, name string) Result {
	now := e.now().UTC()
	lead := models.NewLeadRecord(e.newLeadID(), state, name, now)

	// marker first: once it exists every later message is absorbed
	if err := e.ledger.MarkCompleted(ctx, state.VisitorID, models.CompletionMarker{LeadID: lead.ID, CompletedAt: now}); err != nil {
		log.Error("Failed to write completion marker", "lead_id", lead.ID, "error", err)
	}
	if err := e.ledger.ClearState(ctx, state.VisitorID); err != nil {
		log.Warn("Failed to clear conversation state", "error", err)
	}

	e.audit.LogAction(state.VisitorID, models.ActionLeadCompleted, lead.ID, map[string]string{
		"code":       lead.Code,
		"utm_source": models.Value(lead.Source),
	}, "")
	log.Info("Lead completed", "lead_id", lead.ID, "code", lead.Code)

	completed := *state
	completed.Phase = models.PhaseCompleted
	completed.UpdatedAt = now

	return Result{
		Outcome: OutcomeCompleted,
		Reply:   e.replies.Confirmation(lead.Name, lead.Code),
		Lead:    &lead,
		State:   &completed,
	}
}
