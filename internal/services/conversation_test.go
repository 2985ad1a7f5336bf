package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yYagoKn/drp/internal/models"
	"github.com/yYagoKn/drp/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const visitor = "5511999990000"

func setupEngine(t *testing.T) (*Engine, *repository.Ledger, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := repository.NewMemoryStore(repository.WithClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })

	ledger := repository.NewLedger(store, 24*time.Hour)
	e := NewEngine(ledger, Replies{GroupLink: "https://example.com/grupo"}, 120, nil, nil, testLogger())
	e.now = clock.Now
	e.newLeadID = func() string { return "lead-1" }
	return e, ledger, clock
}

func saveIGClick(t *testing.T, ledger *repository.Ledger) {
	t.Helper()
	require.NoError(t, ledger.SaveClick(context.Background(), &models.ClickRecord{
		Token:       "Tk1ab",
		Code:        "ABCDE",
		Attribution: models.NewAttribution("ig", "", "", "", ""),
	}))
}

func TestEngine_FullExchange(t *testing.T) {
	e, ledger, _ := setupEngine(t)
	ctx := context.Background()
	saveIGClick(t, ledger)

	res, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, MessageID: "m1", Text: "meu código é #ABCDE (TID:Tk1ab)"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCodeAccepted, res.Outcome)
	assert.Equal(t, e.replies.AskName(), res.Reply)
	assert.Nil(t, res.Lead)

	state, err := ledger.GetState(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingName, state.Phase)
	assert.Equal(t, "ABCDE", state.Code)
	assert.Equal(t, "Tk1ab", state.Token)
	require.NotNil(t, state.LinkedClick)
	assert.Equal(t, "ig", models.Value(state.LinkedClick.Source))

	// snapshot taken, click consumed
	_, err = ledger.GetClick(ctx, "Tk1ab")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	res, err = e.Handle(ctx, InboundMessage{VisitorID: visitor, MessageID: "m2", Text: "Ana Souza"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	require.NotNil(t, res.Lead)
	assert.Equal(t, "lead-1", res.Lead.ID)
	assert.Equal(t, "Ana Souza", res.Lead.Name)
	assert.Equal(t, "ABCDE", res.Lead.Code)
	assert.Equal(t, visitor, res.Lead.Phone)
	assert.Equal(t, "ig", models.Value(res.Lead.Source))
	assert.Nil(t, res.Lead.Campaign)
	assert.Contains(t, res.Reply, "Nome: *Ana Souza*")
	assert.Contains(t, res.Reply, "https://example.com/grupo")
	assert.Equal(t, models.PhaseCompleted, res.State.Phase)

	done, err := ledger.IsCompleted(ctx, visitor)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = ledger.GetState(ctx, visitor)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEngine_CompletedVisitorIsAbsorbed(t *testing.T) {
	e, ledger, _ := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, ledger.MarkCompleted(ctx, visitor, models.CompletionMarker{LeadID: "lead-0"}))
	saveIGClick(t, ledger)

	for i, text := range []string{"meu código é #ABCDE (TID:Tk1ab)", "Ana Souza", "hello", ""} {
		res, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, MessageID: fmt.Sprintf("m%d", i), Text: text})
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, res.Outcome)
		assert.Empty(t, res.Reply)
		assert.Nil(t, res.Lead)
	}

	_, err := ledger.GetState(ctx, visitor)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	// the click was never touched
	_, err = ledger.GetClick(ctx, "Tk1ab")
	assert.NoError(t, err)
}

func TestEngine_HelpWithoutCode(t *testing.T) {
	e, ledger, _ := setupEngine(t)
	ctx := context.Background()

	for _, text := range []string{"hello", "", "#AB"} {
		res, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: text})
		require.NoError(t, err)
		assert.Equal(t, OutcomeHelp, res.Outcome)
		assert.Equal(t, e.replies.Help(), res.Reply)
	}

	_, err := ledger.GetState(ctx, visitor)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEngine_CodeWithoutToken(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	res, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "quero participar #abcde"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCodeAccepted, res.Outcome)
	assert.Equal(t, "ABCDE", res.State.Code)
	assert.Empty(t, res.State.Token)
	assert.Nil(t, res.State.LinkedClick)

	res, err = e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "Ana Souza"})
	require.NoError(t, err)
	require.NotNil(t, res.Lead)
	assert.Equal(t, "ABCDE", res.Lead.Code)
	assert.Nil(t, res.Lead.Source)
}

func TestEngine_ExpiredClick(t *testing.T) {
	e, ledger, clock := setupEngine(t)
	ctx := context.Background()
	saveIGClick(t, ledger)

	clock.Advance(25 * time.Hour)

	res, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "meu código é #ABCDE (TID:Tk1ab)"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCodeAccepted, res.Outcome)
	assert.Nil(t, res.State.LinkedClick)

	res, err = e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "Ana Souza"})
	require.NoError(t, err)
	require.NotNil(t, res.Lead)
	assert.Nil(t, res.Lead.Source)
	assert.Nil(t, res.Lead.Campaign)
	assert.Nil(t, res.Lead.Medium)
	assert.Nil(t, res.Lead.Content)
	assert.Nil(t, res.Lead.Term)
}

func TestEngine_SnapshotSurvivesClickExpiry(t *testing.T) {
	e, ledger, clock := setupEngine(t)
	ctx := context.Background()
	saveIGClick(t, ledger)

	_, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "#ABCDE (TID:Tk1ab)"})
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	res, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "Ana Souza"})
	require.NoError(t, err)
	require.NotNil(t, res.Lead)
	assert.Equal(t, "ig", models.Value(res.Lead.Source))
}

func TestEngine_NameIsCapped(t *testing.T) {
	e, _, _ := setupEngine(t)
	e.maxNameLength = 10
	ctx := context.Background()

	_, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "#ABCDE"})
	require.NoError(t, err)

	res, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "  " + strings.Repeat("Maria ", 10)})
	require.NoError(t, err)
	require.NotNil(t, res.Lead)
	assert.Equal(t, "Maria Mari", res.Lead.Name)
}

func TestEngine_EmptyTextWhileAwaitingName(t *testing.T) {
	e, ledger, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "#ABCDE"})
	require.NoError(t, err)

	// a sticker or image carries no text: help, state kept
	res, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "   "})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHelp, res.Outcome)

	state, err := ledger.GetState(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingName, state.Phase)
}

func TestEngine_DuplicateDelivery(t *testing.T) {
	e, ledger, _ := setupEngine(t)
	ctx := context.Background()
	saveIGClick(t, ledger)

	msg := InboundMessage{VisitorID: visitor, MessageID: "wamid.1", Text: "#ABCDE (TID:Tk1ab)"}
	res, err := e.Handle(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCodeAccepted, res.Outcome)

	res, err = e.Handle(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Empty(t, res.Reply)

	// the redelivered first message did not overwrite the snapshot
	state, err := ledger.GetState(ctx, visitor)
	require.NoError(t, err)
	require.NotNil(t, state.LinkedClick)
}

func TestEngine_MissingVisitor(t *testing.T) {
	e, _, _ := setupEngine(t)
	res, err := e.Handle(context.Background(), InboundMessage{Text: "#ABCDE"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestEngine_ConcurrentSameVisitorYieldsOneLead(t *testing.T) {
	e, ledger, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, Text: "#ABCDE"})
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		leads int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Handle(ctx, InboundMessage{VisitorID: visitor, MessageID: fmt.Sprintf("n%d", i), Text: "Ana Souza"})
			assert.NoError(t, err)
			if res.Lead != nil {
				mu.Lock()
				leads++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, leads)
	done, err := ledger.IsCompleted(ctx, visitor)
	require.NoError(t, err)
	assert.True(t, done)
}

// flakyLedger fails selected operations and delegates the rest.
type flakyLedger struct {
	*repository.Ledger
	failGetClick  bool
	failGetState  bool
	failSaveState bool
	failDone      bool
	failSeen      bool
}

var errStoreDown = errors.New("store unavailable")

func (f *flakyLedger) GetClick(ctx context.Context, token string) (*models.ClickRecord, error) {
	if f.failGetClick {
		return nil, errStoreDown
	}
	return f.Ledger.GetClick(ctx, token)
}

func (f *flakyLedger) GetState(ctx context.Context, id string) (*models.ConversationState, error) {
	if f.failGetState {
		return nil, errStoreDown
	}
	return f.Ledger.GetState(ctx, id)
}

func (f *flakyLedger) SaveState(ctx context.Context, s *models.ConversationState) error {
	if f.failSaveState {
		return errStoreDown
	}
	return f.Ledger.SaveState(ctx, s)
}

func (f *flakyLedger) IsCompleted(ctx context.Context, id string) (bool, error) {
	if f.failDone {
		return false, errStoreDown
	}
	return f.Ledger.IsCompleted(ctx, id)
}

func (f *flakyLedger) MarkMessageSeen(ctx context.Context, id string) (bool, error) {
	if f.failSeen {
		return false, errStoreDown
	}
	return f.Ledger.MarkMessageSeen(ctx, id)
}

func TestEngine_LedgerFailures(t *testing.T) {
	t.Run("Click lookup failure loses attribution only", func(t *testing.T) {
		e, ledger, _ := setupEngine(t)
		saveIGClick(t, ledger)
		e.ledger = &flakyLedger{Ledger: ledger, failGetClick: true, failSeen: true, failDone: true}

		res, err := e.Handle(context.Background(), InboundMessage{VisitorID: visitor, MessageID: "m1", Text: "#ABCDE (TID:Tk1ab)"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeCodeAccepted, res.Outcome)
		assert.Nil(t, res.State.LinkedClick)
	})

	t.Run("State lookup failure is treated as absent", func(t *testing.T) {
		e, ledger, _ := setupEngine(t)
		e.ledger = &flakyLedger{Ledger: ledger, failGetState: true}

		res, err := e.Handle(context.Background(), InboundMessage{VisitorID: visitor, Text: "Ana Souza"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeHelp, res.Outcome)
	})

	t.Run("State write failure is a collaborator error", func(t *testing.T) {
		e, ledger, _ := setupEngine(t)
		e.ledger = &flakyLedger{Ledger: ledger, failSaveState: true}

		res, err := e.Handle(context.Background(), InboundMessage{VisitorID: visitor, Text: "#ABCDE"})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindCollaborator))
		assert.ErrorIs(t, err, errStoreDown)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Empty(t, res.Reply)
	})
}

func TestEngine_WritesAuditTrail(t *testing.T) {
	db := setupTestDB(t)
	e, ledger, _ := setupEngine(t)
	e.audit = NewAuditService(db, testLogger())
	saveIGClick(t, ledger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.audit.Start(ctx)

	_, err := e.Handle(context.Background(), InboundMessage{VisitorID: visitor, Text: "#ABCDE (TID:Tk1ab)"})
	require.NoError(t, err)
	_, err = e.Handle(context.Background(), InboundMessage{VisitorID: visitor, Text: "Ana Souza"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&models.AuditLog{}).Where("visitor_id = ?", visitor).Count(&count)
		return count == 2
	}, time.Second, 10*time.Millisecond)

	var completed models.AuditLog
	require.NoError(t, db.Where("action = ?", models.ActionLeadCompleted).First(&completed).Error)
	assert.Equal(t, "lead-1", completed.EntityID)
}
