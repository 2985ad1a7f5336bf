package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yYagoKn/drp/internal/models"
)

const (
	keyClick = "click:%s"
	keyState = "state:%s"
	keyDone  = "done:%s"
	keySeen  = "seen:%s"
)

// Ledger stores clicks, conversation state and completion markers in one Store.
// Every namespace shares the same TTL.
type Ledger struct {
	store Store
	ttl   time.Duration
}

func NewLedger(store Store, ttl time.Duration) *Ledger {
	return &Ledger{store: store, ttl: ttl}
}

func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

func (l *Ledger) SaveClick(ctx context.Context, click *models.ClickRecord) error {
	if click.Token == "" {
		return errors.New("repository: click token must not be empty")
	}
	return l.put(ctx, fmt.Sprintf(keyClick, click.Token), click)
}

// GetClick returns ErrNotFound once the click expired or was consumed.
func (l *Ledger) GetClick(ctx context.Context, token string) (*models.ClickRecord, error) {
	var click models.ClickRecord
	if err := l.get(ctx, fmt.Sprintf(keyClick, token), &click); err != nil {
		return nil, err
	}
	return &click, nil
}

func (l *Ledger) DeleteClick(ctx context.Context, token string) error {
	return l.store.Delete(ctx, fmt.Sprintf(keyClick, token))
}

func (l *Ledger) GetState(ctx context.Context, visitorID string) (*models.ConversationState, error) {
	var state models.ConversationState
	if err := l.get(ctx, fmt.Sprintf(keyState, visitorID), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (l *Ledger) SaveState(ctx context.Context, state *models.ConversationState) error {
	return l.put(ctx, fmt.Sprintf(keyState, state.VisitorID), state)
}

func (l *Ledger) ClearState(ctx context.Context, visitorID string) error {
	return l.store.Delete(ctx, fmt.Sprintf(keyState, visitorID))
}

func (l *Ledger) MarkCompleted(ctx context.Context, visitorID string, marker models.CompletionMarker) error {
	marker.Done = true
	return l.put(ctx, fmt.Sprintf(keyDone, visitorID), marker)
}

func (l *Ledger) IsCompleted(ctx context.Context, visitorID string) (bool, error) {
	var marker models.CompletionMarker
	err := l.get(ctx, fmt.Sprintf(keyDone, visitorID), &marker)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return marker.Done, nil
}

// MarkMessageSeen reports true the first time a platform message id is recorded.
func (l *Ledger) MarkMessageSeen(ctx context.Context, messageID string) (bool, error) {
	return l.store.PutIfAbsent(ctx, fmt.Sprintf(keySeen, messageID), []byte("1"), l.ttl)
}

func (l *Ledger) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("repository: encode %s: %w", key, err)
	}
	return l.store.Put(ctx, key, data, l.ttl)
}

func (l *Ledger) get(ctx context.Context, key string, v any) error {
	data, err := l.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("repository: decode %s: %w", key, err)
	}
	return nil
}
