package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yYagoKn/drp/internal/metrics"
	"github.com/yYagoKn/drp/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name  string
	err   error
	panic bool
	block chan struct{}

	mu    sync.Mutex
	leads []models.LeadRecord
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, lead models.LeadRecord) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.panic {
		panic("sink exploded")
	}
	s.mu.Lock()
	s.leads = append(s.leads, lead)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads)
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent map[string]string
}

func (m *recordingMessenger) SendText(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[string]string{}
	}
	m.sent[to] = body
	return nil
}

func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func assertDeliveries(t *testing.T, m *metrics.Metrics, series string) {
	t.Helper()
	expected := "# HELP drp_deliveries_total Fan-out dispatches by sink and result\n" +
		"# TYPE drp_deliveries_total counter" + series
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "drp_deliveries_total"))
}

func testLead() models.LeadRecord {
	return models.LeadRecord{
		ID:          "lead-1",
		Code:        "ABCDE",
		Phone:       visitor,
		Name:        "Ana Souza",
		Attribution: models.NewAttribution("ig", "", "", "", ""),
	}
}

func TestDispatcher_DeliversToEverySink(t *testing.T) {
	sheets := &recordingSink{name: "sheets"}
	crm := &recordingSink{name: "crm"}
	m := metrics.New()
	d := NewDispatcher(nil, []LeadSink{sheets, crm}, DispatcherConfig{Workers: 2, QueueSize: 10}, m, testLogger())
	startDispatcher(t, d)

	d.DeliverLead(testLead())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))

	assert.Equal(t, 1, sheets.count())
	assert.Equal(t, 1, crm.count())
	assert.Equal(t, "Ana Souza", sheets.leads[0].Name)
	assertDeliveries(t, m, `
drp_deliveries_total{result="ok",sink="crm"} 1
drp_deliveries_total{result="ok",sink="sheets"} 1
`)
}

func TestDispatcher_FailingSinkDoesNotAffectOthers(t *testing.T) {
	broken := &recordingSink{name: "broken", err: errors.New("500 from upstream")}
	exploding := &recordingSink{name: "exploding", panic: true}
	healthy := &recordingSink{name: "healthy"}
	m := metrics.New()
	d := NewDispatcher(nil, []LeadSink{broken, exploding, healthy}, DispatcherConfig{Workers: 1, QueueSize: 10}, m, testLogger())
	startDispatcher(t, d)

	d.DeliverLead(testLead())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))

	assert.Equal(t, 1, healthy.count())
	assertDeliveries(t, m, `
drp_deliveries_total{result="error",sink="broken"} 1
drp_deliveries_total{result="error",sink="exploding"} 1
drp_deliveries_total{result="ok",sink="healthy"} 1
`)
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	sink := &recordingSink{name: "slow"}
	m := metrics.New()
	// not started: nothing drains the queue
	d := NewDispatcher(nil, []LeadSink{sink}, DispatcherConfig{Workers: 1, QueueSize: 2}, m, testLogger())

	for i := 0; i < 5; i++ {
		d.DeliverLead(testLead())
	}

	assert.Equal(t, int64(2), d.Pending())
	assertDeliveries(t, m, `
drp_deliveries_total{result="dropped",sink="slow"} 3
`)
}

func TestDispatcher_FlushTimesOut(t *testing.T) {
	block := make(chan struct{})
	sink := &recordingSink{name: "stuck", block: block}
	d := NewDispatcher(nil, []LeadSink{sink}, DispatcherConfig{Workers: 1, QueueSize: 1}, nil, testLogger())
	startDispatcher(t, d)
	defer close(block)

	d.DeliverLead(testLead())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := d.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_JobTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	sink := &recordingSink{name: "hung", block: block}
	m := metrics.New()
	d := NewDispatcher(nil, []LeadSink{sink}, DispatcherConfig{Workers: 1, QueueSize: 1, Timeout: 20 * time.Millisecond}, m, testLogger())
	startDispatcher(t, d)

	d.DeliverLead(testLead())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))
	assertDeliveries(t, m, `
drp_deliveries_total{result="error",sink="hung"} 1
`)
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{name: "archive"}
	d := NewDispatcher(nil, []LeadSink{sink}, DispatcherConfig{Workers: 1, QueueSize: 10}, nil, testLogger())

	for i := 0; i < 3; i++ {
		d.DeliverLead(testLead())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)

	assert.Equal(t, 3, sink.count())
	assert.Zero(t, d.Pending())
}

func TestDispatcher_SendReply(t *testing.T) {
	messenger := &recordingMessenger{}
	d := NewDispatcher(messenger, nil, DispatcherConfig{}, nil, testLogger())
	startDispatcher(t, d)

	d.SendReply(visitor, "olá")
	d.SendReply(visitor+"1", "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))

	messenger.mu.Lock()
	defer messenger.mu.Unlock()
	assert.Equal(t, map[string]string{visitor: "olá"}, messenger.sent)
}

func TestDispatcher_NoMessenger(t *testing.T) {
	d := NewDispatcher(nil, nil, DispatcherConfig{}, nil, testLogger())
	d.SendReply(visitor, "olá")
	assert.Zero(t, d.Pending())
}

func TestLogMessenger(t *testing.T) {
	m := LogMessenger{Logger: testLogger()}
	assert.NoError(t, m.SendText(context.Background(), visitor, "olá"))
}
