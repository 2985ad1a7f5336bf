package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yYagoKn/drp/internal/metrics"
	"github.com/yYagoKn/drp/internal/models"
)

// LeadSink receives completed leads. Each sink is attempted once per lead.
type LeadSink interface {
	Name() string
	Deliver(ctx context.Context, lead models.LeadRecord) error
}

// Messenger sends a text message to a visitor.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
}

const replyJob = "reply"

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type dispatchJob struct {
	name string
	run  func(ctx context.Context) error
}

// Dispatcher fans leads and replies out to a worker pool. Enqueueing never
// blocks: a full queue drops the job. Nothing is retried.
type Dispatcher struct {
	sinks     []LeadSink
	messenger Messenger
	jobs      chan dispatchJob
	workers   int
	timeout   time.Duration
	pending   atomic.Int64
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewDispatcher(messenger Messenger, sinks []LeadSink, cfg DispatcherConfig, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:     sinks,
		messenger: messenger,
		jobs:      make(chan dispatchJob, cfg.QueueSize),
		workers:   cfg.Workers,
		timeout:   cfg.Timeout,
		metrics:   m,
		logger:    logger,
	}
}

// Start runs the workers until ctx is done, then drains what is queued.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Dispatcher starting", "workers", d.workers, "sinks", len(d.sinks))

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()

	d.logger.Info("Dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case job := <-d.jobs:
			d.run(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-d.jobs:
					d.run(job)
				default:
					return
				}
			}
		}
	}
}

// DeliverLead queues one independent job per sink.
func (d *Dispatcher) DeliverLead(lead models.LeadRecord) {
	for _, sink := range d.sinks {
		sink := sink // per-iteration copy; module targets go 1.21 loop semantics
		d.enqueue(dispatchJob{
			name: sink.Name(),
			run: func(ctx context.Context) error {
				return sink.Deliver(ctx, lead)
			},
		})
	}
}

func (d *Dispatcher) SendReply(to, body string) {
	if d.messenger == nil || body == "" {
		return
	}
	d.enqueue(dispatchJob{
		name: replyJob,
		run: func(ctx context.Context) error {
			return d.messenger.SendText(ctx, to, body)
		},
	})
}

// Flush waits until every queued job has finished or ctx is done.
func (d *Dispatcher) Flush(ctx context.Context) error {
	return waitIdle(ctx, "dispatcher", &d.pending)
}

// waitIdle polls a worker's pending counter until it reaches zero.
func waitIdle(ctx context.Context, worker string, pending *atomic.Int64) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s flush: %d jobs pending: %w", worker, pending.Load(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (d *Dispatcher) Pending() int64 {
	return d.pending.Load()
}

func (d *Dispatcher) enqueue(job dispatchJob) {
	d.pending.Add(1)
	select {
	case d.jobs <- job:
	default:
		d.pending.Add(-1)
		d.metrics.Delivery(job.name, "dropped", 0)
		d.logger.Warn("Dispatch queue full, dropping job", "job", job.name)
	}
}

func (d *Dispatcher) run(job dispatchJob) {
	defer d.pending.Add(-1)

	// detached from the worker context so shutdown still lets in-flight jobs finish
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	err := safeRun(ctx, job.run)
	took := time.Since(start)

	if err != nil {
		d.metrics.Delivery(job.name, "error", took)
		d.logger.Error("Dispatch failed", "job", job.name, "error", err, "took", took)
		return
	}
	d.metrics.Delivery(job.name, "ok", took)
	d.logger.Debug("Dispatch succeeded", "job", job.name, "took", took)
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// LogMessenger stands in for the chat API when it isn't configured.
type LogMessenger struct {
	Logger *slog.Logger
}

func (m LogMessenger) SendText(_ context.Context, to, body string) error {
	m.Logger.Info("Reply not sent, messaging API not configured", "to", to, "chars", len(body))
	return nil
}
