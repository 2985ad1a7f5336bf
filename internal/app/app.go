// Package app assembles the engine from configuration. Both entry points
// (the HTTP server and the Lambda function) build the same App.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/yYagoKn/drp/internal/config"
	"github.com/yYagoKn/drp/internal/handlers"
	"github.com/yYagoKn/drp/internal/integrations/events"
	"github.com/yYagoKn/drp/internal/integrations/leadlovers"
	"github.com/yYagoKn/drp/internal/integrations/paramstore"
	"github.com/yYagoKn/drp/internal/integrations/sheets"
	"github.com/yYagoKn/drp/internal/integrations/whatsapp"
	"github.com/yYagoKn/drp/internal/metrics"
	"github.com/yYagoKn/drp/internal/repository"
	"github.com/yYagoKn/drp/internal/services"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const limiterCleanupInterval = 10 * time.Minute

type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Router     *gin.Engine
	Dispatcher *services.Dispatcher

	db          *gorm.DB
	audit       *services.AuditService
	stats       *services.StatsService
	geoIP       *services.GeoIPService
	rateLimiter *services.IPRateLimiter

	closers []io.Closer
	workers sync.WaitGroup
}

// ResolveSecrets replaces ssm: references in cfg through Parameter Store.
func ResolveSecrets(ctx context.Context, cfg *config.Config) error {
	if !cfg.HasSecretRefs() {
		return nil
	}
	client, err := paramstore.NewFromEnv(ctx)
	if err != nil {
		return err
	}
	return cfg.ResolveSecrets(ctx, client)
}

// New opens every backing service and wires the HTTP router. Callers own the
// returned App and must Close it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	db, err := repository.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB)
	}
	if err := repository.Migrate(db, cfg.DatabaseURL, ""); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s ledger: %w", cfg.LedgerBackend, err)
	}
	ledger := repository.NewLedger(store, cfg.TTL())

	m := metrics.New()

	a.geoIP = services.NewGeoIPService(logger)
	a.geoIP.Open(cfg.GeoIPDBPath)
	a.closers = append(a.closers, a.geoIP)

	a.audit = services.NewAuditService(db, logger)
	a.stats = services.NewStatsService(db, logger, a.geoIP)

	filter := services.NewClickFilter(cfg.BotSignatures, cfg.DebounceWindow)
	tracker := services.NewTrackerService(cfg, ledger, filter, a.stats, a.audit, m, logger)
	engine := services.NewEngine(ledger, services.Replies{GroupLink: cfg.GroupLink}, cfg.MaxNameLength, a.audit, m, logger)

	sinks, err := a.sinks(db)
	if err != nil {
		return err
	}
	messenger, err := a.messenger()
	if err != nil {
		return err
	}
	a.Dispatcher = services.NewDispatcher(messenger, sinks, services.DispatcherConfig{
		Workers:   cfg.DispatchWorkers,
		QueueSize: cfg.DispatchQueueSize,
		Timeout:   cfg.DispatchTimeout,
	}, m, logger)

	a.rateLimiter = services.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, logger)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handlers.NewHandler(cfg, logger, tracker, engine, a.Dispatcher, m)
	a.Router = h.SetupRouter(a.rateLimiter)
	return nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	cfg := a.Config
	switch cfg.LedgerBackend {
	case "", "memory":
		store := repository.NewMemoryStore()
		a.closers = append(a.closers, store)
		return store, nil

	case "redis":
		rdb, err := repository.InitRedis(cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		store := repository.NewRedisStore(rdb)
		a.closers = append(a.closers, store)
		return store, nil

	case "postgres":
		pool, err := repository.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closerFunc(func() error {
			pool.Close()
			return nil
		}))
		store := repository.NewPostgresStore(pool)
		if err := store.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("failed to create ledger table: %w", err)
		}
		return store, nil

	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return repository.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
}

// sinks lists the lead destinations. The local archive is always on; the
// rest depend on configuration.
func (a *App) sinks(db *gorm.DB) ([]services.LeadSink, error) {
	cfg := a.Config
	sinks := []services.LeadSink{services.NewLeadArchive(db)}

	if cfg.SheetsWebhookURL != "" {
		s, err := sheets.New(cfg.SheetsWebhookURL, cfg.SheetsSecret, cfg.SheetsDocName, cfg.SheetsTabName)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.LeadloversURL != "" {
		s, err := leadlovers.New(cfg.LeadloversURL, cfg.LeadloversToken)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(cfg.KafkaBrokers) > 0 {
		s, err := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		sinks = append(sinks, s)
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	a.Logger.Info("Lead sinks configured", "sinks", names)
	return sinks, nil
}

func (a *App) messenger() (services.Messenger, error) {
	cfg := a.Config
	if cfg.PhoneNumberID == "" || cfg.WhatsAppToken == "" {
		a.Logger.Warn("WhatsApp credentials missing, replies will only be logged")
		return services.LogMessenger{Logger: a.Logger}, nil
	}
	return whatsapp.NewClient(cfg.PhoneNumberID, cfg.WhatsAppToken, whatsapp.WithBaseURL(cfg.WAAPIBaseURL))
}

// Start launches the background workers. They stop when ctx is done; Wait
// blocks until they have drained.
func (a *App) Start(ctx context.Context) {
	a.goWorker(func() { a.audit.Start(ctx) })
	a.goWorker(func() { a.stats.Start(ctx) })
	a.goWorker(func() { a.Dispatcher.Start(ctx) })
	a.rateLimiter.StartCleanup(ctx, limiterCleanupInterval)
}

func (a *App) goWorker(fn func()) {
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		fn()
	}()
}

// Flush drains the delivery queue first, then the audit and click workers it
// may still feed. Errors from each worker are joined.
func (a *App) Flush(ctx context.Context) error {
	return errors.Join(
		a.Dispatcher.Flush(ctx),
		a.audit.Flush(ctx),
		a.stats.Flush(ctx),
	)
}

func (a *App) Wait() {
	a.workers.Wait()
}

// Close releases stores and clients in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
