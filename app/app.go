// Package app wires settings into a running set of stores, publishers,
// dispatchers and services. The HTTP server and the one-shot commands share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/events"
	"github.com/mmdatafocus/billing_backend/notify"
	"github.com/mmdatafocus/billing_backend/reports"
	"github.com/mmdatafocus/billing_backend/repository"
	"github.com/mmdatafocus/billing_backend/scheduler"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/mmdatafocus/billing_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	mailboxTTL   = 7 * 24 * time.Hour
	lockTTL      = 30 * time.Second
	eventsBuffer = 16
)

type App struct {
	Settings   config.Settings
	Logger     *logrus.Logger
	Clock      utils.Clock
	Redis      *redis.Client
	Bus        *events.Bus
	Repo       *repository.Repository
	Dispatcher notify.Dispatcher
	Services   *workflow.Services
	Engine     *scheduler.Engine
	Statements *reports.StatementBuilder

	closers []func()
}

func (s *App) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

// Close releases clients in reverse order of creation.
func (s *App) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func needsRedis(settings config.Settings) bool {
	return settings.StoreBackend == config.StoreBackendRedis ||
		settings.CacheEnabled ||
		settings.DistributedLock ||
		settings.RateLimitEnabled ||
		settings.RedisEventsChannel != "" ||
		settings.DispatchMode == config.DispatchModeRedis ||
		settings.DispatchMode == config.DispatchModeAsynq
}

// Build connects every configured backend. ctx bounds the connection retries.
func Build(ctx context.Context, settings config.Settings, logger *logrus.Logger) (*App, error) {
	a := &App{
		Settings: settings,
		Logger:   logger,
		Clock:    utils.SystemClock{},
		Bus:      events.NewBus(),
	}

	if needsRedis(settings) {
		client, err := config.ConnectRedisWithRetry(ctx)
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.onClose(config.CloseRedis)
	}

	store, err := a.buildStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Repo = repository.New(store, publisher, a.Clock, logger)

	dispatcher, err := a.buildDispatcher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Dispatcher = dispatcher

	a.Services = workflow.NewServices(workflow.NewCore(a.Repo, a.Clock, logger, settings.PersistTimeout))
	a.Statements = reports.NewStatementBuilder(a.Repo, a.Services, a.Clock)

	opts := scheduler.Options{
		TickInterval:    settings.TickInterval,
		WindowTolerance: settings.WindowTolerance,
		CatchUpMissed:   settings.CatchUpMissed,
		AutoSend:        settings.AutoSendEnabled,
		DispatchTimeout: settings.DispatchTimeout,
		PersistTimeout:  settings.PersistTimeout,
		PhoneRegion:     settings.DefaultPhoneRegion,
		Bus:             a.Bus,
	}
	if settings.DistributedLock {
		opts.Locker = scheduler.NewRedisLocker(config.GetRedisLock(), lockTTL)
	}
	a.Engine = scheduler.NewEngine(a.Repo, a.Dispatcher, a.Clock, logger, opts)
	return a, nil
}

func (a *App) buildStore(ctx context.Context) (repository.Store, error) {
	var store repository.Store
	switch a.Settings.StoreBackend {
	case config.StoreBackendMemory:
		store = repository.NewMemoryStore()
	case config.StoreBackendMySQL:
		db, err := config.ConnectDatabaseWithRetry(ctx)
		if err != nil {
			return nil, err
		}
		a.onClose(func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		gs := repository.NewGormStore(db)
		if a.Settings.SkipMigrations {
			a.Logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		} else if err := gs.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		store = gs
	case config.StoreBackendRedis:
		store = repository.NewRedisStore(a.Redis, "")
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", a.Settings.StoreBackend)
	}

	if a.Settings.CacheEnabled && a.Settings.StoreBackend != config.StoreBackendRedis {
		store = repository.NewCachedStore(store, a.Redis, 0, a.Logger)
	}
	return store, nil
}

func (a *App) buildPublisher(ctx context.Context) (events.Publisher, error) {
	multi := events.NewMultiPublisher(a.Logger, a.Bus)
	if a.Settings.RedisEventsChannel != "" {
		multi.Add(events.NewRedisPublisher(a.Redis, a.Settings.RedisEventsChannel))
	}
	if a.Settings.PubSubTopic != "" {
		client, err := config.GetPubSubClient(ctx)
		if err != nil {
			return nil, err
		}
		a.onClose(config.ClosePubSub)
		topic, err := config.CreateTopicIfNotExists(ctx, client, a.Settings.PubSubTopic)
		if err != nil {
			return nil, err
		}
		p := events.NewPubSubPublisher(topic)
		a.onClose(p.Stop)
		multi.Add(p)
	}
	return multi, nil
}

// buildDispatcher assembles the delivery chain: the transport picked by
// DISPATCH_MODE, bounded retries for in-process transports and an optional
// GCS archive in front.
func (a *App) buildDispatcher(ctx context.Context) (notify.Dispatcher, error) {
	s := a.Settings
	var d notify.Dispatcher
	switch s.DispatchMode {
	case config.DispatchModeLog:
		d = notify.NewLoggingSender(a.Logger)
	case config.DispatchModeSMTP:
		d = notify.NewRetryDispatcher(notify.NewSMTPSender(SMTPConfig(s), a.Logger), s.DispatchMaxAttempts, a.Logger)
		if a.Redis != nil {
			d = notify.NewCompositeSender(d, notify.NewRedisSender(a.Redis, mailboxTTL))
		}
	case config.DispatchModeRedis:
		d = notify.NewRedisSender(a.Redis, mailboxTTL)
	case config.DispatchModeAsynq:
		client := asynq.NewClient(config.AsynqRedisOpt())
		a.onClose(func() { _ = client.Close() })
		d = notify.NewAsynqDispatcher(client, s.DispatchMaxAttempts, s.DispatchTimeout, a.Logger)
	default:
		return nil, fmt.Errorf("unknown DISPATCH_MODE %q", s.DispatchMode)
	}

	if s.ArchiveBucket != "" {
		client, err := utils.GetGCSClient(ctx)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = client.Close() })
		d = notify.NewArchivingDispatcher(d, notify.NewGCSWriter(client, s.ArchiveBucket), a.Clock, a.Logger)
	}
	return d, nil
}

func SMTPConfig(s config.Settings) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:        s.SmtpHost,
		Port:        s.SmtpPort,
		Username:    s.SmtpUsername,
		Password:    s.SmtpPassword,
		FromAddress: s.SmtpFromAddress,
	}
}
