package commands

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/taskmaster/notifier/internal/adapters/email"
	"github.com/taskmaster/notifier/internal/adapters/lease"
	"github.com/taskmaster/notifier/internal/adapters/repository"
	"github.com/taskmaster/notifier/internal/application/services"
	"github.com/taskmaster/notifier/internal/application/triggers"
	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/database"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/infrastructure/metrics"
	"github.com/taskmaster/notifier/internal/ports"
)

// app holds the wired collaborators shared by the commands
type app struct {
	cfg       *config.Config
	logger    *logger.Logger
	db        *database.DB
	redis     *redis.Client
	metrics   *metrics.Metrics
	store     *repository.TodoRepositoryImpl
	feed      *repository.ChangeFeedRepositoryImpl
	processor *services.ProcessorService
	timer     *triggers.TimerTrigger
	tokens    *services.TokenService
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger = appLogger.WithFields("service", cfg.App.Name, "version", cfg.App.Version)

	db, err := database.New(cfg.Database)
	if err != nil {
		_ = appLogger.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: appLogger,
		db:     db,
		tokens: services.NewTokenService(cfg.Security),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace)
	}

	var sweepLease ports.Lease = lease.Noop{}
	if cfg.Redis.LeaseEnabled() {
		rdb, err := lease.NewClient(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
		sweepLease = lease.NewRedisLease(rdb)
	}

	a.store = repository.NewTodoRepository(db.DB, cfg.Database.PartitionKey, appLogger)
	a.feed = repository.NewChangeFeedRepository(db.DB)

	transport := email.NewTransport(cfg.Email, appLogger)
	dispatcher := services.NewDispatcherService(transport, cfg.Email, a.metrics, appLogger)
	a.processor = services.NewProcessorService(a.store, dispatcher, cfg.Scheduler, a.metrics, appLogger)
	a.timer = triggers.NewTimerTrigger(a.processor, sweepLease, cfg.Scheduler, cfg.Redis.LeaseTTL, appLogger)

	return a, nil
}

// Close releases connections in reverse order of creation
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Close()
}
