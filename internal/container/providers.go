package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/application/dispatcher"
	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/application/queue"
	"github.com/garyjia/tasksync/internal/application/retry"
	"github.com/garyjia/tasksync/internal/application/service"
	"github.com/garyjia/tasksync/internal/application/store"
	"github.com/garyjia/tasksync/internal/config"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/event"
	"github.com/garyjia/tasksync/internal/infrastructure/network"
	"github.com/garyjia/tasksync/internal/infrastructure/notification"
	"github.com/garyjia/tasksync/internal/infrastructure/persistence/repository"
	"github.com/garyjia/tasksync/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/tasksync/internal/infrastructure/remote"
	"github.com/garyjia/tasksync/internal/infrastructure/scheduler"
	"github.com/garyjia/tasksync/internal/infrastructure/worker"
	"github.com/garyjia/tasksync/pkg/database"
	"github.com/garyjia/tasksync/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Tasks      port.TaskRepository
	Approvals  port.ApprovalRepository
	History    port.HistoryRepository
	Operations port.OperationLog
	Cache      *repository.LocalCache
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Tasks  *service.TaskService
	Sync   *service.SyncService
	Roster *service.Roster
	Queue  *queue.Queue
}

// ProvideDatabase opens the local cache database and applies the embedded migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(conn, logger).RunMigrations(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories and the local cache over them.
func ProvideRepositories(db *DatabaseBundle, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil || db.Conn == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	sqlDB := db.Conn.DB
	tasks := repository.NewTaskRepository(sqlDB, logger)
	approvals := repository.NewApprovalRepository(sqlDB, logger)
	history := repository.NewHistoryRepository(sqlDB, logger)

	return &RepositoryBundle{
		Tasks:      tasks,
		Approvals:  approvals,
		History:    history,
		Operations: repository.NewOperationLogRepository(sqlDB, logger),
		Cache:      repository.NewLocalCache(tasks, approvals, history, db.TransactionMgr, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewServiceLogger(logger, "dispatcher")),
	), nil
}

// ProvideFallbackPolicy builds the remote write chain: the direct path
// bounded by sync.remote_timeout, then the family sync helper.
func ProvideFallbackPolicy(remoteStore port.RemoteStore, cfg *config.SyncConfig, logger *zap.Logger) *queue.Policy {
	return retry.NewPolicy[*entity.PendingOperation, string](
		utils.NewServiceLogger(logger, "retry"),
		retry.Strategy[*entity.PendingOperation, string]{
			Name:    "direct",
			Timeout: cfg.RemoteTimeout,
			Attempt: remote.NewDirectApplier(remoteStore).Apply,
		},
		retry.Strategy[*entity.PendingOperation, string]{
			Name:    "family_sync",
			Attempt: remote.NewFamilySyncHelper(remoteStore, cfg.FallbackTimeout, logger.Named("family-sync")).Apply,
		},
	)
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Config     *config.Config
	Repos      *RepositoryBundle
	Remote     port.RemoteStore
	Conn       port.Connectivity
	Timers     *scheduler.Scheduler
	Dispatcher dispatcher.Dispatcher
	Clock      port.Clock
	IDs        port.IDGenerator
	Logger     *zap.Logger
}

// ProvideServices creates the queue and the application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Remote == nil || deps.Conn == nil {
		return nil, fmt.Errorf("remote store and connectivity are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg := deps.Config

	owner, err := syncOwner(cfg)
	if err != nil {
		return nil, err
	}

	q := queue.New(
		deps.Repos.Operations,
		ProvideFallbackPolicy(deps.Remote, &cfg.Sync, deps.Logger),
		deps.Conn,
		deps.Clock,
		deps.Dispatcher,
		utils.NewServiceLogger(deps.Logger, "queue"),
	)

	reminders := notification.NewReminderScheduler(deps.Timers, deps.Clock, deps.Dispatcher, notification.Config{
		LeadTime:    cfg.Reminders.LeadTime,
		Throttle:    cfg.Reminders.Throttle,
		DefaultHour: cfg.Reminders.DefaultHour,
	}, deps.Logger.Named("reminders"))

	serviceLogger := utils.NewServiceLogger(deps.Logger, "tasks")
	tasks := service.NewTaskService(service.TaskServiceDeps{
		Store:      store.New(),
		Cache:      deps.Repos.Cache,
		Queue:      q,
		Approvals:  service.NewApprovalService(deps.IDs, deps.Clock, serviceLogger),
		History:    service.NewHistoryRecorder(deps.Repos.Cache, q, deps.IDs, deps.Clock, utils.NewServiceLogger(deps.Logger, "history")),
		Notifier:   reminders,
		Undo:       service.NewUndoManager(deps.Timers, cfg.Undo.Window),
		Scheduler:  deps.Timers,
		Dispatcher: deps.Dispatcher,
		Clock:      deps.Clock,
		IDs:        deps.IDs,
		Logger:     serviceLogger,
	}, cfg.Sync.ReleaseDelay)

	return &ServiceBundle{
		Tasks:  tasks,
		Sync:   service.NewSyncService(tasks, deps.Remote, owner, deps.Dispatcher, utils.NewServiceLogger(deps.Logger, "sync")),
		Roster: service.NewRoster(cfg.Roster()),
		Queue:  q,
	}, nil
}

// ProvideMonitor creates the connectivity monitor, probing the remote store
// when it can be pinged and sync.probe_interval is set.
func ProvideMonitor(cfg *config.SyncConfig, remoteStore port.RemoteStore, d dispatcher.Dispatcher, logger *zap.Logger) *network.Monitor {
	m := network.NewMonitor(cfg.StartOnline, d, logger.Named("connectivity"))
	if pinger, ok := remoteStore.(network.Pinger); ok && cfg.ProbeInterval > 0 {
		m.WithProbe(pinger, cfg.ProbeInterval)
	}
	return m
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Sync    *config.SyncConfig
	Drainer worker.Drainer
	Monitor *network.Monitor
	Logger  *zap.Logger
}

// ProvideWorkers registers the connectivity monitor and the queue drain worker.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Drainer == nil || deps.Monitor == nil {
		return nil, fmt.Errorf("drainer and monitor are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)
	manager.Register(deps.Monitor)
	manager.Register(worker.NewDrainWorker(worker.DrainWorkerConfig{
		PollInterval: deps.Sync.DrainInterval,
		DrainTimeout: deps.Sync.RemoteTimeout * 2,
	}, deps.Drainer, deps.Logger))

	return manager, nil
}

// createReminderLogHandler records fired reminders. Delivery to a device is
// handled by whatever subscribes next to it.
func createReminderLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		logger.Info("Reminder due",
			zap.String("task_id", evt.EntityID),
			zap.String("title", evt.GetPayloadString("title")))
		return nil
	}
}
