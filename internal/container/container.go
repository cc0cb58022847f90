package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/application/dispatcher"
	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/config"
	"github.com/garyjia/tasksync/internal/domain/event"
	"github.com/garyjia/tasksync/internal/infrastructure/export"
	"github.com/garyjia/tasksync/internal/infrastructure/network"
	"github.com/garyjia/tasksync/internal/infrastructure/remote"
	"github.com/garyjia/tasksync/internal/infrastructure/scheduler"
	"github.com/garyjia/tasksync/internal/infrastructure/worker"
	"github.com/garyjia/tasksync/pkg/database"
	"github.com/garyjia/tasksync/pkg/translator"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *config.Config
	opts   Options
	logger *zap.Logger

	// Infrastructure - Data
	database     *DatabaseBundle
	repositories *RepositoryBundle

	// Infrastructure - Runtime
	dispatcher dispatcher.Dispatcher
	timers     *scheduler.Scheduler
	remote     port.RemoteStore
	monitor    *network.Monitor
	exporter   *export.HistoryExporter
	translator *translator.Translator

	// Application
	services *ServiceBundle

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Online     bool                       `json:"online"`
	Pending    int                        `json:"pending_operations"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger, opts Options) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		opts:   opts.withDefaults(),
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database, repositories and the local cache
// 2. Dispatcher, timers, remote store, connectivity, exporter, translator
// 3. Operation queue and application services
// 4. Warm start from the local cache and remote subscription
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize runtime infrastructure
	if err := c.initInfrastructure(); err != nil {
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	c.logger.Info("Infrastructure initialized")

	// Step 3: Initialize application services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 4: Load the cached list and follow remote changes
	if err := c.initSync(); err != nil {
		return fmt.Errorf("failed to initialize sync: %w", err)
	}
	c.logger.Info("Task list loaded")

	// Step 5: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 5)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Stop following remote changes (reverse of step 4)
	if c.services != nil {
		c.services.Sync.Stop()
		c.logger.Info("Sync stopped")
	}

	// Step 3: Stop timers so no reminder or undo expiry fires during teardown
	if c.timers != nil {
		c.timers.Stop()
		c.logger.Info("Timers stopped")
	}

	// Step 4: Close dispatcher (reverse of step 2)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 5: Close database (reverse of step 1)
	if c.database != nil {
		if err := c.database.Conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	// Check database
	if c.database != nil {
		if err := c.database.Conn.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else if version, err := database.NewMigrator(c.database.Conn, c.logger).Version(); err != nil {
			status.Components["database"] = ComponentHealth{Healthy: true, Message: fmt.Sprintf("schema version unknown: %v", err)}
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true, Message: fmt.Sprintf("schema v%d", version)}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check workers
	if c.workers != nil {
		status.Components["workers"] = ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		}
		if !c.workers.IsRunning() {
			status.Overall = false
		}
	}

	// Connectivity is reported, an offline device is still healthy
	if c.monitor != nil {
		status.Online = c.monitor.Online()
	}

	// Check queue
	if c.services != nil {
		ops, err := c.services.Tasks.PendingOperations(ctx)
		if err != nil {
			status.Components["queue"] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
		} else {
			status.Pending = len(ops)
			status.Components["queue"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["queue"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	db, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = db

	repos, err := ProvideRepositories(db, c.logger)
	if err != nil {
		_ = db.Conn.Close()
		return err
	}

	c.repositories = repos
	return nil
}

// initInfrastructure creates the dispatcher, timers, remote store,
// connectivity monitor, exporter and translator.
func (c *Container) initInfrastructure() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp
	c.dispatcher.SubscribeNamed(event.TypeReminderDue, "reminder.log", createReminderLogHandler(c.logger))

	c.timers = scheduler.New(c.logger.Named("timers"))

	c.remote = c.opts.Remote
	if c.remote == nil {
		c.remote = remote.NewMemoryStore(c.logger.Named("remote"))
	}

	c.monitor = ProvideMonitor(&c.config.Sync, c.remote, c.dispatcher, c.logger)
	c.exporter = export.NewHistoryExporter(c.logger.Named("export"))

	tr, err := translator.New(translator.Config{
		DefaultLanguage:   c.config.I18n.DefaultLanguage,
		TranslationFolder: c.config.I18n.TranslationFolder,
	}, c.logger.Named("i18n"))
	if err != nil {
		return err
	}
	c.translator = tr
	return nil
}

// initServices initializes the queue and application services using providers.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Config:     c.config,
		Repos:      c.repositories,
		Remote:     c.remote,
		Conn:       c.monitor,
		Timers:     c.timers,
		Dispatcher: c.dispatcher,
		Clock:      c.opts.Clock,
		IDs:        c.opts.IDs,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// initSync warms the store from the local cache, then subscribes to remote
// pushes and reconciles once when online. A failed refresh is not fatal.
func (c *Container) initSync() error {
	if err := c.services.Sync.Load(c.ctx); err != nil {
		return err
	}
	if err := c.services.Sync.Start(c.ctx); err != nil {
		return err
	}
	if c.monitor.Online() {
		if _, err := c.services.Sync.Refresh(c.ctx); err != nil {
			c.logger.Warn("Initial refresh failed, continuing from cache", zap.Error(err))
		}
	}
	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	if c.opts.SkipWorkers {
		return nil
	}

	workers, err := ProvideWorkers(&WorkerDeps{
		Sync:    &c.config.Sync,
		Drainer: c.services.Tasks,
		Monitor: c.monitor,
		Logger:  c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	// Start all workers
	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.database.TransactionMgr
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Remote returns the remote task store.
func (c *Container) Remote() port.RemoteStore {
	return c.remote
}

// Connectivity returns the connectivity monitor.
func (c *Container) Connectivity() *network.Monitor {
	return c.monitor
}

// Exporter returns the history spreadsheet exporter.
func (c *Container) Exporter() *export.HistoryExporter {
	return c.exporter
}

// Translator returns the message translator.
func (c *Container) Translator() *translator.Translator {
	return c.translator
}

// Workers returns the worker manager; nil when workers were skipped.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Location returns the location client dates are parsed in.
func (c *Container) Location() *time.Location {
	return c.opts.Location
}

// IDs returns the id generator.
func (c *Container) IDs() port.IDGenerator {
	return c.opts.IDs
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
