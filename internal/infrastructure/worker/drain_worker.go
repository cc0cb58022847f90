package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/tasksync/internal/application/queue"
	"go.uber.org/zap"
)

// Drainer replays queued operations against the remote store
type Drainer interface {
	Drain(ctx context.Context) (queue.DrainReport, error)
}

// DrainWorkerConfig holds configuration for the drain worker
type DrainWorkerConfig struct {
	PollInterval time.Duration
	DrainTimeout time.Duration
}

// DefaultDrainWorkerConfig returns default configuration
func DefaultDrainWorkerConfig() DrainWorkerConfig {
	return DrainWorkerConfig{
		PollInterval: 30 * time.Second,
		DrainTimeout: 20 * time.Second,
	}
}

// DrainWorker periodically drains the offline operation queue so writes
// queued while the remote store was unreachable eventually land.
type DrainWorker struct {
	config  DrainWorkerConfig
	drainer Drainer
	logger  *zap.Logger

	mu         sync.RWMutex
	cancel     context.CancelFunc
	done       chan struct{}
	isRunning  bool
	lastDrain  time.Time
	lastReport queue.DrainReport
	lastError  error
	passes     int
	confirmed  int
}

// NewDrainWorker creates a new drain worker
func NewDrainWorker(config DrainWorkerConfig, drainer Drainer, logger *zap.Logger) *DrainWorker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultDrainWorkerConfig().PollInterval
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainWorkerConfig().DrainTimeout
	}
	return &DrainWorker{
		config:  config,
		drainer: drainer,
		logger:  logger,
	}
}

// Start begins the worker polling loop
func (w *DrainWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("drain worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("DrainWorker started", zap.Duration("poll_interval", w.config.PollInterval))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop gracefully terminates the worker and waits for an in-flight pass
func (w *DrainWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	w.logger.Info("DrainWorker stopped",
		zap.Int("passes", w.passes),
		zap.Int("confirmed", w.confirmed))
	w.mu.RUnlock()
	return nil
}

// Name returns the worker name for identification
func (w *DrainWorker) Name() string {
	return "DrainWorker"
}

func (w *DrainWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Drain loop context cancelled")
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one drain pass with the configured timeout
func (w *DrainWorker) RunOnce(ctx context.Context) (queue.DrainReport, error) {
	drainCtx, cancel := context.WithTimeout(ctx, w.config.DrainTimeout)
	defer cancel()

	report, err := w.drainer.Drain(drainCtx)

	w.mu.Lock()
	w.passes++
	w.lastDrain = time.Now()
	w.lastReport = report
	w.lastError = err
	w.confirmed += report.Confirmed
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Queue drain failed", zap.Error(err))
		return report, err
	}
	if report.Attempted > 0 {
		w.logger.Info("Queue drained",
			zap.Int("attempted", report.Attempted),
			zap.Int("confirmed", report.Confirmed),
			zap.Int("failed", report.Failed),
			zap.Int("blocked", report.Blocked),
			zap.Int("remaining", report.Remaining))
	}
	return report, nil
}

// Status implements StatusReporter
func (w *DrainWorker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	details := map[string]interface{}{
		"passes":    w.passes,
		"confirmed": w.confirmed,
		"remaining": w.lastReport.Remaining,
	}
	if !w.lastDrain.IsZero() {
		details["last_drain"] = w.lastDrain
	}
	if w.lastError != nil {
		details["last_error"] = w.lastError.Error()
	}
	return Status{Name: w.Name(), Running: w.isRunning, Details: details}
}
