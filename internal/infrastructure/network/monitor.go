package network

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/tasksync/internal/application/dispatcher"
	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/event"
	"go.uber.org/zap"
)

// Pinger checks whether the remote store answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor tracks connectivity to the remote store and announces transitions
// with connectivity.changed. Handlers run synchronously on the goroutine that
// observed the change.
type Monitor struct {
	online     atomic.Bool
	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger

	// probing
	pinger   Pinger
	interval time.Duration

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMonitor creates a monitor in the given initial state
func NewMonitor(online bool, d dispatcher.Dispatcher, logger *zap.Logger) *Monitor {
	m := &Monitor{
		dispatcher: d,
		logger:     logger,
	}
	m.online.Store(online)
	return m
}

// WithProbe makes Start poll pinger every interval
func (m *Monitor) WithProbe(pinger Pinger, interval time.Duration) *Monitor {
	m.pinger = pinger
	m.interval = interval
	return m
}

// Online reports the last known state
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Set records a new state and dispatches connectivity.changed when it differs
// from the previous one. Handler failures are returned but the state sticks.
func (m *Monitor) Set(ctx context.Context, online bool) error {
	if m.online.Swap(online) == online {
		return nil
	}

	m.logger.Info("Connectivity changed", zap.Bool("online", online))
	evt := event.NewEvent(event.TypeConnectivityChanged, "", map[string]interface{}{"online": online})
	if err := m.dispatcher.Dispatch(ctx, evt); err != nil {
		m.logger.Error("Connectivity handlers failed", zap.Bool("online", online), zap.Error(err))
		return err
	}
	return nil
}

// Start begins probing when a pinger is configured
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		return fmt.Errorf("connectivity monitor already running")
	}
	if m.pinger == nil || m.interval <= 0 {
		return nil
	}

	probeCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.isRunning = true

	go m.probeLoop(probeCtx, m.done)
	m.logger.Info("Connectivity probe started", zap.Duration("interval", m.interval))
	return nil
}

// Stop ends probing and waits for the loop to exit
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Name returns the worker name for identification
func (m *Monitor) Name() string {
	return "ConnectivityMonitor"
}

func (m *Monitor) probeLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe pings once and records the outcome
func (m *Monitor) Probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, m.probeTimeout())
	err := m.pinger.Ping(pingCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Debug("Remote ping failed", zap.Error(err))
	}
	_ = m.Set(ctx, err == nil)
}

func (m *Monitor) probeTimeout() time.Duration {
	if m.interval > 0 && m.interval < 5*time.Second {
		return m.interval
	}
	return 5 * time.Second
}

// Verify interface compliance
var _ port.Connectivity = (*Monitor)(nil)
