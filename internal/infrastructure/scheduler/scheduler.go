package scheduler

import (
	"strings"
	"sync"
	"time"

	"github.com/garyjia/tasksync/internal/application/port"
	"go.uber.org/zap"
)

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler runs named callbacks on wall-clock timers.
// A callback runs on its own goroutine; a panic is logged and contained.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]entry
	gen     uint64
	stopped bool
	logger  *zap.Logger
}

// New creates an empty scheduler
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[string]entry),
		logger: logger,
	}
}

// Schedule registers fn under name, replacing a pending callback of the same name.
// Scheduling after Stop is ignored.
func (s *Scheduler) Schedule(name string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Debug("Scheduler stopped, dropping timer", zap.String("name", name))
		return
	}

	if prev, ok := s.timers[name]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen
	if delay < 0 {
		delay = 0
	}
	t := time.AfterFunc(delay, func() { s.fire(name, gen, fn) })
	s.timers[name] = entry{timer: t, gen: gen}
}

func (s *Scheduler) fire(name string, gen uint64, fn func()) {
	s.mu.Lock()
	current, ok := s.timers[name]
	// a replaced or cancelled timer may still fire once if Stop raced with expiry
	if !ok || current.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, name)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Timer callback panicked", zap.String("name", name), zap.Any("panic", r))
		}
	}()
	fn()
}

// Cancel removes a pending callback and reports whether one existed
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[name]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.timers, name)
	return true
}

// CancelPrefix removes every pending callback whose name starts with prefix
func (s *Scheduler) CancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for name, e := range s.timers {
		if strings.HasPrefix(name, prefix) {
			e.timer.Stop()
			delete(s.timers, name)
			n++
		}
	}
	return n
}

// Pending reports whether a callback is registered under name
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}

// Stop cancels every pending callback and rejects new ones
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, name)
	}
	s.stopped = true
	s.logger.Info("Timer scheduler stopped")
}

// Verify interface compliance
var _ port.TimerScheduler = (*Scheduler)(nil)
