package service

import (
	"sync"
	"time"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
)

// DefaultUndoWindow is how long an action stays undoable.
const DefaultUndoWindow = 10 * time.Second

const undoTimer = "undo:expire"

// UndoManager holds the single most recent invertible action.
// Recording replaces the previous action; the action expires after the
// window or when taken.
type UndoManager struct {
	mu        sync.Mutex
	action    *entity.UndoAction
	gen       uint64
	window    time.Duration
	scheduler port.TimerScheduler
}

// NewUndoManager creates a manager. A non-positive window uses DefaultUndoWindow.
func NewUndoManager(scheduler port.TimerScheduler, window time.Duration) *UndoManager {
	if window <= 0 {
		window = DefaultUndoWindow
	}
	return &UndoManager{window: window, scheduler: scheduler}
}

// Window returns the validity window.
func (m *UndoManager) Window() time.Duration {
	return m.window
}

// Record stores action and restarts the expiry timer.
func (m *UndoManager) Record(action *entity.UndoAction) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.action = action
	m.mu.Unlock()

	m.scheduler.Schedule(undoTimer, m.window, func() { m.expire(gen) })
}

// Take returns the current action and consumes it.
func (m *UndoManager) Take() (*entity.UndoAction, bool) {
	m.mu.Lock()
	action := m.action
	m.action = nil
	m.gen++
	m.mu.Unlock()

	if action == nil {
		return nil, false
	}
	m.scheduler.Cancel(undoTimer)
	return action, true
}

// Peek returns the current action without consuming it.
func (m *UndoManager) Peek() (*entity.UndoAction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.action, m.action != nil
}

// Clear drops the current action.
func (m *UndoManager) Clear() {
	m.mu.Lock()
	m.action = nil
	m.gen++
	m.mu.Unlock()
	m.scheduler.Cancel(undoTimer)
}

// Rekey follows a temporary task id to its permanent id.
func (m *UndoManager) Rekey(oldID, newID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.action != nil {
		m.action.Rekey(oldID, newID)
	}
}

func (m *UndoManager) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen {
		m.action = nil
	}
}
