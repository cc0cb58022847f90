package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
)

// RecordingNotifier is a port.NotificationScheduler that records calls.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls []string

	// Fail makes every call return ErrInjected after recording it.
	Fail bool
}

func (n *RecordingNotifier) record(format string, args ...interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf(format, args...))
	if n.Fail {
		return ErrInjected
	}
	return nil
}

func (n *RecordingNotifier) ScheduleTaskReminder(ctx context.Context, task *entity.Task) error {
	return n.record("schedule:%s", task.ID)
}

func (n *RecordingNotifier) CancelTaskReminder(ctx context.Context, taskID string) error {
	return n.record("cancel:%s", taskID)
}

func (n *RecordingNotifier) RescheduleTaskReminder(ctx context.Context, task *entity.Task) error {
	return n.record("reschedule:%s", task.ID)
}

func (n *RecordingNotifier) ScheduleSubtaskReminders(ctx context.Context, taskID, title string, subtasks []entity.Subtask) error {
	return n.record("schedule-subtasks:%s:%d", taskID, len(subtasks))
}

func (n *RecordingNotifier) CancelAllSubtaskReminders(ctx context.Context, taskID string) error {
	return n.record("cancel-subtasks:%s", taskID)
}

// Calls returns the recorded calls in order.
func (n *RecordingNotifier) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// Reset forgets recorded calls.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	n.calls = nil
	n.mu.Unlock()
}

var _ port.NotificationScheduler = (*RecordingNotifier)(nil)

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (NopLogger) Error(msg string, keysAndValues ...interface{}) {}

// RecordingLogger keeps messages for assertions.
type RecordingLogger struct {
	mu     sync.Mutex
	Infos  []string
	Errors []string
}

func (l *RecordingLogger) Info(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	l.Infos = append(l.Infos, msg)
	l.mu.Unlock()
}

func (l *RecordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	l.Errors = append(l.Errors, msg)
	l.mu.Unlock()
}

// ErrorMessages returns a copy of the logged errors.
func (l *RecordingLogger) ErrorMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Errors...)
}
