package port

import (
	"context"
	"time"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

// LocalCache is the device-local durable store the orchestrator writes through.
// It holds only actionable tasks; writes are per key with no multi-key atomicity.
type LocalCache interface {
	SaveTask(ctx context.Context, task *entity.Task) error
	GetTasks(ctx context.Context) ([]*entity.Task, error)
	ReplaceTasks(ctx context.Context, tasks []*entity.Task) error
	RemoveFromCache(ctx context.Context, kind, id string) error

	SaveApproval(ctx context.Context, approval *entity.TaskApproval) error
	GetApprovals(ctx context.Context) ([]*entity.TaskApproval, error)
	ReplaceApprovals(ctx context.Context, approvals []*entity.TaskApproval) error

	SaveHistoryItem(ctx context.Context, entry *entity.HistoryEntry) error
	GetHistory(ctx context.Context, limit int) ([]*entity.HistoryEntry, error)

	// RekeyTask moves every cached reference of oldID to newID
	RekeyTask(ctx context.Context, oldID, newID string) error
}

// TaskFilter selects the tasks one member can see: the family's tasks plus
// the member's personal ones.
type TaskFilter struct {
	FamilyID string
	UserID   string
}

// Matches reports whether task falls inside the filter scope
func (f TaskFilter) Matches(task *entity.Task) bool {
	if task.IsShared() {
		return *task.FamilyID == f.FamilyID
	}
	return task.CreatedBy == f.UserID
}

// Snapshot is a remote push of the current state inside a filter scope
type Snapshot struct {
	Tasks     []*entity.Task
	Approvals []*entity.TaskApproval
}

// RemoteStore is the remote source of truth
type RemoteStore interface {
	// SaveTask upserts task and returns its permanent id, which differs from
	// task.ID when the task carried a temporary id
	SaveTask(ctx context.Context, task *entity.Task) (string, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]*entity.Task, error)

	SaveApproval(ctx context.Context, approval *entity.TaskApproval) error
	DeleteApproval(ctx context.Context, id string) error
	ListApprovals(ctx context.Context, familyID string) ([]*entity.TaskApproval, error)

	AppendHistory(ctx context.Context, entry *entity.HistoryEntry) error

	// OnChange registers fn for pushes inside filter and returns an unsubscribe function
	OnChange(filter TaskFilter, fn func(Snapshot)) func()
}

// OperationApplier applies one queued operation to the remote side.
// The returned id is the permanent id of a created task, or the entity id otherwise.
type OperationApplier interface {
	Apply(ctx context.Context, op *entity.PendingOperation) (string, error)
}

// NotificationScheduler schedules local reminders. Failures are best effort.
type NotificationScheduler interface {
	ScheduleTaskReminder(ctx context.Context, task *entity.Task) error
	CancelTaskReminder(ctx context.Context, taskID string) error
	RescheduleTaskReminder(ctx context.Context, task *entity.Task) error
	ScheduleSubtaskReminders(ctx context.Context, taskID, title string, subtasks []entity.Subtask) error
	CancelAllSubtaskReminders(ctx context.Context, taskID string) error
}

// HistorySink records audit entries on behalf of actor
type HistorySink interface {
	Append(ctx context.Context, actor *entity.Member, action, taskTitle, taskID, details string) error
}

// TimerScheduler runs named, cancellable callbacks after a delay.
// Scheduling a name that is already pending replaces the earlier callback.
type TimerScheduler interface {
	Schedule(name string, delay time.Duration, fn func())
	Cancel(name string) bool
	CancelPrefix(prefix string) int
	Pending(name string) bool
	Stop()
}

// Clock abstracts the wall clock
type Clock interface {
	Now() time.Time
}

// IDGenerator mints ids for new records
type IDGenerator interface {
	NewID() string
}

// Connectivity reports whether the remote store is reachable
type Connectivity interface {
	Online() bool
}
