package port

import (
	"context"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

// TaskRepository defines persistence operations for the locally cached task list
type TaskRepository interface {
	// Save inserts or overwrites a task by id
	Save(ctx context.Context, task *entity.Task) error

	// GetByID returns entity.ErrTaskNotFound when the id is not cached
	GetByID(ctx context.Context, id string) (*entity.Task, error)

	// List returns every cached task ordered by creation time
	List(ctx context.Context) ([]*entity.Task, error)

	// Delete removes a task; deleting a missing id is not an error
	Delete(ctx context.Context, id string) error

	// ReplaceAll overwrites the cached list with tasks
	ReplaceAll(ctx context.Context, tasks []*entity.Task) error

	// Rekey moves a cached task from oldID to newID
	Rekey(ctx context.Context, oldID, newID string) error
}

// ApprovalRepository defines persistence operations for cached approval requests
type ApprovalRepository interface {
	Save(ctx context.Context, approval *entity.TaskApproval) error
	GetByID(ctx context.Context, id string) (*entity.TaskApproval, error)
	List(ctx context.Context) ([]*entity.TaskApproval, error)
	Delete(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, approvals []*entity.TaskApproval) error

	// RekeyTask rewrites the task reference of approvals pointing at oldTaskID
	RekeyTask(ctx context.Context, oldTaskID, newTaskID string) error
}

// HistoryRepository defines persistence operations for the audit trail
type HistoryRepository interface {
	Append(ctx context.Context, entry *entity.HistoryEntry) error

	// List returns the newest entries first; limit <= 0 means no limit
	List(ctx context.Context, limit int) ([]*entity.HistoryEntry, error)

	RekeyTask(ctx context.Context, oldTaskID, newTaskID string) error
}

// OperationLog defines the durable log behind the offline operation queue
type OperationLog interface {
	// Append stores op and assigns its sequence number
	Append(ctx context.Context, op *entity.PendingOperation) (int64, error)

	// List returns pending operations in enqueue order
	List(ctx context.Context) ([]*entity.PendingOperation, error)

	// ListByEntity returns pending operations for one entity in enqueue order
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*entity.PendingOperation, error)

	// Delete removes a confirmed operation
	Delete(ctx context.Context, seq int64) error

	// MarkFailed records a failed attempt
	MarkFailed(ctx context.Context, seq int64, errMsg string) error

	// Rekey rewrites entity ids and payload references from oldID to newID
	Rekey(ctx context.Context, oldID, newID string) (int, error)

	Count(ctx context.Context) (int, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
