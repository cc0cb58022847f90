package remote

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
)

// DirectApplier writes queued operations straight to a RemoteStore.
type DirectApplier struct {
	store port.RemoteStore
}

// NewDirectApplier creates an applier over store.
func NewDirectApplier(store port.RemoteStore) *DirectApplier {
	return &DirectApplier{store: store}
}

// Apply performs op against the store. For a task create the returned id is
// the permanent id; otherwise it is op.EntityID.
func (a *DirectApplier) Apply(ctx context.Context, op *entity.PendingOperation) (string, error) {
	return apply(ctx, a.store, op)
}

// FamilySyncHelper is the secondary write path. It re-reads the target scope
// after writing a shared task and only reports success once the write is
// visible, so a flaky primary path does not hide a lost write.
type FamilySyncHelper struct {
	store   port.RemoteStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewFamilySyncHelper creates the helper. A zero timeout disables the bound.
func NewFamilySyncHelper(store port.RemoteStore, timeout time.Duration, logger *zap.Logger) *FamilySyncHelper {
	return &FamilySyncHelper{store: store, timeout: timeout, logger: logger}
}

// Apply writes op and verifies task upserts.
func (h *FamilySyncHelper) Apply(ctx context.Context, op *entity.PendingOperation) (string, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	id, err := apply(ctx, h.store, op)
	if err != nil {
		return "", err
	}
	if op.EntityType != entity.EntityTasks || op.Kind == entity.OpDelete {
		return id, nil
	}

	task, err := op.DecodeTask()
	if err != nil {
		return "", err
	}
	filter := port.TaskFilter{UserID: task.CreatedBy}
	if task.IsShared() {
		filter.FamilyID = *task.FamilyID
	}
	tasks, err := h.store.ListTasks(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("failed to verify write: %w", err)
	}
	for _, t := range tasks {
		if t.ID == id {
			h.logger.Debug("Family sync write verified", zap.String("task_id", id))
			return id, nil
		}
	}
	return "", fmt.Errorf("task %s not visible after write", id)
}

func apply(ctx context.Context, store port.RemoteStore, op *entity.PendingOperation) (string, error) {
	switch op.EntityType {
	case entity.EntityTasks:
		if op.Kind == entity.OpDelete {
			return op.EntityID, store.DeleteTask(ctx, op.EntityID)
		}
		task, err := op.DecodeTask()
		if err != nil {
			return "", fmt.Errorf("failed to decode task payload: %w", err)
		}
		task.ID = op.EntityID
		return store.SaveTask(ctx, task)

	case entity.EntityApprovals:
		if op.Kind == entity.OpDelete {
			return op.EntityID, store.DeleteApproval(ctx, op.EntityID)
		}
		approval, err := op.DecodeApproval()
		if err != nil {
			return "", fmt.Errorf("failed to decode approval payload: %w", err)
		}
		return op.EntityID, store.SaveApproval(ctx, approval)

	case entity.EntityHistory:
		entry, err := op.DecodeHistory()
		if err != nil {
			return "", fmt.Errorf("failed to decode history payload: %w", err)
		}
		return op.EntityID, store.AppendHistory(ctx, entry)
	}
	return "", fmt.Errorf("unsupported entity type %q", op.EntityType)
}

var (
	_ port.OperationApplier = (*DirectApplier)(nil)
	_ port.OperationApplier = (*FamilySyncHelper)(nil)
)
