package service

import (
	"context"
	"fmt"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/application/queue"
	"github.com/garyjia/tasksync/internal/domain/entity"
)

// OperationQueue is the durable write path used by the services.
type OperationQueue interface {
	Submit(ctx context.Context, intent entity.Intent) (queue.Result, error)
	Drain(ctx context.Context) (queue.DrainReport, error)
	Pending(ctx context.Context) ([]*entity.PendingOperation, error)
}

// HistoryRecorder writes audit entries to the local cache and queues them for
// the remote store.
type HistoryRecorder struct {
	cache  port.LocalCache
	queue  OperationQueue
	ids    port.IDGenerator
	clock  port.Clock
	logger Logger
}

// NewHistoryRecorder creates a recorder.
func NewHistoryRecorder(cache port.LocalCache, q OperationQueue, ids port.IDGenerator, clock port.Clock, logger Logger) *HistoryRecorder {
	return &HistoryRecorder{cache: cache, queue: q, ids: ids, clock: clock, logger: logger}
}

// Append records one entry on behalf of actor.
func (r *HistoryRecorder) Append(ctx context.Context, actor *entity.Member, action, taskTitle, taskID, details string) error {
	entry := &entity.HistoryEntry{
		ID:        r.ids.NewID(),
		Action:    action,
		TaskTitle: taskTitle,
		TaskID:    taskID,
		Details:   details,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		FamilyID:  actor.FamilyID,
		Timestamp: r.clock.Now(),
	}

	if err := r.cache.SaveHistoryItem(ctx, entry); err != nil {
		r.logger.Error("Failed to cache history entry", "action", action, "task_id", taskID, "error", err)
	}
	if _, err := r.queue.Submit(ctx, entity.HistoryIntent(entry)); err != nil {
		return fmt.Errorf("queue history entry: %w", err)
	}
	return nil
}

var _ port.HistorySink = (*HistoryRecorder)(nil)
