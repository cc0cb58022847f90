package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"go.uber.org/zap"
)

// LocalCache implements port.LocalCache over the sqlite repositories
type LocalCache struct {
	tasks     port.TaskRepository
	approvals port.ApprovalRepository
	history   port.HistoryRepository
	tx        port.TransactionManager
	logger    *zap.Logger
}

// NewLocalCache creates a cache façade. Bulk replacement and rekeying run
// inside one transaction each.
func NewLocalCache(
	tasks port.TaskRepository,
	approvals port.ApprovalRepository,
	history port.HistoryRepository,
	tx port.TransactionManager,
	logger *zap.Logger,
) *LocalCache {
	return &LocalCache{
		tasks:     tasks,
		approvals: approvals,
		history:   history,
		tx:        tx,
		logger:    logger,
	}
}

func (c *LocalCache) SaveTask(ctx context.Context, task *entity.Task) error {
	return c.tasks.Save(ctx, task)
}

func (c *LocalCache) GetTasks(ctx context.Context) ([]*entity.Task, error) {
	return c.tasks.List(ctx)
}

func (c *LocalCache) ReplaceTasks(ctx context.Context, tasks []*entity.Task) error {
	return c.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return c.tasks.ReplaceAll(ctx, tasks)
	})
}

// RemoveFromCache deletes one record of kind (tasks or approvals)
func (c *LocalCache) RemoveFromCache(ctx context.Context, kind, id string) error {
	switch kind {
	case entity.EntityTasks:
		return c.tasks.Delete(ctx, id)
	case entity.EntityApprovals:
		return c.approvals.Delete(ctx, id)
	default:
		return fmt.Errorf("unknown cache kind %q", kind)
	}
}

func (c *LocalCache) SaveApproval(ctx context.Context, approval *entity.TaskApproval) error {
	return c.approvals.Save(ctx, approval)
}

func (c *LocalCache) GetApprovals(ctx context.Context) ([]*entity.TaskApproval, error) {
	return c.approvals.List(ctx)
}

func (c *LocalCache) ReplaceApprovals(ctx context.Context, approvals []*entity.TaskApproval) error {
	return c.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return c.approvals.ReplaceAll(ctx, approvals)
	})
}

func (c *LocalCache) SaveHistoryItem(ctx context.Context, entry *entity.HistoryEntry) error {
	return c.history.Append(ctx, entry)
}

func (c *LocalCache) GetHistory(ctx context.Context, limit int) ([]*entity.HistoryEntry, error) {
	return c.history.List(ctx, limit)
}

// RekeyTask moves every cached reference of oldID to newID
func (c *LocalCache) RekeyTask(ctx context.Context, oldID, newID string) error {
	err := c.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := c.tasks.Rekey(ctx, oldID, newID); err != nil {
			return err
		}
		if err := c.approvals.RekeyTask(ctx, oldID, newID); err != nil {
			return err
		}
		return c.history.RekeyTask(ctx, oldID, newID)
	})
	if err != nil {
		c.logger.Error("Failed to rekey cached task",
			zap.String("old_id", oldID),
			zap.String("new_id", newID),
			zap.Error(err))
		return err
	}
	return nil
}

// Verify interface compliance
var _ port.LocalCache = (*LocalCache)(nil)
