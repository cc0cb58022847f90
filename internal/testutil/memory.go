package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// MemoryCache is an in-memory port.LocalCache.
type MemoryCache struct {
	mu        sync.Mutex
	tasks     map[string]*entity.Task
	approvals map[string]*entity.TaskApproval
	history   []*entity.HistoryEntry

	// FailWrites makes every write return ErrInjected.
	FailWrites bool
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		tasks:     make(map[string]*entity.Task),
		approvals: make(map[string]*entity.TaskApproval),
	}
}

func (c *MemoryCache) SaveTask(ctx context.Context, task *entity.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return ErrInjected
	}
	c.tasks[task.ID] = task.Clone()
	return nil
}

func (c *MemoryCache) GetTasks(ctx context.Context) ([]*entity.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*entity.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MemoryCache) ReplaceTasks(ctx context.Context, tasks []*entity.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return ErrInjected
	}
	c.tasks = make(map[string]*entity.Task, len(tasks))
	for _, t := range tasks {
		c.tasks[t.ID] = t.Clone()
	}
	return nil
}

func (c *MemoryCache) RemoveFromCache(ctx context.Context, kind, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return ErrInjected
	}
	switch kind {
	case entity.EntityTasks:
		delete(c.tasks, id)
	case entity.EntityApprovals:
		delete(c.approvals, id)
	}
	return nil
}

func (c *MemoryCache) SaveApproval(ctx context.Context, approval *entity.TaskApproval) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return ErrInjected
	}
	c.approvals[approval.ID] = approval.Clone()
	return nil
}

func (c *MemoryCache) GetApprovals(ctx context.Context) ([]*entity.TaskApproval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*entity.TaskApproval, 0, len(c.approvals))
	for _, a := range c.approvals {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MemoryCache) ReplaceApprovals(ctx context.Context, approvals []*entity.TaskApproval) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return ErrInjected
	}
	c.approvals = make(map[string]*entity.TaskApproval, len(approvals))
	for _, a := range approvals {
		c.approvals[a.ID] = a.Clone()
	}
	return nil
}

func (c *MemoryCache) SaveHistoryItem(ctx context.Context, h *entity.HistoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return ErrInjected
	}
	cp := *h
	c.history = append(c.history, &cp)
	return nil
}

func (c *MemoryCache) GetHistory(ctx context.Context, limit int) ([]*entity.HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*entity.HistoryEntry, 0, len(c.history))
	for i := len(c.history) - 1; i >= 0; i-- {
		cp := *c.history[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *MemoryCache) RekeyTask(ctx context.Context, oldID, newID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tasks[oldID]; ok {
		delete(c.tasks, oldID)
		t.ID = newID
		c.tasks[newID] = t
	}
	for _, a := range c.approvals {
		if a.TaskID == oldID {
			a.TaskID = newID
		}
	}
	for _, h := range c.history {
		if h.TaskID == oldID {
			h.TaskID = newID
		}
	}
	return nil
}

// Task returns the cached task with id.
func (c *MemoryCache) Task(id string) (*entity.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

var _ port.LocalCache = (*MemoryCache)(nil)

// MemoryOperationLog is an in-memory port.OperationLog.
type MemoryOperationLog struct {
	mu   sync.Mutex
	ops  []*entity.PendingOperation
	next int64

	// FailAppend makes Append return ErrInjected.
	FailAppend bool
}

// NewMemoryOperationLog creates an empty log.
func NewMemoryOperationLog() *MemoryOperationLog {
	return &MemoryOperationLog{}
}

func (l *MemoryOperationLog) Append(ctx context.Context, op *entity.PendingOperation) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailAppend {
		return 0, ErrInjected
	}
	l.next++
	cp := copyOp(op)
	cp.Seq = l.next
	l.ops = append(l.ops, cp)
	return l.next, nil
}

func (l *MemoryOperationLog) List(ctx context.Context) ([]*entity.PendingOperation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*entity.PendingOperation, 0, len(l.ops))
	for _, op := range l.ops {
		out = append(out, copyOp(op))
	}
	return out, nil
}

func (l *MemoryOperationLog) ListByEntity(ctx context.Context, entityType, entityID string) ([]*entity.PendingOperation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*entity.PendingOperation
	for _, op := range l.ops {
		if op.EntityType == entityType && op.EntityID == entityID {
			out = append(out, copyOp(op))
		}
	}
	return out, nil
}

func (l *MemoryOperationLog) Delete(ctx context.Context, seq int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, op := range l.ops {
		if op.Seq == seq {
			l.ops = append(l.ops[:i], l.ops[i+1:]...)
			return nil
		}
	}
	return nil
}

func (l *MemoryOperationLog) MarkFailed(ctx context.Context, seq int64, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, op := range l.ops {
		if op.Seq == seq {
			op.Attempts++
			op.LastError = errMsg
		}
	}
	return nil
}

func (l *MemoryOperationLog) Rekey(ctx context.Context, oldID, newID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, op := range l.ops {
		if op.Rekey(oldID, newID) {
			n++
		}
	}
	return n, nil
}

func (l *MemoryOperationLog) Count(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops), nil
}

var _ port.OperationLog = (*MemoryOperationLog)(nil)

func copyOp(op *entity.PendingOperation) *entity.PendingOperation {
	cp := *op
	cp.Payload = append([]byte(nil), op.Payload...)
	return &cp
}
