// Package remote provides the in-process remote task store and the appliers
// the operation queue uses to reach it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
)

// ErrUnavailable is returned while the store is configured to fail.
var ErrUnavailable = errors.New("remote store unavailable")

type subscription struct {
	filter port.TaskFilter
	fn     func(port.Snapshot)
}

// MemoryStore is an in-process remote source of truth.
//
// Tasks saved with a temporary id get a permanent id (the temporary prefix is
// stripped). Every write pushes a snapshot to subscribers whose scope it touches.
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]*entity.Task
	approvals map[string]*entity.TaskApproval
	history   []*entity.HistoryEntry

	smu     sync.Mutex
	subs    map[int]subscription
	nextSub int

	failing  atomic.Bool
	failNext atomic.Int32
	latency  time.Duration
	logger   *zap.Logger
}

// Option configures a MemoryStore
type Option func(*MemoryStore)

// WithLatency delays every call, honouring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(s *MemoryStore) { s.latency = d }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger *zap.Logger, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		tasks:     make(map[string]*entity.Task),
		approvals: make(map[string]*entity.TaskApproval),
		subs:      make(map[int]subscription),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFailing makes every call fail until cleared.
func (s *MemoryStore) SetFailing(failing bool) {
	s.failing.Store(failing)
}

// FailNext makes the next n calls fail.
func (s *MemoryStore) FailNext(n int) {
	s.failNext.Store(int32(n))
}

// SaveTask upserts task and returns its permanent id.
func (s *MemoryStore) SaveTask(ctx context.Context, task *entity.Task) (string, error) {
	if err := s.gate(ctx); err != nil {
		return "", err
	}

	stored := task.Clone()
	stored.ID = PermanentID(task.ID)

	s.mu.Lock()
	s.tasks[stored.ID] = stored
	s.mu.Unlock()

	s.logger.Debug("Remote task saved", zap.String("task_id", stored.ID), zap.String("client_id", task.ID))
	s.publish(stored)
	return stored.ID, nil
}

// DeleteTask removes a task.
func (s *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	if err := s.gate(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	t, ok := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()

	if ok {
		s.publish(t)
	}
	return nil
}

// ListTasks returns copies of the tasks inside filter.
func (s *MemoryStore) ListTasks(ctx context.Context, filter port.TaskFilter) ([]*entity.Task, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasksIn(filter), nil
}

// Task returns the stored task with id.
func (s *MemoryStore) Task(id string) (*entity.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// SaveApproval upserts an approval.
func (s *MemoryStore) SaveApproval(ctx context.Context, approval *entity.TaskApproval) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	stored := approval.Clone()
	stored.TaskID = PermanentID(stored.TaskID)

	s.mu.Lock()
	s.approvals[stored.ID] = stored
	s.mu.Unlock()

	s.publishFamily(stored.FamilyID)
	return nil
}

// DeleteApproval removes an approval.
func (s *MemoryStore) DeleteApproval(ctx context.Context, id string) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	a, ok := s.approvals[id]
	delete(s.approvals, id)
	s.mu.Unlock()

	if ok {
		s.publishFamily(a.FamilyID)
	}
	return nil
}

// ListApprovals returns the approvals of a family.
func (s *MemoryStore) ListApprovals(ctx context.Context, familyID string) ([]*entity.TaskApproval, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvalsIn(familyID), nil
}

// AppendHistory stores an audit entry.
func (s *MemoryStore) AppendHistory(ctx context.Context, entry *entity.HistoryEntry) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	cp := *entry
	cp.TaskID = PermanentID(cp.TaskID)

	s.mu.Lock()
	s.history = append(s.history, &cp)
	s.mu.Unlock()
	return nil
}

// History returns every stored audit entry in append order.
func (s *MemoryStore) History() []*entity.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.HistoryEntry, len(s.history))
	for i, h := range s.history {
		cp := *h
		out[i] = &cp
	}
	return out
}

// OnChange registers fn for pushes inside filter.
func (s *MemoryStore) OnChange(filter port.TaskFilter, fn func(port.Snapshot)) func() {
	s.smu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscription{filter: filter, fn: fn}
	s.smu.Unlock()

	return func() {
		s.smu.Lock()
		delete(s.subs, id)
		s.smu.Unlock()
	}
}

// Ping reports whether the store is reachable. It does not consume FailNext budget.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failing.Load() {
		return ErrUnavailable
	}
	return nil
}

// PermanentID maps a temporary client id to the id the store keeps.
func PermanentID(id string) string {
	return strings.TrimPrefix(id, entity.TempIDPrefix)
}

func (s *MemoryStore) gate(ctx context.Context) error {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failing.Load() {
		return ErrUnavailable
	}
	for {
		n := s.failNext.Load()
		if n <= 0 {
			return nil
		}
		if s.failNext.CompareAndSwap(n, n-1) {
			return fmt.Errorf("%w: injected", ErrUnavailable)
		}
	}
}

func (s *MemoryStore) publish(changed *entity.Task) {
	s.smu.Lock()
	subs := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.filter.Matches(changed) {
			subs = append(subs, sub)
		}
	}
	s.smu.Unlock()
	s.push(subs)
}

func (s *MemoryStore) publishFamily(familyID string) {
	s.smu.Lock()
	subs := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.filter.FamilyID == familyID {
			subs = append(subs, sub)
		}
	}
	s.smu.Unlock()
	s.push(subs)
}

func (s *MemoryStore) push(subs []subscription) {
	for _, sub := range subs {
		s.mu.RLock()
		snap := port.Snapshot{
			Tasks:     s.tasksIn(sub.filter),
			Approvals: s.approvalsIn(sub.filter.FamilyID),
		}
		s.mu.RUnlock()
		sub.fn(snap)
	}
}

func (s *MemoryStore) tasksIn(filter port.TaskFilter) []*entity.Task {
	out := make([]*entity.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) approvalsIn(familyID string) []*entity.TaskApproval {
	out := make([]*entity.TaskApproval, 0, len(s.approvals))
	for _, a := range s.approvals {
		if a.FamilyID == familyID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var _ port.RemoteStore = (*MemoryStore)(nil)
