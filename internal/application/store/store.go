// Package store holds the in-memory task list that the orchestrator owns and
// that readers observe.
package store

import (
	"sort"
	"sync"

	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/reconcile"
)

// State is an immutable view handed to listeners.
type State struct {
	Version   uint64
	Tasks     []*entity.Task
	Approvals []*entity.TaskApproval
}

// Listener observes state changes. It runs on the mutating goroutine after
// the store lock has been released.
type Listener func(State)

// Memento is an opaque deep copy used to roll back optimistic changes.
type Memento struct {
	tasks     map[string]*entity.Task
	approvals map[string]*entity.TaskApproval
}

// Store is the task-list state container.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]*entity.Task
	approvals map[string]*entity.TaskApproval
	protected map[string]int
	version   uint64

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tasks:     make(map[string]*entity.Task),
		approvals: make(map[string]*entity.TaskApproval),
		protected: make(map[string]int),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// Task returns a copy of the task with id.
func (s *Store) Task(id string) (*entity.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns copies of all tasks ordered by creation time.
func (s *Store) Tasks() []*entity.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedTasks()
}

// Approval returns a copy of the approval with id.
func (s *Store) Approval(id string) (*entity.TaskApproval, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// PendingApprovalFor returns the pending approval of taskID, if any.
func (s *Store) PendingApprovalFor(taskID string) (*entity.TaskApproval, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.approvals {
		if a.TaskID == taskID && a.IsPending() {
			return a.Clone(), true
		}
	}
	return nil, false
}

// Approvals returns copies of all approvals ordered by request time.
func (s *Store) Approvals() []*entity.TaskApproval {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedApprovals()
}

// UpsertTask stores a copy of task and notifies listeners.
func (s *Store) UpsertTask(task *entity.Task) {
	s.mutate(func() {
		s.tasks[task.ID] = task.Clone()
	})
}

// RemoveTask deletes a task and notifies listeners.
func (s *Store) RemoveTask(id string) {
	s.mutate(func() {
		delete(s.tasks, id)
	})
}

// ReplaceTasks swaps the whole task list.
func (s *Store) ReplaceTasks(tasks []*entity.Task) {
	s.mutate(func() {
		s.tasks = make(map[string]*entity.Task, len(tasks))
		for _, t := range tasks {
			s.tasks[t.ID] = t.Clone()
		}
	})
}

// UpsertApproval stores a copy of approval and notifies listeners.
func (s *Store) UpsertApproval(approval *entity.TaskApproval) {
	s.mutate(func() {
		s.approvals[approval.ID] = approval.Clone()
	})
}

// RemoveApproval deletes an approval.
func (s *Store) RemoveApproval(id string) {
	s.mutate(func() {
		delete(s.approvals, id)
	})
}

// ReplaceApprovals swaps the whole approval list.
func (s *Store) ReplaceApprovals(approvals []*entity.TaskApproval) {
	s.mutate(func() {
		s.approvals = make(map[string]*entity.TaskApproval, len(approvals))
		for _, a := range approvals {
			s.approvals[a.ID] = a.Clone()
		}
	})
}

// Replace swaps tasks and approvals in a single notification.
func (s *Store) Replace(tasks []*entity.Task, approvals []*entity.TaskApproval) {
	s.mutate(func() {
		s.tasks = make(map[string]*entity.Task, len(tasks))
		for _, t := range tasks {
			s.tasks[t.ID] = t.Clone()
		}
		s.approvals = make(map[string]*entity.TaskApproval, len(approvals))
		for _, a := range approvals {
			s.approvals[a.ID] = a.Clone()
		}
	})
}

// Change is a batch of edits published as one notification.
type Change struct {
	UpsertTasks     []*entity.Task
	RemoveTasks     []string
	UpsertApprovals []*entity.TaskApproval
	RemoveApprovals []string
}

// Empty reports whether c carries no edits.
func (c Change) Empty() bool {
	return len(c.UpsertTasks) == 0 && len(c.RemoveTasks) == 0 &&
		len(c.UpsertApprovals) == 0 && len(c.RemoveApprovals) == 0
}

// Apply performs c. Removals run after upserts.
func (s *Store) Apply(c Change) {
	if c.Empty() {
		return
	}
	s.mutate(func() {
		for _, t := range c.UpsertTasks {
			s.tasks[t.ID] = t.Clone()
		}
		for _, a := range c.UpsertApprovals {
			s.approvals[a.ID] = a.Clone()
		}
		for _, id := range c.RemoveTasks {
			delete(s.tasks, id)
		}
		for _, id := range c.RemoveApprovals {
			delete(s.approvals, id)
		}
	})
}

// Rekey moves a task from a temporary id to its permanent id, updating
// approval references and in-flight markers.
func (s *Store) Rekey(oldID, newID string) {
	s.mutate(func() {
		if t, ok := s.tasks[oldID]; ok {
			delete(s.tasks, oldID)
			t.ID = newID
			s.tasks[newID] = t
		}
		for _, a := range s.approvals {
			if a.TaskID == oldID {
				a.TaskID = newID
			}
		}
		if n, ok := s.protected[oldID]; ok {
			delete(s.protected, oldID)
			s.protected[newID] += n
		}
	})
}

// Snapshot captures the current tasks and approvals.
func (s *Store) Snapshot() Memento {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := Memento{
		tasks:     make(map[string]*entity.Task, len(s.tasks)),
		approvals: make(map[string]*entity.TaskApproval, len(s.approvals)),
	}
	for id, t := range s.tasks {
		m.tasks[id] = t.Clone()
	}
	for id, a := range s.approvals {
		m.approvals[id] = a.Clone()
	}
	return m
}

// Restore rolls the store back to m. Protected ids are left untouched.
func (s *Store) Restore(m Memento) {
	s.mutate(func() {
		s.tasks = make(map[string]*entity.Task, len(m.tasks))
		for id, t := range m.tasks {
			s.tasks[id] = t.Clone()
		}
		s.approvals = make(map[string]*entity.TaskApproval, len(m.approvals))
		for id, a := range m.approvals {
			s.approvals[id] = a.Clone()
		}
	})
}

// Protect marks id as having an unconfirmed optimistic write. Calls nest.
func (s *Store) Protect(id string) {
	s.mu.Lock()
	s.protected[id]++
	s.mu.Unlock()
}

// Release undoes one Protect call for id.
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.protected[id]; n > 1 {
		s.protected[id] = n - 1
		return
	}
	delete(s.protected, id)
}

// IsProtected reports whether id has an unconfirmed optimistic write.
func (s *Store) IsProtected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protected[id] > 0
}

// Protected returns the current set of protected ids.
func (s *Store) Protected() reconcile.IDSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(reconcile.IDSet, len(s.protected))
	for id := range s.protected {
		set[id] = struct{}{}
	}
	return set
}

// State returns the current state as listeners see it.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Version: s.version, Tasks: s.sortedTasks(), Approvals: s.sortedApprovals()}
}

func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.version++
	st := State{Version: s.version, Tasks: s.sortedTasks(), Approvals: s.sortedApprovals()}
	s.mu.Unlock()

	s.lmu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (s *Store) sortedTasks() []*entity.Task {
	out := make([]*entity.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) sortedApprovals() []*entity.TaskApproval {
	out := make([]*entity.TaskApproval, 0, len(s.approvals))
	for _, a := range s.approvals {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
