package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/tasksync/internal/application/dispatcher"
	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/event"
	"github.com/garyjia/tasksync/internal/domain/reconcile"
)

// SyncService reconciles the device's task list with the remote store.
// It shares the task service's lock so merges never interleave with mutations.
type SyncService struct {
	tasks      *TaskService
	remote     port.RemoteStore
	self       *entity.Member
	dispatcher dispatcher.Dispatcher
	logger     Logger

	mu          sync.Mutex
	unsubscribe func()
}

// SyncReport summarizes one reconciliation.
type SyncReport struct {
	Tasks            int
	Approvals        int
	RevertedTasks    []string
	DroppedApprovals []string
}

// NewSyncService creates a sync service for the device owner self.
func NewSyncService(tasks *TaskService, remote port.RemoteStore, self *entity.Member, d dispatcher.Dispatcher, logger Logger) *SyncService {
	return &SyncService{tasks: tasks, remote: remote, self: self, dispatcher: d, logger: logger}
}

// Load warms the store from the local cache so the device works offline.
func (s *SyncService) Load(ctx context.Context) error {
	ts := s.tasks
	ts.mu.Lock()
	defer ts.mu.Unlock()

	tasks, err := ts.cache.GetTasks(ctx)
	if err != nil {
		return fmt.Errorf("load cached tasks: %w", err)
	}
	approvals, err := ts.cache.GetApprovals(ctx)
	if err != nil {
		return fmt.Errorf("load cached approvals: %w", err)
	}
	ts.store.Replace(tasks, approvals)
	s.logger.Info("Task list loaded from cache", "tasks", len(tasks), "approvals", len(approvals))
	return nil
}

// Refresh pulls the remote scope and merges it into the local list.
func (s *SyncService) Refresh(ctx context.Context) (SyncReport, error) {
	tasks, err := s.remote.ListTasks(ctx, s.filter())
	if err != nil {
		return SyncReport{}, fmt.Errorf("list remote tasks: %w", err)
	}
	approvals, err := s.remote.ListApprovals(ctx, s.self.FamilyID)
	if err != nil {
		return SyncReport{}, fmt.Errorf("list remote approvals: %w", err)
	}
	return s.apply(ctx, port.Snapshot{Tasks: tasks, Approvals: approvals}), nil
}

// Start follows remote pushes and reconnects. Pushes are routed through the
// dispatcher so they merge on their own goroutine, never inside a remote call.
func (s *SyncService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return nil
	}

	s.dispatcher.SubscribeNamed(event.TypeRemoteSnapshot, "sync.snapshot", s.onSnapshot)
	s.dispatcher.SubscribeNamed(event.TypeConnectivityChanged, "sync.connectivity", s.onConnectivity)

	s.unsubscribe = s.remote.OnChange(s.filter(), func(snap port.Snapshot) {
		evt := event.NewEvent(event.TypeRemoteSnapshot, "", map[string]interface{}{"snapshot": snap})
		s.dispatcher.DispatchAsync(ctx, evt)
	})
	s.logger.Info("Remote sync started", "member_id", s.self.ID, "family_id", s.self.FamilyID)
	return nil
}

// Stop ends remote pushes.
func (s *SyncService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe == nil {
		return
	}
	s.unsubscribe()
	s.unsubscribe = nil
	s.dispatcher.Unsubscribe(event.TypeRemoteSnapshot, "sync.snapshot")
	s.dispatcher.Unsubscribe(event.TypeConnectivityChanged, "sync.connectivity")
	s.logger.Info("Remote sync stopped")
}

func (s *SyncService) onSnapshot(ctx context.Context, evt *event.Event) error {
	v, ok := evt.GetPayloadValue("snapshot")
	if !ok {
		return nil
	}
	snap, ok := v.(port.Snapshot)
	if !ok {
		return fmt.Errorf("unexpected snapshot payload %T", v)
	}
	s.apply(ctx, snap)
	return nil
}

func (s *SyncService) onConnectivity(ctx context.Context, evt *event.Event) error {
	if !evt.GetPayloadBool("online") {
		return nil
	}
	if _, err := s.tasks.Drain(ctx); err != nil {
		return fmt.Errorf("drain after reconnect: %w", err)
	}
	if _, err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh after reconnect: %w", err)
	}
	return nil
}

// apply merges snap into the store and overwrites the cache with the result.
func (s *SyncService) apply(ctx context.Context, snap port.Snapshot) SyncReport {
	ts := s.tasks
	ts.mu.Lock()
	defer ts.mu.Unlock()

	protected := ts.store.Protected()
	local := ts.store.Tasks()
	localIDs := make(reconcile.IDSet, len(local))
	for _, t := range local {
		localIDs[t.ID] = struct{}{}
	}

	remote := make([]*entity.Task, 0, len(snap.Tasks))
	for _, t := range reconcile.FilterVisible(snap.Tasks, s.self.ID) {
		if !t.IsActionable() {
			continue
		}
		// A protected id missing locally is a delete that has not round-tripped yet.
		if protected.Has(t.ID) && !localIDs.Has(t.ID) {
			continue
		}
		remote = append(remote, t)
	}

	merged := reconcile.Merge(local, remote, protected, s.self.ID)
	mergedApprovals := reconcile.MergeApprovals(ts.store.Approvals(), snap.Approvals, protected)
	consistent := ts.approvals.CheckConsistency(merged, mergedApprovals)

	ts.store.Replace(consistent.Tasks, consistent.Approvals)
	if err := ts.cache.ReplaceTasks(ctx, consistent.Tasks); err != nil {
		s.logger.Error("Failed to overwrite cached tasks", "error", err)
	}
	if err := ts.cache.ReplaceApprovals(ctx, consistent.Approvals); err != nil {
		s.logger.Error("Failed to overwrite cached approvals", "error", err)
	}

	return SyncReport{
		Tasks:            len(consistent.Tasks),
		Approvals:        len(consistent.Approvals),
		RevertedTasks:    consistent.RevertedTasks,
		DroppedApprovals: consistent.DroppedApprovals,
	}
}

func (s *SyncService) filter() port.TaskFilter {
	return port.TaskFilter{FamilyID: s.self.FamilyID, UserID: s.self.ID}
}
