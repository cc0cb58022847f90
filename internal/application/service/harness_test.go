package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/application/dispatcher"
	"github.com/garyjia/tasksync/internal/application/queue"
	"github.com/garyjia/tasksync/internal/application/retry"
	"github.com/garyjia/tasksync/internal/application/store"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/infrastructure/remote"
	"github.com/garyjia/tasksync/internal/testutil"
)

var (
	today = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	fam   = "fam"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// harness wires the services to in-memory collaborators and a real queue.
type harness struct {
	svc        *TaskService
	sync       *SyncService
	store      *store.Store
	cache      *testutil.MemoryCache
	log        *testutil.MemoryOperationLog
	remote     *remote.MemoryStore
	conn       *testutil.Switch
	clock      *testutil.FixedClock
	sched      *testutil.ManualScheduler
	notifier   *testutil.RecordingNotifier
	dispatcher dispatcher.Dispatcher

	admin *entity.Member
	kid   *entity.Member
	teen  *entity.Member
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()

	clock := testutil.NewFixedClock(today)
	sched := testutil.NewManualScheduler(clock)
	ids := &testutil.SequentialIDs{Prefix: "id-"}
	conn := testutil.NewSwitch(online)
	logger := testutil.NopLogger{}

	remoteStore := remote.NewMemoryStore(zap.NewNop())
	policy := retry.NewPolicy[*entity.PendingOperation, string](logger,
		retry.Strategy[*entity.PendingOperation, string]{Name: "direct", Attempt: remote.NewDirectApplier(remoteStore).Apply},
		retry.Strategy[*entity.PendingOperation, string]{Name: "family_sync", Attempt: remote.NewFamilySyncHelper(remoteStore, time.Second, zap.NewNop()).Apply},
	)

	d := dispatcher.NewDispatcher()
	t.Cleanup(func() { _ = d.Close() })

	st := store.New()
	cache := testutil.NewMemoryCache()
	log := testutil.NewMemoryOperationLog()
	q := queue.New(log, policy, conn, clock, d, logger)
	notifier := &testutil.RecordingNotifier{}

	svc := NewTaskService(TaskServiceDeps{
		Store:      st,
		Cache:      cache,
		Queue:      q,
		Approvals:  NewApprovalService(ids, clock, logger),
		History:    NewHistoryRecorder(cache, q, ids, clock, logger),
		Notifier:   notifier,
		Undo:       NewUndoManager(sched, DefaultUndoWindow),
		Scheduler:  sched,
		Dispatcher: d,
		Clock:      clock,
		IDs:        ids,
		Logger:     logger,
	}, DefaultReleaseDelay)

	admin := &entity.Member{ID: "mom", Name: "Mom", Role: entity.RoleAdmin, FamilyID: fam}
	kid := &entity.Member{ID: "kid", Name: "Kid", Role: entity.RoleDependent, FamilyID: fam}
	teen := &entity.Member{
		ID: "teen", Name: "Teen", Role: entity.RoleDependent, FamilyID: fam,
		Permissions: entity.Permissions{Create: true, Edit: true, Delete: true},
	}

	return &harness{
		svc:        svc,
		sync:       NewSyncService(svc, remoteStore, admin, d, logger),
		store:      st,
		cache:      cache,
		log:        log,
		remote:     remoteStore,
		conn:       conn,
		clock:      clock,
		sched:      sched,
		notifier:   notifier,
		dispatcher: d,
		admin:      admin,
		kid:        kid,
		teen:       teen,
	}
}

// shared creates a family task as the admin.
func (h *harness) shared(t *testing.T, title string, mods ...func(*entity.Task)) *entity.Task {
	t.Helper()
	task := &entity.Task{Title: title, FamilyID: entity.StringPtr(fam), DueDate: date(2024, 1, 10)}
	for _, mod := range mods {
		mod(task)
	}
	created, err := h.svc.Save(context.Background(), h.admin, task)
	require.NoError(t, err)
	return created
}

// settle lets every confirmed write leave its protection window.
func (h *harness) settle() {
	h.sched.Advance(DefaultReleaseDelay)
}

func (h *harness) pendingOps(t *testing.T) []*entity.PendingOperation {
	t.Helper()
	ops, err := h.svc.PendingOperations(context.Background())
	require.NoError(t, err)
	return ops
}

func (h *harness) history(t *testing.T) []*entity.HistoryEntry {
	t.Helper()
	entries, err := h.svc.History(context.Background(), 0)
	require.NoError(t, err)
	return entries
}

// requireCoupled checks that every task awaiting review has exactly one
// pending approval and no pending approval lacks such a task.
func (h *harness) requireCoupled(t *testing.T) {
	t.Helper()
	state := h.store.State()

	pendingByTask := make(map[string]int)
	for _, a := range state.Approvals {
		if a.IsPending() {
			pendingByTask[a.TaskID]++
		}
	}
	awaiting := make(map[string]bool)
	for _, task := range state.Tasks {
		if task.Status == entity.TaskStatusAwaitingReview {
			awaiting[task.ID] = true
			require.Equal(t, 1, pendingByTask[task.ID], "task %s awaiting review", task.ID)
		}
	}
	for taskID := range pendingByTask {
		require.True(t, awaiting[taskID], "pending approval for task %s not awaiting review", taskID)
	}
}

func recurring(kind entity.RepeatKind) func(*entity.Task) {
	return func(t *entity.Task) { t.Repeat = entity.RepeatConfig{Kind: kind} }
}
