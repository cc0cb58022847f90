package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/application/dispatcher"
	"github.com/garyjia/tasksync/internal/application/retry"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/event"
	"github.com/garyjia/tasksync/internal/infrastructure/remote"
	"github.com/garyjia/tasksync/internal/testutil"
)

type fixture struct {
	queue  *Queue
	log    *testutil.MemoryOperationLog
	remote *remote.MemoryStore
	conn   *testutil.Switch
	events *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *eventRecorder) handle(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) ofType(t event.Type) []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*event.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type applyFunc func(ctx context.Context, op *entity.PendingOperation) (string, error)

func newFixture(t *testing.T, online bool, wrap func(applyFunc) applyFunc) *fixture {
	t.Helper()

	store := remote.NewMemoryStore(zap.NewNop())
	apply := remote.NewDirectApplier(store).Apply
	if wrap != nil {
		apply = wrap(apply)
	}
	policy := retry.NewPolicy[*entity.PendingOperation, string](testutil.NopLogger{},
		retry.Strategy[*entity.PendingOperation, string]{Name: "direct", Attempt: apply},
	)

	rec := &eventRecorder{}
	d := dispatcher.NewDispatcher()
	d.Subscribe(event.TypeTaskRekeyed, rec.handle)
	d.Subscribe(event.TypeOperationConfirmed, rec.handle)
	d.Subscribe(event.TypeQueueDrained, rec.handle)
	t.Cleanup(func() { _ = d.Close() })

	log := testutil.NewMemoryOperationLog()
	conn := testutil.NewSwitch(online)
	clock := testutil.NewFixedClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	return &fixture{
		queue:  New(log, policy, conn, clock, d, testutil.NopLogger{}),
		log:    log,
		remote: store,
		conn:   conn,
		events: rec,
	}
}

func task(id, title string) *entity.Task {
	return &entity.Task{
		ID:        id,
		Title:     title,
		CreatedBy: "u1",
		FamilyID:  entity.StringPtr("fam"),
		CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

func pending(t *testing.T, f *fixture) int {
	t.Helper()
	n, err := f.log.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSubmit_OnlineAppliesAndClearsLog(t *testing.T) {
	f := newFixture(t, true, nil)

	res, err := f.queue.Submit(context.Background(), entity.TaskIntent(entity.OpCreate, task("tmp-1", "Dishes")))
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.False(t, res.Queued)
	assert.Equal(t, "1", res.RemoteID)
	assert.Equal(t, "direct", res.Strategy)
	assert.Equal(t, 0, pending(t, f))

	rekeyed := f.events.ofType(event.TypeTaskRekeyed)
	require.Len(t, rekeyed, 1)
	assert.Equal(t, "tmp-1", rekeyed[0].GetPayloadString("old_id"))
	assert.Equal(t, "1", rekeyed[0].GetPayloadString("new_id"))

	confirmed := f.events.ofType(event.TypeOperationConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "1", confirmed[0].EntityID)
}

func TestSubmit_OfflineQueuesUntilDrain(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()

	res, err := f.queue.Submit(ctx, entity.TaskIntent(entity.OpUpdate, task("5", "Laundry")))
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.False(t, res.Applied)
	assert.Equal(t, 1, pending(t, f))

	report, err := f.queue.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, 1, pending(t, f))

	f.conn.Set(true)
	report, err = f.queue.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Attempted: 1, Confirmed: 1}, report)

	stored, ok := f.remote.Task("5")
	require.True(t, ok)
	assert.Equal(t, "Laundry", stored.Title)
	assert.Len(t, f.events.ofType(event.TypeQueueDrained), 1)
}

func TestDrain_UpdateThenDeleteLeavesNoRecord(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()

	_, err := f.queue.Submit(ctx, entity.TaskIntent(entity.OpUpdate, task("5", "Vacuum")))
	require.NoError(t, err)
	_, err = f.queue.Submit(ctx, entity.TaskIntent(entity.OpDelete, task("5", "Vacuum")))
	require.NoError(t, err)

	f.conn.Set(true)
	report, err := f.queue.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Confirmed)

	_, ok := f.remote.Task("5")
	assert.False(t, ok)
	assert.Equal(t, 0, pending(t, f))
}

func TestDrain_BlocksEntityAfterFailure(t *testing.T) {
	failed := false
	f := newFixture(t, false, func(next applyFunc) applyFunc {
		return func(ctx context.Context, op *entity.PendingOperation) (string, error) {
			if op.EntityID == "a" && !failed {
				failed = true
				return "", errors.New("timeout")
			}
			return next(ctx, op)
		}
	})
	ctx := context.Background()

	_, _ = f.queue.Submit(ctx, entity.TaskIntent(entity.OpUpdate, task("a", "first")))
	_, _ = f.queue.Submit(ctx, entity.TaskIntent(entity.OpUpdate, task("b", "other")))
	_, _ = f.queue.Submit(ctx, entity.TaskIntent(entity.OpUpdate, task("a", "second")))

	f.conn.Set(true)
	report, err := f.queue.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Attempted: 2, Confirmed: 1, Failed: 1, Blocked: 1, Remaining: 2}, report)

	ops, err := f.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.Contains(t, ops[0].LastError, "timeout")

	report, err = f.queue.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Confirmed)

	stored, ok := f.remote.Task("a")
	require.True(t, ok)
	assert.Equal(t, "second", stored.Title)
}

func TestDrain_RekeysLaterOperations(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()

	_, _ = f.queue.Submit(ctx, entity.TaskIntent(entity.OpCreate, task("tmp-1", "Groceries")))
	_, _ = f.queue.Submit(ctx, entity.TaskIntent(entity.OpUpdate, task("tmp-1", "Groceries and bread")))
	_, _ = f.queue.Submit(ctx, entity.HistoryIntent(&entity.HistoryEntry{ID: "h1", TaskID: "tmp-1", Action: entity.ActionCreated}))

	f.conn.Set(true)
	report, err := f.queue.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Confirmed)

	_, ok := f.remote.Task("tmp-1")
	assert.False(t, ok)
	stored, ok := f.remote.Task("1")
	require.True(t, ok)
	assert.Equal(t, "Groceries and bread", stored.Title)

	history := f.remote.History()
	require.Len(t, history, 1)
	assert.Equal(t, "1", history[0].TaskID)

	require.Len(t, f.events.ofType(event.TypeTaskRekeyed), 1)
}

func TestSubmit_FlushesEarlierOperationsFirst(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()

	_, err := f.queue.Submit(ctx, entity.TaskIntent(entity.OpCreate, task("tmp-3", "Plants")))
	require.NoError(t, err)

	f.conn.Set(true)
	res, err := f.queue.Submit(ctx, entity.TaskIntent(entity.OpUpdate, task("tmp-3", "Water plants")))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "3", res.RemoteID)
	assert.Equal(t, "3", res.Op.EntityID)
	assert.Equal(t, 0, pending(t, f))

	stored, ok := f.remote.Task("3")
	require.True(t, ok)
	assert.Equal(t, "Water plants", stored.Title)
}

func TestSubmit_RemoteFailureKeepsOperation(t *testing.T) {
	f := newFixture(t, true, nil)
	f.remote.SetFailing(true)

	res, err := f.queue.Submit(context.Background(), entity.TaskIntent(entity.OpUpdate, task("5", "Mop")))
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.False(t, res.Applied)

	ops, err := f.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.NotEmpty(t, ops[0].LastError)
}

func TestSubmit_TotalFailure(t *testing.T) {
	t.Run("online with log and remote down", func(t *testing.T) {
		f := newFixture(t, true, nil)
		f.log.FailAppend = true
		f.remote.SetFailing(true)

		_, err := f.queue.Submit(context.Background(), entity.TaskIntent(entity.OpUpdate, task("5", "Mop")))
		assert.ErrorIs(t, err, ErrTotalFailure)
	})

	t.Run("offline with log down", func(t *testing.T) {
		f := newFixture(t, false, nil)
		f.log.FailAppend = true

		_, err := f.queue.Submit(context.Background(), entity.TaskIntent(entity.OpUpdate, task("5", "Mop")))
		assert.ErrorIs(t, err, ErrTotalFailure)
	})

	t.Run("log down but remote up still applies", func(t *testing.T) {
		f := newFixture(t, true, nil)
		f.log.FailAppend = true

		res, err := f.queue.Submit(context.Background(), entity.TaskIntent(entity.OpUpdate, task("5", "Mop")))
		require.NoError(t, err)
		assert.True(t, res.Applied)
	})
}

func TestSubmit_DeduplicatesIdenticalIntent(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()
	intent := entity.TaskIntent(entity.OpUpdate, task("5", "Mop"))

	first, err := f.queue.Submit(ctx, intent)
	require.NoError(t, err)
	second, err := f.queue.Submit(ctx, intent)
	require.NoError(t, err)

	assert.False(t, first.Deduplicated)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Op.Seq, second.Op.Seq)
	assert.Equal(t, 1, pending(t, f))
}

func TestSubmit_UnloggedOperationWaitsForQueuedOnes(t *testing.T) {
	t.Run("earlier operation fails", func(t *testing.T) {
		f := newFixture(t, false, nil)
		ctx := context.Background()

		_, err := f.queue.Submit(ctx, entity.TaskIntent(entity.OpUpdate, task("5", "Mop")))
		require.NoError(t, err)

		f.conn.Set(true)
		f.log.FailAppend = true
		f.remote.SetFailing(true)

		_, err = f.queue.Submit(ctx, entity.TaskIntent(entity.OpDelete, task("5", "Mop")))
		assert.ErrorIs(t, err, ErrTotalFailure)

		ops, err := f.queue.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, entity.OpUpdate, ops[0].Kind)
	})

	t.Run("earlier operation applies first", func(t *testing.T) {
		f := newFixture(t, false, nil)
		ctx := context.Background()

		_, err := f.queue.Submit(ctx, entity.TaskIntent(entity.OpUpdate, task("5", "Mop")))
		require.NoError(t, err)

		f.conn.Set(true)
		f.log.FailAppend = true

		res, err := f.queue.Submit(ctx, entity.TaskIntent(entity.OpDelete, task("5", "Mop")))
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, 0, pending(t, f))

		_, ok := f.remote.Task("5")
		assert.False(t, ok)
	})
}
