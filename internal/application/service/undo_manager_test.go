package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/testutil"
)

func TestUndoManager(t *testing.T) {
	newManager := func() (*UndoManager, *testutil.ManualScheduler) {
		sched := testutil.NewManualScheduler(testutil.NewFixedClock(today))
		return NewUndoManager(sched, 0), sched
	}

	t.Run("defaults the window", func(t *testing.T) {
		m, _ := newManager()
		assert.Equal(t, DefaultUndoWindow, m.Window())
	})

	t.Run("take consumes", func(t *testing.T) {
		m, sched := newManager()
		m.Record(&entity.UndoAction{Type: entity.UndoDelete})
		assert.True(t, sched.Pending(undoTimer))

		action, ok := m.Take()
		require.True(t, ok)
		assert.Equal(t, entity.UndoDelete, action.Type)
		assert.False(t, sched.Pending(undoTimer))

		_, ok = m.Take()
		assert.False(t, ok)
	})

	t.Run("expires after the window", func(t *testing.T) {
		m, sched := newManager()
		m.Record(&entity.UndoAction{Type: entity.UndoEdit})
		sched.Advance(DefaultUndoWindow)
		_, ok := m.Peek()
		assert.False(t, ok)
	})

	t.Run("recording restarts the window", func(t *testing.T) {
		m, sched := newManager()
		m.Record(&entity.UndoAction{Type: entity.UndoEdit})
		sched.Advance(8 * time.Second)
		m.Record(&entity.UndoAction{Type: entity.UndoToggle})
		sched.Advance(8 * time.Second)

		action, ok := m.Peek()
		require.True(t, ok)
		assert.Equal(t, entity.UndoToggle, action.Type)
	})

	t.Run("clear", func(t *testing.T) {
		m, sched := newManager()
		m.Record(&entity.UndoAction{Type: entity.UndoEdit})
		m.Clear()
		_, ok := m.Peek()
		assert.False(t, ok)
		assert.Empty(t, sched.Names())
	})

	t.Run("rekey follows temporary ids", func(t *testing.T) {
		m, _ := newManager()
		m.Record(&entity.UndoAction{
			Type:          entity.UndoToggle,
			Task:          &entity.Task{ID: "tmp-1"},
			PreviousState: &entity.Task{ID: "tmp-1"},
			SpawnedID:     "tmp-2",
			Approval:      &entity.TaskApproval{ID: "a1", TaskID: "tmp-1"},
		})
		m.Rekey("tmp-1", "1")
		m.Rekey("tmp-2", "2")

		action, _ := m.Peek()
		assert.Equal(t, "1", action.Task.ID)
		assert.Equal(t, "1", action.PreviousState.ID)
		assert.Equal(t, "2", action.SpawnedID)
		assert.Equal(t, "1", action.Approval.TaskID)
	})
}
