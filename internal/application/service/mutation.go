package service

import (
	"context"

	"github.com/garyjia/tasksync/internal/application/store"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/event"
)

// effect says what a task write does to the device's working set.
type effect int

const (
	keepLocal   effect = iota // upsert locally
	pruneLocal                // drop locally, keep remotely
	removeLocal               // delete everywhere
)

// write is one record change of a mutation; exactly one of task and approval is set.
type write struct {
	kind     string
	task     *entity.Task
	approval *entity.TaskApproval
	effect   effect
}

func (w write) id() string {
	if w.task != nil {
		return w.task.ID
	}
	return w.approval.ID
}

func (w write) intent() entity.Intent {
	if w.task != nil {
		return entity.TaskIntent(w.kind, w.task)
	}
	return entity.ApprovalIntent(w.kind, w.approval)
}

type reminder struct {
	name string
	call func(ctx context.Context) error
}

// mutation collects everything one user intent changes. Writes are submitted
// in order; reminders and events read task ids lazily so they see permanent
// ids assigned while the writes were submitted.
type mutation struct {
	writes    []write
	action    string
	subject   *entity.Task
	details   string
	reminders []reminder
	undo      *entity.UndoAction
	events    []func() *event.Event
}

func (m *mutation) putTask(kind string, t *entity.Task, e effect) {
	m.writes = append(m.writes, write{kind: kind, task: t, effect: e})
}

func (m *mutation) putApproval(kind string, a *entity.TaskApproval) {
	e := keepLocal
	if kind == entity.OpDelete {
		e = removeLocal
	}
	m.writes = append(m.writes, write{kind: kind, approval: a, effect: e})
}

func (m *mutation) remind(r ...reminder) {
	m.reminders = append(m.reminders, r...)
}

func (m *mutation) emit(typ event.Type, t *entity.Task, actor *entity.Member, kv ...string) {
	m.events = append(m.events, func() *event.Event {
		payload := map[string]interface{}{"actor_id": actor.ID, "title": t.Title}
		for i := 0; i+1 < len(kv); i += 2 {
			payload[kv[i]] = kv[i+1]
		}
		return event.NewEvent(typ, t.ID, payload)
	})
}

// rekey points the remaining writes and the undo action at a permanent id.
func (m *mutation) rekey(oldID, newID string) {
	for _, w := range m.writes {
		if w.task != nil && w.task.ID == oldID {
			w.task.ID = newID
		}
		if w.approval != nil && w.approval.TaskID == oldID {
			w.approval.TaskID = newID
		}
	}
	if m.subject != nil && m.subject.ID == oldID {
		m.subject.ID = newID
	}
	if m.undo != nil {
		m.undo.Rekey(oldID, newID)
	}
}

// change is the optimistic store update of m.
func (m *mutation) change() store.Change {
	var c store.Change
	for _, w := range m.writes {
		switch {
		case w.task != nil && w.effect == keepLocal:
			c.UpsertTasks = append(c.UpsertTasks, w.task)
		case w.task != nil:
			c.RemoveTasks = append(c.RemoveTasks, w.task.ID)
		case w.effect == keepLocal:
			c.UpsertApprovals = append(c.UpsertApprovals, w.approval)
		default:
			c.RemoveApprovals = append(c.RemoveApprovals, w.approval.ID)
		}
	}
	return c
}

func (s *TaskService) scheduleAll(t *entity.Task) []reminder {
	return []reminder{
		{name: "schedule_task", call: func(ctx context.Context) error { return s.notifier.ScheduleTaskReminder(ctx, t) }},
		s.scheduleSubtasks(t),
	}
}

func (s *TaskService) cancelAll(t *entity.Task) []reminder {
	return []reminder{
		s.cancelTask(t),
		{name: "cancel_subtasks", call: func(ctx context.Context) error { return s.notifier.CancelAllSubtaskReminders(ctx, t.ID) }},
	}
}

func (s *TaskService) rescheduleAll(t *entity.Task) []reminder {
	return append([]reminder{s.rescheduleTask(t)}, s.rescheduleSubtasks(t)...)
}

func (s *TaskService) cancelTask(t *entity.Task) reminder {
	return reminder{name: "cancel_task", call: func(ctx context.Context) error { return s.notifier.CancelTaskReminder(ctx, t.ID) }}
}

func (s *TaskService) rescheduleTask(t *entity.Task) reminder {
	return reminder{name: "reschedule_task", call: func(ctx context.Context) error { return s.notifier.RescheduleTaskReminder(ctx, t) }}
}

func (s *TaskService) rescheduleSubtasks(t *entity.Task) []reminder {
	return []reminder{
		{name: "cancel_subtasks", call: func(ctx context.Context) error { return s.notifier.CancelAllSubtaskReminders(ctx, t.ID) }},
		s.scheduleSubtasks(t),
	}
}

func (s *TaskService) scheduleSubtasks(t *entity.Task) reminder {
	return reminder{name: "schedule_subtasks", call: func(ctx context.Context) error {
		open := openSubtasks(t)
		if len(open) == 0 {
			return nil
		}
		return s.notifier.ScheduleSubtaskReminders(ctx, t.ID, t.Title, open)
	}}
}

func openSubtasks(t *entity.Task) []entity.Subtask {
	var out []entity.Subtask
	for _, sub := range t.AllSubtasks() {
		if !sub.Done && sub.DueDate != nil {
			out = append(out, sub)
		}
	}
	return out
}
