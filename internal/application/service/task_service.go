package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/tasksync/internal/application/dispatcher"
	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/application/queue"
	"github.com/garyjia/tasksync/internal/application/store"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/event"
	"github.com/garyjia/tasksync/internal/domain/recurrence"
	"github.com/garyjia/tasksync/internal/domain/workflow"
)

// DefaultReleaseDelay is how long an id stays protected after its write was confirmed.
const DefaultReleaseDelay = 1500 * time.Millisecond

// TaskServiceDeps groups the collaborators of TaskService.
type TaskServiceDeps struct {
	Store      *store.Store
	Cache      port.LocalCache
	Queue      OperationQueue
	Approvals  ApprovalService
	History    port.HistorySink
	Notifier   port.NotificationScheduler
	Undo       *UndoManager
	Scheduler  port.TimerScheduler
	Dispatcher dispatcher.Dispatcher
	Clock      port.Clock
	IDs        port.IDGenerator
	Logger     Logger
}

// TaskService applies every user intent on the task list.
//
// Mutations are serialized. Each one checks permissions, updates the store
// optimistically, writes the local cache, submits to the operation queue,
// records one history entry, adjusts reminders and records an undo action.
// If the queue can neither log nor apply a write, the store and cache are
// rolled back and ErrSaveFailed is returned.
type TaskService struct {
	mu sync.Mutex

	store      *store.Store
	cache      port.LocalCache
	queue      OperationQueue
	approvals  ApprovalService
	history    port.HistorySink
	notifier   port.NotificationScheduler
	undo       *UndoManager
	scheduler  port.TimerScheduler
	dispatcher dispatcher.Dispatcher
	clock      port.Clock
	ids        port.IDGenerator
	perms      Permissions
	logger     Logger

	releaseDelay time.Duration
	releaseSeq   atomic.Uint64
}

// NewTaskService creates the service and subscribes it to queue confirmations.
func NewTaskService(deps TaskServiceDeps, releaseDelay time.Duration) *TaskService {
	if releaseDelay < 0 {
		releaseDelay = DefaultReleaseDelay
	}
	s := &TaskService{
		store:        deps.Store,
		cache:        deps.Cache,
		queue:        deps.Queue,
		approvals:    deps.Approvals,
		history:      deps.History,
		notifier:     deps.Notifier,
		undo:         deps.Undo,
		scheduler:    deps.Scheduler,
		dispatcher:   deps.Dispatcher,
		clock:        deps.Clock,
		ids:          deps.IDs,
		logger:       deps.Logger,
		releaseDelay: releaseDelay,
	}

	s.dispatcher.SubscribeNamed(event.TypeTaskRekeyed, "task-service.rekey", s.onRekeyed)
	s.dispatcher.SubscribeNamed(event.TypeOperationConfirmed, "task-service.release", s.onConfirmed)
	return s
}

// Subscribe registers a listener for task list changes.
func (s *TaskService) Subscribe(fn store.Listener) func() {
	return s.store.Subscribe(fn)
}

// Tasks returns the actionable tasks actor can see.
func (s *TaskService) Tasks(actor *entity.Member) []*entity.Task {
	all := s.store.Tasks()
	out := make([]*entity.Task, 0, len(all))
	for _, t := range all {
		if s.perms.CanView(actor, t) == nil && t.IsActionable() {
			out = append(out, t)
		}
	}
	return out
}

// Task returns one task actor can see.
func (s *TaskService) Task(actor *entity.Member, id string) (*entity.Task, error) {
	t, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CanView(actor, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Approvals returns the family's approvals for admins and the member's own
// requests for everyone else.
func (s *TaskService) Approvals(actor *entity.Member) []*entity.TaskApproval {
	all := s.store.Approvals()
	out := make([]*entity.TaskApproval, 0, len(all))
	for _, a := range all {
		if a.FamilyID != actor.FamilyID {
			continue
		}
		if actor.IsAdmin() || a.DependentID == actor.ID {
			out = append(out, a)
		}
	}
	return out
}

// History returns the newest audit entries from the local cache.
func (s *TaskService) History(ctx context.Context, limit int) ([]*entity.HistoryEntry, error) {
	return s.cache.GetHistory(ctx, limit)
}

// PendingOperations lists writes that still wait for the remote store.
func (s *TaskService) PendingOperations(ctx context.Context) ([]*entity.PendingOperation, error) {
	return s.queue.Pending(ctx)
}

// Drain retries queued writes. It runs between mutations, never inside one.
func (s *TaskService) Drain(ctx context.Context) (queue.DrainReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Drain(ctx)
}

// UndoAvailable returns the action Undo would invert for actor.
// Another member's pending action is not reported.
func (s *TaskService) UndoAvailable(actor *entity.Member) (*entity.UndoAction, bool) {
	action, ok := s.undo.Peek()
	if !ok || action.ActorID != actor.ID {
		return nil, false
	}
	return action, true
}

// Save creates input when its id is unknown and edits the stored task otherwise.
func (s *TaskService) Save(ctx context.Context, actor *entity.Member, input *entity.Task) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.ID != "" {
		if existing, ok := s.store.Task(input.ID); ok {
			return s.edit(ctx, actor, existing, input)
		}
	}
	return s.create(ctx, actor, input)
}

func (s *TaskService) create(ctx context.Context, actor *entity.Member, input *entity.Task) (*entity.Task, error) {
	now := s.clock.Now()
	task := input.Clone()
	if task.ID == "" {
		task.ID = s.newTaskID()
	}
	if task.FamilyID != nil && *task.FamilyID == "" {
		task.FamilyID = nil
	}
	task.CreatedBy = actor.ID
	task.CreatedAt = now
	task.Completed = false
	task.Status = entity.TaskStatusPending
	task.ApprovalID = ""
	task.EditedBy, task.EditedByName, task.EditedAt = "", "", nil
	normalizeDates(task)

	if err := s.perms.CanCreate(actor, task); err != nil {
		return nil, err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	m := &mutation{
		action:  entity.ActionCreated,
		subject: task,
		undo:    &entity.UndoAction{Type: entity.UndoEdit, Task: task.Clone(), Created: true, Timestamp: now},
	}
	m.putTask(entity.OpCreate, task, keepLocal)
	m.remind(s.scheduleAll(task)...)
	m.emit(event.TypeTaskCreated, task, actor)

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

func (s *TaskService) edit(ctx context.Context, actor *entity.Member, existing, input *entity.Task) (*entity.Task, error) {
	if err := s.perms.CanEdit(actor, existing); err != nil {
		return nil, err
	}
	if existing.Completed && existing.IsRecurring() {
		return nil, entity.ErrRecurringCompleted
	}

	now := s.clock.Now()
	updated := input.Clone()
	updated.ID = existing.ID
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	updated.Completed = existing.Completed
	updated.Status = existing.Status
	updated.ApprovalID = existing.ApprovalID
	updated.Unlocked = existing.Unlocked
	if updated.FamilyID != nil && *updated.FamilyID == "" {
		updated.FamilyID = nil
	}
	normalizeDates(updated)
	stamp(updated, actor, now)

	if !actor.BelongsTo(updated.FamilyID) {
		return nil, entity.Deny(MsgDeniedFamily, "edit", actor.ID)
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	m := &mutation{
		action:  entity.ActionEdited,
		subject: updated,
		details: DescribeChanges(existing, updated),
		undo:    &entity.UndoAction{Type: entity.UndoEdit, Task: updated.Clone(), PreviousState: existing, Timestamp: now},
	}
	m.putTask(entity.OpUpdate, updated, keepLocal)
	m.remind(s.rescheduleAll(updated)...)
	m.emit(event.TypeTaskUpdated, updated, actor)

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// Delete removes a task and withdraws its pending approval.
func (s *TaskService) Delete(ctx context.Context, actor *entity.Member, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(id)
	if err != nil {
		return err
	}
	if err := s.perms.CanDelete(actor, existing); err != nil {
		return err
	}

	m := &mutation{
		action:  entity.ActionDeleted,
		subject: existing,
		undo: &entity.UndoAction{
			Type:          entity.UndoDelete,
			Task:          existing.Clone(),
			PreviousState: existing.Clone(),
			Timestamp:     s.clock.Now(),
		},
	}
	removed := existing
	if pending, ok := s.store.PendingApprovalFor(existing.ID); ok {
		if existing.Status == entity.TaskStatusAwaitingReview {
			withdrawn, err := s.approvals.Withdraw(ctx, existing)
			if err != nil {
				return err
			}
			removed = withdrawn
		}
		m.putApproval(entity.OpDelete, pending)
		m.undo.Approval = pending.Clone()
	}
	m.putTask(entity.OpDelete, removed, removeLocal)
	m.remind(s.cancelAll(existing)...)
	m.emit(event.TypeTaskDeleted, existing, actor)

	return s.commit(ctx, actor, m)
}

// ToggleComplete completes an open task or reopens a completed one.
//
// A restricted member's completion becomes a pending approval. Completing a
// recurring task prunes the instance locally and spawns its successor unless
// the duration window has elapsed.
func (s *TaskService) ToggleComplete(ctx context.Context, actor *entity.Member, id string) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if existing.Status == entity.TaskStatusAwaitingReview {
		return nil, entity.ErrApprovalPending
	}
	if existing.Completed {
		return s.reopen(ctx, actor, existing)
	}
	if err := s.perms.CanComplete(actor, existing, s.clock.Now()); err != nil {
		return nil, err
	}
	if actor.IsRestricted() {
		return s.requestApproval(ctx, actor, existing)
	}

	now := s.clock.Now()
	done := existing.Clone()
	done.Completed = true
	done.Status = entity.TaskStatusCompleted
	stamp(done, actor, now)

	m := &mutation{
		action:  entity.ActionCompleted,
		subject: done,
		undo:    &entity.UndoAction{Type: entity.UndoToggle, Task: done.Clone(), PreviousState: existing, Timestamp: now},
	}
	if successor := s.complete(m, actor, existing, done); successor != nil {
		m.undo.SpawnedID = successor.ID
	}

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return done.Clone(), nil
}

func (s *TaskService) reopen(ctx context.Context, actor *entity.Member, existing *entity.Task) (*entity.Task, error) {
	if err := s.perms.CanReopen(actor, existing); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	open := existing.Clone()
	open.Completed = false
	open.Status = entity.TaskStatusPending
	stamp(open, actor, now)

	m := &mutation{
		action:  entity.ActionReopened,
		subject: open,
		undo:    &entity.UndoAction{Type: entity.UndoToggle, Task: open.Clone(), PreviousState: existing, Timestamp: now},
	}
	m.putTask(entity.OpUpdate, open, keepLocal)
	m.remind(s.rescheduleAll(open)...)
	m.emit(event.TypeTaskUpdated, open, actor)

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return open.Clone(), nil
}

func (s *TaskService) requestApproval(ctx context.Context, actor *entity.Member, existing *entity.Task) (*entity.Task, error) {
	updated, approval, err := s.approvals.Request(ctx, actor, existing)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	stamp(updated, actor, now)

	m := &mutation{
		action:  entity.ActionApprovalRequest,
		subject: updated,
		undo: &entity.UndoAction{
			Type:          entity.UndoToggle,
			Task:          updated.Clone(),
			PreviousState: existing,
			Approval:      approval.Clone(),
			Timestamp:     now,
		},
	}
	m.putApproval(entity.OpCreate, approval)
	m.putTask(entity.OpUpdate, updated, keepLocal)
	m.remind(s.cancelTask(updated))
	m.emit(event.TypeApprovalRequested, updated, actor, "approval_id", approval.ID)

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// complete adds the writes of a completion to m. done is the completed
// version of before. It returns the spawned successor, if any.
func (s *TaskService) complete(m *mutation, actor *entity.Member, before, done *entity.Task) *entity.Task {
	m.emit(event.TypeTaskCompleted, done, actor)

	if !before.IsRecurring() {
		m.putTask(entity.OpUpdate, done, keepLocal)
		m.remind(s.cancelAll(done)...)
		return nil
	}

	m.putTask(entity.OpUpdate, done, pruneLocal)
	m.remind(s.cancelAll(done)...)

	occ, ok := recurrence.Plan(before, s.clock.Now())
	if !ok {
		s.logger.Info("Recurrence finished, no successor", "task_id", before.ID, "repeat", before.Repeat.Kind)
		m.details = "recurrence finished"
		return nil
	}
	if occ.Fallback {
		s.logger.Error("Unknown repeat configuration, advancing one day", "task_id", before.ID, "repeat", before.Repeat.Kind)
	}

	successor := s.spawn(before, occ)
	m.putTask(entity.OpCreate, successor, keepLocal)
	m.remind(s.scheduleAll(successor)...)
	m.emit(event.TypeTaskSpawned, successor, actor, "previous_id", before.ID)
	m.details = "next: " + occ.DueDate.Format("2006-01-02")
	return successor
}

// spawn builds the next instance of a recurring task. Ownership and privacy
// stay with the original creator.
func (s *TaskService) spawn(before *entity.Task, occ recurrence.Occurrence) *entity.Task {
	successor := before.Clone()
	successor.ID = s.newTaskID()
	successor.CreatedAt = s.clock.Now()
	successor.Completed = false
	successor.Status = entity.TaskStatusPending
	successor.ApprovalID = ""
	successor.Unlocked = false
	successor.EditedBy, successor.EditedByName, successor.EditedAt = "", "", nil
	successor.ResetSubtasks()
	recurrence.Apply(successor, occ)
	return successor
}

// Approve accepts a pending approval and completes its task.
func (s *TaskService) Approve(ctx context.Context, actor *entity.Member, approvalID, comment string) (*entity.Task, error) {
	return s.decide(ctx, actor, approvalID, comment, workflow.TriggerApprove)
}

// Reject declines a pending approval and reopens its task.
func (s *TaskService) Reject(ctx context.Context, actor *entity.Member, approvalID, comment string) (*entity.Task, error) {
	return s.decide(ctx, actor, approvalID, comment, workflow.TriggerReject)
}

func (s *TaskService) decide(ctx context.Context, actor *entity.Member, approvalID, comment string, decision workflow.Trigger) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, ok := s.store.Approval(approvalID)
	if !ok {
		return nil, entity.ErrApprovalNotFound
	}
	task, err := s.get(approval.TaskID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CanView(actor, task); err != nil {
		return nil, err
	}

	updated, resolved, err := s.approvals.Decide(ctx, actor, task, approval, decision, comment)
	if err != nil {
		return nil, err
	}

	m := &mutation{subject: updated, details: comment}
	if decision == workflow.TriggerApprove {
		m.action = entity.ActionApproved
		s.complete(m, actor, task, updated)
		if comment != "" && m.details != comment {
			m.details = comment + "; " + m.details
		}
		m.emit(event.TypeApprovalApproved, updated, actor, "approval_id", approval.ID)
	} else {
		m.action = entity.ActionRejected
		m.putTask(entity.OpUpdate, updated, keepLocal)
		m.remind(s.rescheduleTask(updated))
		m.emit(event.TypeApprovalRejected, updated, actor, "approval_id", approval.ID)
	}
	m.putApproval(entity.OpDelete, resolved)

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	s.undo.Clear()
	return updated.Clone(), nil
}

// ToggleSubtask flips one subtask of a task.
func (s *TaskService) ToggleSubtask(ctx context.Context, actor *entity.Member, taskID, subtaskID string) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(taskID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CanView(actor, existing); err != nil {
		return nil, err
	}
	if existing.Completed && existing.IsRecurring() {
		return nil, entity.ErrRecurringCompleted
	}

	now := s.clock.Now()
	updated := existing.Clone()
	sub := updated.FindSubtask(subtaskID)
	if sub == nil {
		return nil, entity.ErrSubtaskNotFound
	}
	sub.Done = !sub.Done
	state := "open"
	if sub.Done {
		sub.CompletedBy = actor.ID
		sub.CompletedByName = actor.Name
		sub.CompletedAt = entity.TimePtr(now)
		state = "done"
	} else {
		sub.CompletedBy, sub.CompletedByName, sub.CompletedAt = "", "", nil
	}
	scheduled := sub.DueDate != nil
	stamp(updated, actor, now)

	m := &mutation{
		action:  entity.ActionSubtaskToggled,
		subject: updated,
		details: fmt.Sprintf("%s: %s", sub.Title, state),
		undo:    &entity.UndoAction{Type: entity.UndoToggle, Task: updated.Clone(), PreviousState: existing, Timestamp: now},
	}
	m.putTask(entity.OpUpdate, updated, keepLocal)
	if scheduled {
		m.remind(s.rescheduleSubtasks(updated)...)
	}
	m.emit(event.TypeTaskUpdated, updated, actor)

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// Postpone moves the due date to `to` or, when nil, by days (at least one).
func (s *TaskService) Postpone(ctx context.Context, actor *entity.Member, id string, days int, to *time.Time) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CanEdit(actor, existing); err != nil {
		return nil, err
	}
	if existing.Completed {
		return nil, entity.ErrTaskCompleted
	}

	now := s.clock.Now()
	var next time.Time
	if to != nil {
		next = entity.DateOnly(*to)
	} else {
		if days <= 0 {
			days = 1
		}
		base := entity.DateOnly(now)
		if existing.DueDate != nil {
			base = entity.DateOnly(*existing.DueDate)
		}
		next = base.AddDate(0, 0, days)
	}

	updated := existing.Clone()
	moveTo(updated, next)
	stamp(updated, actor, now)

	m := &mutation{
		action:  entity.ActionPostponed,
		subject: updated,
		details: DescribeChanges(existing, updated),
		undo:    &entity.UndoAction{Type: entity.UndoEdit, Task: updated.Clone(), PreviousState: existing, Timestamp: now},
	}
	m.putTask(entity.OpUpdate, updated, keepLocal)
	m.remind(s.rescheduleTask(updated))
	m.emit(event.TypeTaskUpdated, updated, actor)

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// SkipOccurrence moves a recurring task to its next date without completing it.
func (s *TaskService) SkipOccurrence(ctx context.Context, actor *entity.Member, id string) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CanEdit(actor, existing); err != nil {
		return nil, err
	}
	switch {
	case !existing.IsRecurring():
		return nil, entity.ErrNoNextOccurrence
	case existing.Completed:
		return nil, entity.ErrRecurringCompleted
	case existing.Status == entity.TaskStatusAwaitingReview:
		return nil, entity.ErrApprovalPending
	}

	now := s.clock.Now()
	occ, ok := recurrence.Plan(existing, now)
	if !ok {
		return nil, entity.ErrNoNextOccurrence
	}
	if occ.Fallback {
		s.logger.Error("Unknown repeat configuration, advancing one day", "task_id", existing.ID, "repeat", existing.Repeat.Kind)
	}

	updated := existing.Clone()
	recurrence.Apply(updated, occ)
	stamp(updated, actor, now)

	m := &mutation{
		action:  entity.ActionSkipped,
		subject: updated,
		details: DescribeChanges(existing, updated),
		undo:    &entity.UndoAction{Type: entity.UndoEdit, Task: updated.Clone(), PreviousState: existing, Timestamp: now},
	}
	m.putTask(entity.OpUpdate, updated, keepLocal)
	m.remind(s.rescheduleAll(updated)...)
	m.emit(event.TypeTaskUpdated, updated, actor)

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// SetUnlocked lets restricted members complete a future task early, or locks it again.
func (s *TaskService) SetUnlocked(ctx context.Context, actor *entity.Member, id string, unlocked bool) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CanLock(actor, existing); err != nil {
		return nil, err
	}
	if existing.Unlocked == unlocked {
		return existing.Clone(), nil
	}

	now := s.clock.Now()
	updated := existing.Clone()
	updated.Unlocked = unlocked
	stamp(updated, actor, now)

	action := entity.ActionLocked
	if unlocked {
		action = entity.ActionUnlocked
	}
	m := &mutation{
		action:  action,
		subject: updated,
		undo:    &entity.UndoAction{Type: entity.UndoEdit, Task: updated.Clone(), PreviousState: existing, Timestamp: now},
	}
	m.putTask(entity.OpUpdate, updated, keepLocal)
	m.emit(event.TypeTaskUpdated, updated, actor)

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// Undo inverts the most recent action if it is still inside its window.
func (s *TaskService) Undo(ctx context.Context, actor *entity.Member) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.undo.Peek()
	if !ok {
		return nil, entity.ErrNothingToUndo
	}
	current := s.undoTarget(action)
	if err := s.perms.CanUndo(actor, action, current); err != nil {
		return nil, err
	}
	if taken, ok := s.undo.Take(); !ok || taken != action {
		return nil, entity.ErrNothingToUndo
	}

	now := s.clock.Now()
	m := &mutation{action: entity.ActionUndone, details: string(action.Type)}
	var result *entity.Task

	switch action.Type {
	case entity.UndoDelete:
		restored := action.PreviousState.Clone()
		if action.Approval != nil {
			m.putApproval(entity.OpCreate, action.Approval.Clone())
		}
		m.putTask(entity.OpCreate, restored, keepLocal)
		m.remind(s.scheduleAll(restored)...)
		m.emit(event.TypeTaskCreated, restored, actor)
		result = restored

	case entity.UndoToggle:
		if action.SpawnedID != "" {
			spawned, ok := s.store.Task(action.SpawnedID)
			if !ok {
				spawned = &entity.Task{ID: action.SpawnedID, Title: action.PreviousState.Title}
			}
			m.putTask(entity.OpDelete, spawned, removeLocal)
			m.remind(s.cancelAll(spawned)...)
			m.emit(event.TypeTaskDeleted, spawned, actor)
		}
		if action.Approval != nil {
			if current != nil && current.ApprovalID == action.Approval.ID {
				if _, err := s.approvals.Withdraw(ctx, current); err != nil {
					return nil, err
				}
			}
			m.putApproval(entity.OpDelete, action.Approval.Clone())
		}
		restored := action.PreviousState.Clone()
		stamp(restored, actor, now)
		m.putTask(entity.OpUpdate, restored, keepLocal)
		m.remind(s.rescheduleAll(restored)...)
		m.emit(event.TypeTaskUpdated, restored, actor)
		result = restored

	case entity.UndoEdit:
		if action.Created {
			created, ok := s.store.Task(action.Task.ID)
			if !ok {
				created = action.Task.Clone()
			}
			m.putTask(entity.OpDelete, created, removeLocal)
			m.remind(s.cancelAll(created)...)
			m.emit(event.TypeTaskDeleted, created, actor)
			result = created
		} else {
			restored := action.PreviousState.Clone()
			stamp(restored, actor, now)
			m.putTask(entity.OpUpdate, restored, keepLocal)
			m.remind(s.rescheduleAll(restored)...)
			m.emit(event.TypeTaskUpdated, restored, actor)
			result = restored
		}

	default:
		return nil, fmt.Errorf("%w: unknown undo type %q", entity.ErrNothingToUndo, action.Type)
	}

	m.subject = result
	m.emit(event.TypeUndoApplied, result, actor, "undo_type", string(action.Type))

	if err := s.commit(ctx, actor, m); err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

// undoTarget returns the stored copy of the task action touched, if any.
func (s *TaskService) undoTarget(action *entity.UndoAction) *entity.Task {
	for _, snap := range []*entity.Task{action.Task, action.PreviousState} {
		if snap == nil {
			continue
		}
		if t, ok := s.store.Task(snap.ID); ok {
			return t
		}
	}
	return nil
}

// commit runs the mutation pipeline for m.
func (s *TaskService) commit(ctx context.Context, actor *entity.Member, m *mutation) error {
	snapshot := s.store.Snapshot()
	priorTasks, priorApprovals := s.priors(m)

	for _, w := range m.writes {
		s.store.Protect(w.id())
	}
	s.store.Apply(m.change())
	s.writeCache(ctx, m.writes)

	for i, w := range m.writes {
		res, err := s.queue.Submit(ctx, w.intent())
		if err != nil {
			for _, rest := range m.writes[i:] {
				s.store.Release(rest.id())
			}
			s.compensate(ctx, m.writes[:i], priorTasks, priorApprovals)
			s.rollback(ctx, snapshot, priorTasks, priorApprovals)
			s.logger.Error("Mutation rolled back", "action", m.action, "entity", w.intent().EntityType, "id", w.id(), "error", err)
			return fmt.Errorf("%w: %w", entity.ErrSaveFailed, err)
		}
		if res.Deduplicated {
			s.store.Release(w.id())
		}
		if w.task != nil && w.kind == entity.OpCreate && res.Applied && res.RemoteID != "" && res.RemoteID != w.task.ID {
			m.rekey(w.task.ID, res.RemoteID)
		}
	}

	if m.action != "" && m.subject != nil {
		if err := s.history.Append(ctx, actor, m.action, m.subject.Title, m.subject.ID, m.details); err != nil {
			s.logger.Error("Failed to record history", "action", m.action, "task_id", m.subject.ID, "error", err)
		}
	}

	for _, r := range m.reminders {
		if err := r.call(ctx); err != nil {
			s.logger.Error("Reminder scheduling failed", "reminder", r.name, "error", err)
		}
	}

	if m.undo != nil {
		m.undo.ActorID = actor.ID
		s.undo.Record(m.undo)
	}

	for _, build := range m.events {
		s.dispatcher.DispatchAsync(ctx, build())
	}
	return nil
}

// compensate submits the inverse of writes that the queue already took, newest
// first, so the remote side ends up where the device rolls back to.
func (s *TaskService) compensate(ctx context.Context, done []write, tasks map[string]*entity.Task, approvals map[string]*entity.TaskApproval) {
	seen := make(map[string]bool)
	for i := len(done) - 1; i >= 0; i-- {
		w := done[i]
		key := w.intent().EntityType + "/" + w.id()
		if seen[key] {
			continue
		}
		seen[key] = true

		var intent entity.Intent
		if w.task != nil {
			prior := tasks[w.task.ID]
			switch {
			case prior == nil:
				intent = entity.TaskIntent(entity.OpDelete, w.task)
			case w.kind == entity.OpDelete:
				intent = entity.TaskIntent(entity.OpCreate, prior)
			default:
				intent = entity.TaskIntent(entity.OpUpdate, prior)
			}
		} else {
			prior := approvals[w.approval.ID]
			switch {
			case prior == nil:
				intent = entity.ApprovalIntent(entity.OpDelete, w.approval)
			case w.kind == entity.OpDelete:
				intent = entity.ApprovalIntent(entity.OpCreate, prior)
			default:
				intent = entity.ApprovalIntent(entity.OpUpdate, prior)
			}
		}

		s.store.Protect(w.id())
		res, err := s.queue.Submit(ctx, intent)
		if err != nil || res.Deduplicated {
			s.store.Release(w.id())
		}
		if err != nil {
			s.logger.Error("Failed to revert partial write", "entity", key, "error", err)
			continue
		}
		s.logger.Info("Partial write reverted", "entity", key, "applied", res.Applied, "queued", res.Queued)
	}
}

func (s *TaskService) priors(m *mutation) (map[string]*entity.Task, map[string]*entity.TaskApproval) {
	tasks := make(map[string]*entity.Task)
	approvals := make(map[string]*entity.TaskApproval)
	for _, w := range m.writes {
		if w.task != nil {
			if _, seen := tasks[w.task.ID]; !seen {
				t, _ := s.store.Task(w.task.ID)
				tasks[w.task.ID] = t
			}
			continue
		}
		if _, seen := approvals[w.approval.ID]; !seen {
			a, _ := s.store.Approval(w.approval.ID)
			approvals[w.approval.ID] = a
		}
	}
	return tasks, approvals
}

func (s *TaskService) writeCache(ctx context.Context, writes []write) {
	for _, w := range writes {
		var err error
		switch {
		case w.task != nil && w.effect == keepLocal:
			err = s.cache.SaveTask(ctx, w.task)
		case w.task != nil:
			err = s.cache.RemoveFromCache(ctx, entity.EntityTasks, w.task.ID)
		case w.kind == entity.OpDelete:
			err = s.cache.RemoveFromCache(ctx, entity.EntityApprovals, w.approval.ID)
		default:
			err = s.cache.SaveApproval(ctx, w.approval)
		}
		if err != nil {
			s.logger.Error("Failed to write local cache", "id", w.id(), "error", err)
		}
	}
}

func (s *TaskService) rollback(ctx context.Context, snapshot store.Memento, tasks map[string]*entity.Task, approvals map[string]*entity.TaskApproval) {
	s.store.Restore(snapshot)

	for id, prior := range tasks {
		var err error
		if prior == nil || !prior.IsActionable() {
			err = s.cache.RemoveFromCache(ctx, entity.EntityTasks, id)
		} else {
			err = s.cache.SaveTask(ctx, prior)
		}
		if err != nil {
			s.logger.Error("Failed to roll back cached task", "task_id", id, "error", err)
		}
	}
	for id, prior := range approvals {
		var err error
		if prior == nil {
			err = s.cache.RemoveFromCache(ctx, entity.EntityApprovals, id)
		} else {
			err = s.cache.SaveApproval(ctx, prior)
		}
		if err != nil {
			s.logger.Error("Failed to roll back cached approval", "approval_id", id, "error", err)
		}
	}
}

// onRekeyed follows a confirmed temporary id everywhere the device keeps it.
// It runs inside queue calls and must not take s.mu.
func (s *TaskService) onRekeyed(ctx context.Context, evt *event.Event) error {
	oldID := evt.GetPayloadString("old_id")
	newID := evt.GetPayloadString("new_id")
	if oldID == "" || newID == "" {
		return nil
	}

	s.store.Rekey(oldID, newID)
	s.undo.Rekey(oldID, newID)
	err := s.cache.RekeyTask(ctx, oldID, newID)

	if rerr := s.notifier.CancelTaskReminder(ctx, oldID); rerr != nil {
		s.logger.Error("Reminder scheduling failed", "task_id", oldID, "error", rerr)
	}
	if t, ok := s.store.Task(newID); ok && !t.Completed && t.DueDate != nil {
		if rerr := s.notifier.ScheduleTaskReminder(ctx, t); rerr != nil {
			s.logger.Error("Reminder scheduling failed", "task_id", newID, "error", rerr)
		}
	}
	if err != nil {
		return fmt.Errorf("rekey cached task %s: %w", oldID, err)
	}
	return nil
}

// onConfirmed releases the protection of a confirmed write after the echo delay.
// It runs inside queue calls and must not take s.mu.
func (s *TaskService) onConfirmed(ctx context.Context, evt *event.Event) error {
	if evt.GetPayloadString("entity_type") == entity.EntityHistory {
		return nil
	}
	id := evt.EntityID
	if id == "" {
		return errors.New("confirmation without entity id")
	}
	name := fmt.Sprintf("release:%s:%d", id, s.releaseSeq.Add(1))
	s.scheduler.Schedule(name, s.releaseDelay, func() { s.store.Release(id) })
	return nil
}

func (s *TaskService) get(id string) (*entity.Task, error) {
	t, ok := s.store.Task(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrTaskNotFound, id)
	}
	return t, nil
}

func (s *TaskService) newTaskID() string {
	return entity.TempIDPrefix + s.ids.NewID()
}

func stamp(t *entity.Task, actor *entity.Member, now time.Time) {
	t.EditedBy = actor.ID
	t.EditedByName = actor.Name
	t.EditedAt = entity.TimePtr(now)
}

func normalizeDates(t *entity.Task) {
	if t.DueDate != nil {
		t.DueDate = entity.TimePtr(entity.DateOnly(*t.DueDate))
	}
	if t.Repeat.StartDate != nil {
		t.Repeat.StartDate = entity.TimePtr(entity.DateOnly(*t.Repeat.StartDate))
	}
}

func moveTo(t *entity.Task, date time.Time) {
	t.DueDate = entity.TimePtr(date)
	if t.DueTime != nil {
		t.DueTime = entity.TimePtr(recurrence.WithClock(date, *t.DueTime))
	}
}
