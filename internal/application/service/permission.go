package service

import (
	"time"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

// Message ids for permission denials; the transport layer translates them.
const (
	MsgDeniedFamily  = "denied.family"
	MsgDeniedPrivate = "denied.private"
	MsgDeniedCreate  = "denied.create"
	MsgDeniedEdit    = "denied.edit"
	MsgDeniedDelete  = "denied.delete"
	MsgDeniedReopen  = "denied.reopen"
	MsgDeniedLock    = "denied.lock"
	MsgDeniedDecide  = "denied.decide"
	MsgDeniedUndo    = "denied.undo"
)

// Permissions decides what a member may do to a task. Admins may do
// everything inside their family; dependents need explicit grants, except on
// tasks they created themselves.
type Permissions struct{}

// CanView reports whether actor may see task at all.
func (Permissions) CanView(actor *entity.Member, task *entity.Task) error {
	if !actor.BelongsTo(task.FamilyID) {
		return entity.Deny(MsgDeniedFamily, "view", actor.ID)
	}
	if !task.VisibleTo(actor.ID) {
		return entity.Deny(MsgDeniedPrivate, "view", actor.ID)
	}
	return nil
}

// CanCreate checks a new task.
func (p Permissions) CanCreate(actor *entity.Member, task *entity.Task) error {
	if !actor.BelongsTo(task.FamilyID) {
		return entity.Deny(MsgDeniedFamily, "create", actor.ID)
	}
	if actor.IsRestricted() && !actor.Permissions.Create {
		return entity.Deny(MsgDeniedCreate, "create", actor.ID)
	}
	return nil
}

// CanEdit checks edits, postpones and skips.
func (p Permissions) CanEdit(actor *entity.Member, task *entity.Task) error {
	if err := p.CanView(actor, task); err != nil {
		return err
	}
	if actor.IsRestricted() && !actor.Permissions.Edit && task.CreatedBy != actor.ID {
		return entity.Deny(MsgDeniedEdit, "edit", actor.ID)
	}
	return nil
}

// CanDelete checks deletes.
func (p Permissions) CanDelete(actor *entity.Member, task *entity.Task) error {
	if err := p.CanView(actor, task); err != nil {
		return err
	}
	if actor.IsRestricted() && !actor.Permissions.Delete && task.CreatedBy != actor.ID {
		return entity.Deny(MsgDeniedDelete, "delete", actor.ID)
	}
	return nil
}

// CanComplete checks a completion attempt. Restricted members cannot complete
// a future task early unless an admin unlocked it.
func (p Permissions) CanComplete(actor *entity.Member, task *entity.Task, today time.Time) error {
	if err := p.CanView(actor, task); err != nil {
		return err
	}
	if actor.IsRestricted() && !task.Unlocked && task.DueDate != nil &&
		entity.DateOnly(*task.DueDate).After(entity.DateOnly(today)) {
		return entity.ErrTaskLocked
	}
	return nil
}

// CanReopen checks turning a completed task back into an open one.
func (p Permissions) CanReopen(actor *entity.Member, task *entity.Task) error {
	if err := p.CanView(actor, task); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return entity.Deny(MsgDeniedReopen, "reopen", actor.ID)
	}
	if task.IsRecurring() {
		return entity.ErrRecurringCompleted
	}
	return nil
}

// CanLock checks lock and unlock toggles.
func (p Permissions) CanLock(actor *entity.Member, task *entity.Task) error {
	if err := p.CanView(actor, task); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return entity.Deny(MsgDeniedLock, "lock", actor.ID)
	}
	return nil
}

// CanUndo checks inverting action. Only the member who performed it may undo
// it, and they must still be allowed to perform the inverse on current, the
// stored copy of the task (nil when it is gone).
func (p Permissions) CanUndo(actor *entity.Member, action *entity.UndoAction, current *entity.Task) error {
	if action.ActorID != actor.ID {
		return entity.Deny(MsgDeniedUndo, "undo", actor.ID)
	}

	target := current
	if target == nil {
		target = action.PreviousState
	}
	if target == nil {
		target = action.Task
	}

	switch {
	case action.Type == entity.UndoDelete:
		return p.CanDelete(actor, action.PreviousState)
	case action.Type == entity.UndoEdit && action.Created:
		return p.CanDelete(actor, target)
	case action.Type == entity.UndoEdit:
		return p.CanEdit(actor, target)
	default:
		if action.Task != nil && action.Task.Completed && action.PreviousState != nil &&
			!action.PreviousState.Completed && actor.IsRestricted() {
			return entity.Deny(MsgDeniedReopen, "undo", actor.ID)
		}
		return p.CanView(actor, target)
	}
}
