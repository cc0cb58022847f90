package entity

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrEmptyTitle           = errors.New("task title is required")
	ErrMissingCreator       = errors.New("task creator is required")
	ErrInvalidStatus        = errors.New("invalid task status")
	ErrInvalidRepeatConfig  = errors.New("invalid repeat configuration")
	ErrRecurringWithoutDate = errors.New("recurring task needs a due date or start date")
)

// Lookup and state errors
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrSubtaskNotFound    = errors.New("subtask not found")
	ErrApprovalNotFound   = errors.New("approval not found")
	ErrApprovalPending    = errors.New("task already awaits approval")
	ErrTaskLocked         = errors.New("task is locked until its due date")
	ErrRecurringCompleted = errors.New("completed recurring task cannot be reopened")
	ErrTaskCompleted      = errors.New("task is already completed")
	ErrNoNextOccurrence   = errors.New("task has no next occurrence")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrUnknownMember      = errors.New("unknown member")
)

// ErrPermissionDenied is returned when the actor may not perform the action.
// The concrete error is a *DeniedError carrying a message id.
var ErrPermissionDenied = errors.New("permission denied")

// ErrSaveFailed is the generic user-facing failure after a rollback.
var ErrSaveFailed = errors.New("could not save, try again")

// DeniedError describes a permission failure in a form the transport layer can localize.
type DeniedError struct {
	MessageID string
	Action    string
	ActorID   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s by %s", e.Action, e.ActorID)
}

// Unwrap lets errors.Is match ErrPermissionDenied.
func (e *DeniedError) Unwrap() error {
	return ErrPermissionDenied
}

// Deny builds a DeniedError.
func Deny(messageID, action, actorID string) error {
	return &DeniedError{MessageID: messageID, Action: action, ActorID: actorID}
}
