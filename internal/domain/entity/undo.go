package entity

import "time"

// UndoType names the kind of action that can be inverted.
type UndoType string

// Undo types
const (
	UndoToggle UndoType = "toggle"
	UndoDelete UndoType = "delete"
	UndoEdit   UndoType = "edit"
)

// UndoAction captures the most recent invertible mutation.
//
// Task is the post-state snapshot and PreviousState the pre-state snapshot.
// SpawnedID is set when a recurring completion created a successor.
// Approval is the approval a toggle opened, or the one a delete withdrew.
// Created is true when an edit created the task rather than changed it.
// ActorID is the member who performed the action; only they may undo it.
type UndoAction struct {
	Type          UndoType      `json:"type"`
	ActorID       string        `json:"actor_id"`
	Task          *Task         `json:"task"`
	PreviousState *Task         `json:"previous_state,omitempty"`
	SpawnedID     string        `json:"spawned_id,omitempty"`
	Approval      *TaskApproval `json:"approval,omitempty"`
	Created       bool          `json:"created,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Rekey rewrites references to a temporary task id.
func (u *UndoAction) Rekey(oldID, newID string) {
	if u.Task != nil && u.Task.ID == oldID {
		u.Task.ID = newID
	}
	if u.PreviousState != nil && u.PreviousState.ID == oldID {
		u.PreviousState.ID = newID
	}
	if u.SpawnedID == oldID {
		u.SpawnedID = newID
	}
	if u.Approval != nil && u.Approval.TaskID == oldID {
		u.Approval.TaskID = newID
	}
}
