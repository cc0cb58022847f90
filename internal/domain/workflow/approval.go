package workflow

import (
	"context"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

// NewApprovalMachine returns the approval lifecycle for a task as seen by actor.
//
// Only restricted members can request approval and only admins can decide.
// A rejected task can be submitted again. Cancel withdraws a pending request
// and is used when the request itself is undone or its task is deleted.
func NewApprovalMachine(initial State, actor *entity.Member) StateMachine {
	restricted := func(context.Context) bool { return actor != nil && actor.IsRestricted() }
	privileged := func(context.Context) bool { return actor != nil && actor.IsAdmin() }

	b := NewBuilder()
	b.Configure(StateNone).
		PermitIf(TriggerRequest, StateAwaitingReview, restricted)
	b.Configure(StateRejected).
		PermitIf(TriggerRequest, StateAwaitingReview, restricted)
	b.Configure(StateAwaitingReview).
		PermitIf(TriggerApprove, StateApproved, privileged).
		PermitIf(TriggerReject, StateRejected, privileged).
		Permit(TriggerCancel, StateNone)

	return b.Build(initial)
}
