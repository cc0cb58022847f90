package event

// Type identifies the type of domain event
type Type string

const (
	TypeTaskCreated   Type = "task.created"
	TypeTaskUpdated   Type = "task.updated"
	TypeTaskDeleted   Type = "task.deleted"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskSpawned   Type = "task.spawned"
	TypeTaskRekeyed   Type = "task.rekeyed"

	TypeApprovalRequested Type = "approval.requested"
	TypeApprovalApproved  Type = "approval.approved"
	TypeApprovalRejected  Type = "approval.rejected"

	TypeOperationConfirmed  Type = "queue.operation_confirmed"
	TypeQueueDrained        Type = "queue.drained"
	TypeConnectivityChanged Type = "connectivity.changed"
	TypeRemoteSnapshot      Type = "remote.snapshot"
	TypeReminderDue         Type = "reminder.due"
	TypeUndoApplied         Type = "undo.applied"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeTaskCreated,
		TypeTaskUpdated,
		TypeTaskDeleted,
		TypeTaskCompleted,
		TypeTaskSpawned,
		TypeTaskRekeyed,
		TypeApprovalRequested,
		TypeApprovalApproved,
		TypeApprovalRejected,
		TypeOperationConfirmed,
		TypeQueueDrained,
		TypeConnectivityChanged,
		TypeRemoteSnapshot,
		TypeReminderDue,
		TypeUndoApplied:
		return true
	default:
		return false
	}
}
