package entity

// TaskStatus is the lifecycle status stored on a task.
type TaskStatus string

// Task status constants
const (
	TaskStatusPending        TaskStatus = "pendente"
	TaskStatusAwaitingReview TaskStatus = "pendente_aprovacao"
	TaskStatusApproved       TaskStatus = "aprovada"
	TaskStatusRejected       TaskStatus = "rejeitada"
	TaskStatusCompleted      TaskStatus = "concluida"
	TaskStatusDeleted        TaskStatus = "excluida"
)

// IsValid checks if the status is one of the known values
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAwaitingReview, TaskStatusApproved,
		TaskStatusRejected, TaskStatusCompleted, TaskStatusDeleted:
		return true
	}
	return false
}

// String returns the string representation
func (s TaskStatus) String() string {
	return string(s)
}

// ApprovalStatus is the lifecycle status stored on an approval request.
type ApprovalStatus string

// Approval status constants
const (
	ApprovalStatusPending  ApprovalStatus = "pendente"
	ApprovalStatusApproved ApprovalStatus = "aprovada"
	ApprovalStatusRejected ApprovalStatus = "rejeitada"
)

// IsTerminal reports whether an admin decision has been recorded.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// Role identifies what a family member is allowed to do.
type Role string

// Role constants
const (
	RoleAdmin     Role = "admin"
	RoleDependent Role = "dependente"
)

// IsValid checks if the role is known
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleDependent
}

// Entity types used by the operation log and the local cache.
const (
	EntityTasks     = "tasks"
	EntityApprovals = "approvals"
	EntityHistory   = "history"
)

// Operation kinds
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// History action constants
const (
	ActionCreated         = "created"
	ActionEdited          = "edited"
	ActionDeleted         = "deleted"
	ActionCompleted       = "completed"
	ActionReopened        = "reopened"
	ActionSubtaskToggled  = "subtask_toggled"
	ActionPostponed       = "postponed"
	ActionSkipped         = "skipped"
	ActionUnlocked        = "unlocked"
	ActionLocked          = "locked"
	ActionApprovalRequest = "approval_requested"
	ActionApproved        = "approved"
	ActionRejected        = "rejected"
	ActionUndone          = "undone"
)
