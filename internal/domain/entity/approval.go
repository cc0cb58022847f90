package entity

import "time"

// TaskApproval is a dependent's request to have a task marked complete.
// A pending approval exists exactly while its task is in pendente_aprovacao.
type TaskApproval struct {
	ID            string         `json:"id"`
	TaskID        string         `json:"task_id"`
	DependentID   string         `json:"dependente_id"`
	DependentName string         `json:"dependente_name"`
	Status        ApprovalStatus `json:"status"`
	RequestedAt   time.Time      `json:"requested_at"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	AdminID       string         `json:"admin_id,omitempty"`
	AdminComment  string         `json:"admin_comment,omitempty"`
	FamilyID      string         `json:"family_id"`
}

// IsPending reports whether the approval still awaits an admin decision.
func (a *TaskApproval) IsPending() bool {
	return a.Status == ApprovalStatusPending
}

// LastModified returns ResolvedAt when set, RequestedAt otherwise.
func (a *TaskApproval) LastModified() (time.Time, bool) {
	if a.ResolvedAt != nil && !a.ResolvedAt.IsZero() {
		return *a.ResolvedAt, true
	}
	if !a.RequestedAt.IsZero() {
		return a.RequestedAt, true
	}
	return time.Time{}, false
}

// Clone returns a deep copy of the approval.
func (a *TaskApproval) Clone() *TaskApproval {
	if a == nil {
		return nil
	}
	c := *a
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	return &c
}
