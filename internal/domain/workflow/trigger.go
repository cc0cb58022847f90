package workflow

// Trigger is something a member does to a task's approval
type Trigger string

const (
	// TriggerRequest is a restricted member completing a task
	TriggerRequest Trigger = "request"
	// TriggerApprove and TriggerReject are an admin's decisions
	TriggerApprove Trigger = "approve"
	TriggerReject  Trigger = "reject"
	// TriggerCancel withdraws a request when it is undone or its task deleted
	TriggerCancel Trigger = "cancel"
)

func (t Trigger) String() string {
	return string(t)
}

// IsDecision reports whether t resolves a pending request
func (t Trigger) IsDecision() bool {
	return t == TriggerApprove || t == TriggerReject
}
