package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ApprovalService computes approval lifecycle transitions. It never persists;
// the task service commits the returned records.
type ApprovalService interface {
	// Request turns a restricted member's completion into a pending approval
	Request(ctx context.Context, actor *entity.Member, task *entity.Task) (*entity.Task, *entity.TaskApproval, error)
	// Decide approves or rejects a pending approval
	Decide(ctx context.Context, actor *entity.Member, task *entity.Task, approval *entity.TaskApproval, decision workflow.Trigger, comment string) (*entity.Task, *entity.TaskApproval, error)
	// Withdraw cancels a pending request and returns the task to its open state
	Withdraw(ctx context.Context, task *entity.Task) (*entity.Task, error)
	// CheckConsistency repairs tasks and approvals that diverged
	CheckConsistency(tasks []*entity.Task, approvals []*entity.TaskApproval) ConsistencyReport
}

// ConsistencyReport is the repaired state plus what changed.
type ConsistencyReport struct {
	Tasks            []*entity.Task
	Approvals        []*entity.TaskApproval
	RevertedTasks    []string
	DroppedApprovals []string
}

// Repaired reports whether anything was changed.
func (r ConsistencyReport) Repaired() bool {
	return len(r.RevertedTasks) > 0 || len(r.DroppedApprovals) > 0
}

type approvalServiceImpl struct {
	ids    port.IDGenerator
	clock  port.Clock
	logger Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(ids port.IDGenerator, clock port.Clock, logger Logger) ApprovalService {
	return &approvalServiceImpl{ids: ids, clock: clock, logger: logger}
}

// Request creates a pending approval for task
func (s *approvalServiceImpl) Request(ctx context.Context, actor *entity.Member, task *entity.Task) (*entity.Task, *entity.TaskApproval, error) {
	if task.Status == entity.TaskStatusAwaitingReview {
		return nil, nil, entity.ErrApprovalPending
	}

	machine := workflow.NewApprovalMachine(workflow.StateOf(task), actor)
	if err := machine.Fire(ctx, workflow.TriggerRequest); err != nil {
		return nil, nil, fmt.Errorf("request approval for %s: %w", task.ID, err)
	}

	now := s.clock.Now()
	approval := &entity.TaskApproval{
		ID:            s.ids.NewID(),
		TaskID:        task.ID,
		DependentID:   actor.ID,
		DependentName: actor.Name,
		Status:        entity.ApprovalStatusPending,
		RequestedAt:   now,
		FamilyID:      actor.FamilyID,
	}
	if task.IsShared() {
		approval.FamilyID = *task.FamilyID
	}

	updated := task.Clone()
	updated.Status = entity.TaskStatus(machine.State())
	updated.ApprovalID = approval.ID

	s.logger.Info("Approval requested", "task_id", task.ID, "approval_id", approval.ID, "dependent_id", actor.ID)
	return updated, approval, nil
}

// Decide resolves approval with decision
func (s *approvalServiceImpl) Decide(
	ctx context.Context,
	actor *entity.Member,
	task *entity.Task,
	approval *entity.TaskApproval,
	decision workflow.Trigger,
	comment string,
) (*entity.Task, *entity.TaskApproval, error) {
	if !decision.IsDecision() {
		return nil, nil, fmt.Errorf("%w: %s is not a decision", workflow.ErrInvalidTransition, decision)
	}
	if !approval.IsPending() {
		return nil, nil, fmt.Errorf("approval %s is %s: %w", approval.ID, approval.Status, workflow.ErrInvalidTransition)
	}

	machine := workflow.NewApprovalMachine(workflow.StateOf(task), actor)
	if err := machine.Fire(ctx, decision); err != nil {
		if errors.Is(err, workflow.ErrGuardFailed) {
			return nil, nil, entity.Deny(MsgDeniedDecide, decision.String(), actor.ID)
		}
		return nil, nil, fmt.Errorf("decide approval %s: %w", approval.ID, err)
	}

	now := s.clock.Now()
	resolved := approval.Clone()
	resolved.ResolvedAt = &now
	resolved.AdminID = actor.ID
	resolved.AdminComment = comment

	updated := task.Clone()
	updated.Status = entity.TaskStatus(machine.State())
	updated.ApprovalID = ""
	updated.EditedBy = actor.ID
	updated.EditedByName = actor.Name
	updated.EditedAt = &now

	if decision == workflow.TriggerApprove {
		resolved.Status = entity.ApprovalStatusApproved
		updated.Completed = true
	} else {
		resolved.Status = entity.ApprovalStatusRejected
		updated.Completed = false
	}

	s.logger.Info("Approval decided",
		"approval_id", approval.ID,
		"task_id", task.ID,
		"decision", decision,
		"admin_id", actor.ID,
	)
	return updated, resolved, nil
}

// Withdraw cancels the pending request on task
func (s *approvalServiceImpl) Withdraw(ctx context.Context, task *entity.Task) (*entity.Task, error) {
	machine := workflow.NewApprovalMachine(workflow.StateOf(task), nil)
	if err := machine.Fire(ctx, workflow.TriggerCancel); err != nil {
		return nil, fmt.Errorf("withdraw approval for %s: %w", task.ID, err)
	}

	updated := task.Clone()
	updated.Status = entity.TaskStatusPending
	updated.ApprovalID = ""
	return updated, nil
}

// CheckConsistency keeps every pending approval paired with exactly one task
// awaiting review. Tasks stuck in review without a pending approval go back to
// pending; approvals without a matching task are dropped, as are duplicates.
func (s *approvalServiceImpl) CheckConsistency(tasks []*entity.Task, approvals []*entity.TaskApproval) ConsistencyReport {
	report := ConsistencyReport{
		Tasks:     make([]*entity.Task, 0, len(tasks)),
		Approvals: make([]*entity.TaskApproval, 0, len(approvals)),
	}

	awaiting := make(map[string]*entity.Task)
	for _, t := range tasks {
		if t.Status == entity.TaskStatusAwaitingReview {
			awaiting[t.ID] = t
		}
	}

	paired := make(map[string]string)
	for _, a := range approvals {
		if !a.IsPending() {
			report.Approvals = append(report.Approvals, a)
			continue
		}
		t, ok := awaiting[a.TaskID]
		if !ok || paired[a.TaskID] != "" || (t.ApprovalID != "" && t.ApprovalID != a.ID) {
			report.DroppedApprovals = append(report.DroppedApprovals, a.ID)
			continue
		}
		paired[a.TaskID] = a.ID
		report.Approvals = append(report.Approvals, a)
	}

	for _, t := range tasks {
		if t.Status == entity.TaskStatusAwaitingReview && paired[t.ID] == "" {
			fixed := t.Clone()
			fixed.Status = entity.TaskStatusPending
			fixed.ApprovalID = ""
			report.RevertedTasks = append(report.RevertedTasks, t.ID)
			report.Tasks = append(report.Tasks, fixed)
			continue
		}
		report.Tasks = append(report.Tasks, t)
	}

	if report.Repaired() {
		s.logger.Info("Approval state repaired",
			"reverted_tasks", report.RevertedTasks,
			"dropped_approvals", report.DroppedApprovals,
		)
	}
	return report
}
