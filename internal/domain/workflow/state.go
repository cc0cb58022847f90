package workflow

import "github.com/garyjia/tasksync/internal/domain/entity"

// State represents where a task stands in the completion approval lifecycle
type State string

const (
	StateNone           State = "none"
	StateAwaitingReview State = "pendente_aprovacao"
	StateApproved       State = "aprovada"
	StateRejected       State = "rejeitada"
)

var validStates = map[State]bool{
	StateNone:           true,
	StateAwaitingReview: true,
	StateApproved:       true,
	StateRejected:       true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
}

// IsTerminal returns true if no further approval transitions are allowed.
// A rejected task may be submitted again.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid approval state
func (s State) IsValid() bool {
	return validStates[s]
}

// StateOf derives the approval state from a task's stored status.
func StateOf(task *entity.Task) State {
	switch task.Status {
	case entity.TaskStatusAwaitingReview:
		return StateAwaitingReview
	case entity.TaskStatusApproved:
		return StateApproved
	case entity.TaskStatusRejected:
		return StateRejected
	default:
		return StateNone
	}
}
