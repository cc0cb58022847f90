package workflow

import "errors"

// Approval lifecycle failures. Callers wrap them with the task or approval id.
var (
	// ErrInvalidTransition means the task's approval state has no edge for the trigger
	ErrInvalidTransition = errors.New("approval transition not allowed")

	// ErrInvalidState means a machine was configured with an unknown approval state
	ErrInvalidState = errors.New("unknown approval state")

	// ErrGuardFailed means the member's role may not fire the trigger
	ErrGuardFailed = errors.New("member may not fire this trigger")
)
