package http

import (
	"errors"
	"net/http"

	"github.com/garyjia/tasksync/internal/application/queue"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/workflow"
	"github.com/garyjia/tasksync/internal/interfaces/dto"
)

// Message ids for transport errors
const (
	MsgBadRequest        = "error.bad_request"
	MsgUnknownMember     = "error.unknown_member"
	MsgValidation        = "error.validation"
	MsgTaskNotFound      = "error.task_not_found"
	MsgSubtaskNotFound   = "error.subtask_not_found"
	MsgApprovalNotFound  = "error.approval_not_found"
	MsgApprovalPending   = "error.approval_pending"
	MsgTaskLocked        = "error.task_locked"
	MsgRecurringComplete = "error.recurring_completed"
	MsgTaskCompleted     = "error.task_completed"
	MsgNoNextOccurrence  = "error.no_next_occurrence"
	MsgNothingToUndo     = "error.nothing_to_undo"
	MsgInvalidTransition = "error.invalid_transition"
	MsgSaveFailed        = "error.save_failed"
	MsgInternal          = "error.internal"
)

type errorMapping struct {
	target    error
	status    int
	messageID string
}

var errorMappings = []errorMapping{
	{entity.ErrUnknownMember, http.StatusUnauthorized, MsgUnknownMember},
	{entity.ErrTaskNotFound, http.StatusNotFound, MsgTaskNotFound},
	{entity.ErrSubtaskNotFound, http.StatusNotFound, MsgSubtaskNotFound},
	{entity.ErrApprovalNotFound, http.StatusNotFound, MsgApprovalNotFound},
	{entity.ErrApprovalPending, http.StatusConflict, MsgApprovalPending},
	{entity.ErrTaskLocked, http.StatusConflict, MsgTaskLocked},
	{entity.ErrRecurringCompleted, http.StatusConflict, MsgRecurringComplete},
	{entity.ErrTaskCompleted, http.StatusConflict, MsgTaskCompleted},
	{entity.ErrNoNextOccurrence, http.StatusConflict, MsgNoNextOccurrence},
	{entity.ErrNothingToUndo, http.StatusConflict, MsgNothingToUndo},
	{workflow.ErrInvalidTransition, http.StatusConflict, MsgInvalidTransition},
	{workflow.ErrInvalidState, http.StatusConflict, MsgInvalidTransition},
	{workflow.ErrGuardFailed, http.StatusConflict, MsgInvalidTransition},
	{entity.ErrEmptyTitle, http.StatusUnprocessableEntity, MsgValidation},
	{entity.ErrMissingCreator, http.StatusUnprocessableEntity, MsgValidation},
	{entity.ErrInvalidStatus, http.StatusUnprocessableEntity, MsgValidation},
	{entity.ErrInvalidRepeatConfig, http.StatusUnprocessableEntity, MsgValidation},
	{entity.ErrRecurringWithoutDate, http.StatusUnprocessableEntity, MsgValidation},
	{dto.ErrInvalidInput, http.StatusBadRequest, MsgBadRequest},
	{entity.ErrSaveFailed, http.StatusServiceUnavailable, MsgSaveFailed},
	{queue.ErrTotalFailure, http.StatusServiceUnavailable, MsgSaveFailed},
}

// classify maps a service error to an HTTP status and a message id.
func classify(err error) (int, string) {
	var denied *entity.DeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden, denied.MessageID
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.messageID
		}
	}
	return http.StatusInternalServerError, MsgInternal
}
