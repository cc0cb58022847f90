package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/application/queue"
	"github.com/garyjia/tasksync/internal/application/service"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/interfaces/dto"
	"github.com/garyjia/tasksync/pkg/utils"
)

// TaskService is the orchestrator surface the handlers drive
type TaskService interface {
	Tasks(actor *entity.Member) []*entity.Task
	Approvals(actor *entity.Member) []*entity.TaskApproval
	History(ctx context.Context, limit int) ([]*entity.HistoryEntry, error)
	PendingOperations(ctx context.Context) ([]*entity.PendingOperation, error)
	Drain(ctx context.Context) (queue.DrainReport, error)
	UndoAvailable(actor *entity.Member) (*entity.UndoAction, bool)

	Save(ctx context.Context, actor *entity.Member, input *entity.Task) (*entity.Task, error)
	Delete(ctx context.Context, actor *entity.Member, id string) error
	ToggleComplete(ctx context.Context, actor *entity.Member, id string) (*entity.Task, error)
	ToggleSubtask(ctx context.Context, actor *entity.Member, taskID, subtaskID string) (*entity.Task, error)
	Postpone(ctx context.Context, actor *entity.Member, id string, days int, to *time.Time) (*entity.Task, error)
	SkipOccurrence(ctx context.Context, actor *entity.Member, id string) (*entity.Task, error)
	SetUnlocked(ctx context.Context, actor *entity.Member, id string, unlocked bool) (*entity.Task, error)
	Approve(ctx context.Context, actor *entity.Member, approvalID, comment string) (*entity.Task, error)
	Reject(ctx context.Context, actor *entity.Member, approvalID, comment string) (*entity.Task, error)
	Undo(ctx context.Context, actor *entity.Member) (*entity.Task, error)
}

// Syncer reconciles with the remote store on demand
type Syncer interface {
	Refresh(ctx context.Context) (service.SyncReport, error)
}

// Connectivity reports and overrides the online state
type Connectivity interface {
	Online() bool
	Set(ctx context.Context, online bool) error
}

// MemberDirectory resolves the acting member
type MemberDirectory interface {
	Lookup(id string) (*entity.Member, error)
}

// HistoryExporter renders history as a spreadsheet
type HistoryExporter interface {
	WriteHistoryXLSX(w io.Writer, entries []*entity.HistoryEntry) error
}

// Localizer renders message ids for the request language
type Localizer interface {
	Localize(messageID string, langs ...string) string
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	tasks    TaskService
	sync     Syncer
	conn     Connectivity
	exporter HistoryExporter
	i18n     Localizer
	ids      port.IDGenerator
	loc      *time.Location
	health   func(ctx context.Context) interface{}
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps) *Handlers {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{
		tasks:    deps.Tasks,
		sync:     deps.Sync,
		conn:     deps.Connectivity,
		exporter: deps.Exporter,
		i18n:     deps.Translator,
		ids:      deps.IDs,
		loc:      loc,
		health:   deps.Health,
		logger:   deps.Logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// PostponeRequest moves a due date by Days (default 1) or to Date
type PostponeRequest struct {
	Days int    `json:"days"`
	Date string `json:"date"`
}

// UnlockRequest toggles early completion for restricted members
type UnlockRequest struct {
	Unlocked *bool `json:"unlocked"`
}

// DecisionRequest carries an admin's comment on an approval
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// ConnectivityRequest overrides the online state
type ConnectivityRequest struct {
	Online *bool `json:"online"`
}

// QueueResponse lists pending operations
type QueueResponse struct {
	Online     bool                       `json:"online"`
	Operations []*entity.PendingOperation `json:"operations"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}
	if h.health != nil {
		response.Components = h.health(c.Request.Context())
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ListTasks handles GET /tasks
func (h *Handlers) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.tasks.Tasks(actorFrom(c))})
}

// SaveTask handles POST /tasks and PUT /tasks/:id
func (h *Handlers) SaveTask(c *gin.Context) {
	var req dto.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid task body", "error", err)
		h.fail(c, http.StatusBadRequest, MsgBadRequest)
		return
	}
	if id := c.Param("id"); id != "" {
		req.ID = id
	}

	actor := actorFrom(c)
	input, err := req.ToTask(actor, h.ids, h.loc)
	if err != nil {
		h.respondError(c, "Invalid task input", err)
		return
	}

	task, err := h.tasks.Save(c.Request.Context(), actor, input)
	if err != nil {
		h.respondError(c, "Failed to save task", err)
		return
	}

	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	}
	c.JSON(status, Response{Success: true, Data: task})
}

// DeleteTask handles DELETE /tasks/:id
func (h *Handlers) DeleteTask(c *gin.Context) {
	if err := h.tasks.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.respondError(c, "Failed to delete task", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ToggleTask handles POST /tasks/:id/toggle
func (h *Handlers) ToggleTask(c *gin.Context) {
	task, err := h.tasks.ToggleComplete(c.Request.Context(), actorFrom(c), c.Param("id"))
	h.respondTask(c, "Failed to toggle task", task, err)
}

// ToggleSubtask handles POST /tasks/:id/subtasks/:subtaskId/toggle
func (h *Handlers) ToggleSubtask(c *gin.Context) {
	task, err := h.tasks.ToggleSubtask(c.Request.Context(), actorFrom(c), c.Param("id"), c.Param("subtaskId"))
	h.respondTask(c, "Failed to toggle subtask", task, err)
}

// PostponeTask handles POST /tasks/:id/postpone
func (h *Handlers) PostponeTask(c *gin.Context) {
	var req PostponeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, http.StatusBadRequest, MsgBadRequest)
			return
		}
	}

	var to *time.Time
	if req.Date != "" {
		d, err := utils.ParseDate(req.Date, h.loc)
		if err != nil {
			h.fail(c, http.StatusBadRequest, MsgBadRequest)
			return
		}
		to = &d
	}

	task, err := h.tasks.Postpone(c.Request.Context(), actorFrom(c), c.Param("id"), req.Days, to)
	h.respondTask(c, "Failed to postpone task", task, err)
}

// SkipOccurrence handles POST /tasks/:id/skip
func (h *Handlers) SkipOccurrence(c *gin.Context) {
	task, err := h.tasks.SkipOccurrence(c.Request.Context(), actorFrom(c), c.Param("id"))
	h.respondTask(c, "Failed to skip occurrence", task, err)
}

// SetUnlocked handles POST /tasks/:id/unlock. An empty body unlocks.
func (h *Handlers) SetUnlocked(c *gin.Context) {
	var req UnlockRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, http.StatusBadRequest, MsgBadRequest)
			return
		}
	}
	unlocked := true
	if req.Unlocked != nil {
		unlocked = *req.Unlocked
	}

	task, err := h.tasks.SetUnlocked(c.Request.Context(), actorFrom(c), c.Param("id"), unlocked)
	h.respondTask(c, "Failed to change lock", task, err)
}

// ListApprovals handles GET /approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.tasks.Approvals(actorFrom(c))})
}

// ApproveRequest handles POST /approvals/:id/approve
func (h *Handlers) ApproveRequest(c *gin.Context) {
	comment, ok := h.bindComment(c)
	if !ok {
		return
	}
	task, err := h.tasks.Approve(c.Request.Context(), actorFrom(c), c.Param("id"), comment)
	h.respondTask(c, "Failed to approve", task, err)
}

// RejectRequest handles POST /approvals/:id/reject
func (h *Handlers) RejectRequest(c *gin.Context) {
	comment, ok := h.bindComment(c)
	if !ok {
		return
	}
	task, err := h.tasks.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), comment)
	h.respondTask(c, "Failed to reject", task, err)
}

// PeekUndo handles GET /undo
func (h *Handlers) PeekUndo(c *gin.Context) {
	action, ok := h.tasks.UndoAvailable(actorFrom(c))
	if !ok {
		h.fail(c, http.StatusNotFound, MsgNothingToUndo)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: action})
}

// Undo handles POST /undo
func (h *Handlers) Undo(c *gin.Context) {
	task, err := h.tasks.Undo(c.Request.Context(), actorFrom(c))
	h.respondTask(c, "Failed to undo", task, err)
}

// Refresh handles POST /sync
func (h *Handlers) Refresh(c *gin.Context) {
	report, err := h.sync.Refresh(c.Request.Context())
	if err != nil {
		h.respondError(c, "Refresh failed", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// DrainQueue handles POST /queue/drain
func (h *Handlers) DrainQueue(c *gin.Context) {
	report, err := h.tasks.Drain(c.Request.Context())
	if err != nil {
		h.respondError(c, "Drain failed", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// ListQueue handles GET /queue
func (h *Handlers) ListQueue(c *gin.Context) {
	ops, err := h.tasks.PendingOperations(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list queue", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: QueueResponse{Online: h.conn.Online(), Operations: ops}})
}

// SetConnectivity handles PUT /connectivity
func (h *Handlers) SetConnectivity(c *gin.Context) {
	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Online == nil {
		h.fail(c, http.StatusBadRequest, MsgBadRequest)
		return
	}

	// handler failures (a drain or refresh after reconnect) are logged, the state sticks
	if err := h.conn.Set(c.Request.Context(), *req.Online); err != nil {
		h.logger.Error("Connectivity handlers failed", "online", *req.Online, "error", err)
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"online": h.conn.Online()}})
}

// ListHistory handles GET /history?limit=N
func (h *Handlers) ListHistory(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	entries, err := h.tasks.History(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "Failed to read history", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ExportHistory handles GET /history/export
func (h *Handlers) ExportHistory(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	entries, err := h.tasks.History(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "Failed to read history", err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.WriteHistoryXLSX(&buf, entries); err != nil {
		h.respondError(c, "Failed to export history", err)
		return
	}

	filename := fmt.Sprintf("history-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handlers) bindComment(c *gin.Context) (string, bool) {
	var req DecisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, http.StatusBadRequest, MsgBadRequest)
			return "", false
		}
	}
	return utils.SanitizeString(req.Comment), true
}

func (h *Handlers) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		h.fail(c, http.StatusBadRequest, MsgBadRequest)
		return 0, false
	}
	return n, true
}

func (h *Handlers) respondTask(c *gin.Context, logMsg string, task *entity.Task, err error) {
	if err != nil {
		h.respondError(c, logMsg, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: task})
}

func (h *Handlers) respondError(c *gin.Context, logMsg string, err error) {
	status, messageID := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(logMsg, "path", c.FullPath(), "error", err)
	} else {
		h.logger.Info(logMsg, "path", c.FullPath(), "error", err)
	}
	h.fail(c, status, messageID)
}

func (h *Handlers) fail(c *gin.Context, status int, messageID string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   h.i18n.Localize(messageID, GetLang(c)),
		Code:    messageID,
	})
}
