package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/application/queue"
	"github.com/garyjia/tasksync/internal/application/service"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/testutil"
	"github.com/garyjia/tasksync/pkg/translator"
	"github.com/garyjia/tasksync/pkg/utils"
)

type mockTasks struct {
	mock.Mock
}

func (m *mockTasks) Tasks(actor *entity.Member) []*entity.Task {
	return m.Called(actor).Get(0).([]*entity.Task)
}

func (m *mockTasks) Approvals(actor *entity.Member) []*entity.TaskApproval {
	return m.Called(actor).Get(0).([]*entity.TaskApproval)
}

func (m *mockTasks) History(ctx context.Context, limit int) ([]*entity.HistoryEntry, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*entity.HistoryEntry), args.Error(1)
}

func (m *mockTasks) PendingOperations(ctx context.Context) ([]*entity.PendingOperation, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*entity.PendingOperation), args.Error(1)
}

func (m *mockTasks) Drain(ctx context.Context) (queue.DrainReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(queue.DrainReport), args.Error(1)
}

func (m *mockTasks) UndoAvailable(actor *entity.Member) (*entity.UndoAction, bool) {
	args := m.Called(actor)
	action, _ := args.Get(0).(*entity.UndoAction)
	return action, args.Bool(1)
}

func (m *mockTasks) Save(ctx context.Context, actor *entity.Member, input *entity.Task) (*entity.Task, error) {
	return m.task(m.Called(ctx, actor, input))
}

func (m *mockTasks) Delete(ctx context.Context, actor *entity.Member, id string) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *mockTasks) ToggleComplete(ctx context.Context, actor *entity.Member, id string) (*entity.Task, error) {
	return m.task(m.Called(ctx, actor, id))
}

func (m *mockTasks) ToggleSubtask(ctx context.Context, actor *entity.Member, taskID, subtaskID string) (*entity.Task, error) {
	return m.task(m.Called(ctx, actor, taskID, subtaskID))
}

func (m *mockTasks) Postpone(ctx context.Context, actor *entity.Member, id string, days int, to *time.Time) (*entity.Task, error) {
	return m.task(m.Called(ctx, actor, id, days, to))
}

func (m *mockTasks) SkipOccurrence(ctx context.Context, actor *entity.Member, id string) (*entity.Task, error) {
	return m.task(m.Called(ctx, actor, id))
}

func (m *mockTasks) SetUnlocked(ctx context.Context, actor *entity.Member, id string, unlocked bool) (*entity.Task, error) {
	return m.task(m.Called(ctx, actor, id, unlocked))
}

func (m *mockTasks) Approve(ctx context.Context, actor *entity.Member, approvalID, comment string) (*entity.Task, error) {
	return m.task(m.Called(ctx, actor, approvalID, comment))
}

func (m *mockTasks) Reject(ctx context.Context, actor *entity.Member, approvalID, comment string) (*entity.Task, error) {
	return m.task(m.Called(ctx, actor, approvalID, comment))
}

func (m *mockTasks) Undo(ctx context.Context, actor *entity.Member) (*entity.Task, error) {
	return m.task(m.Called(ctx, actor))
}

func (m *mockTasks) task(args mock.Arguments) (*entity.Task, error) {
	t, _ := args.Get(0).(*entity.Task)
	return t, args.Error(1)
}

type stubSync struct {
	report service.SyncReport
	err    error
}

func (s *stubSync) Refresh(ctx context.Context) (service.SyncReport, error) {
	return s.report, s.err
}

type stubConn struct {
	online bool
}

func (s *stubConn) Online() bool { return s.online }

func (s *stubConn) Set(ctx context.Context, online bool) error {
	s.online = online
	return nil
}

type stubExporter struct{}

func (stubExporter) WriteHistoryXLSX(w io.Writer, entries []*entity.HistoryEntry) error {
	_, err := w.Write([]byte("PK"))
	return err
}

var (
	mom = entity.Member{ID: "mom", Name: "Ana", Role: entity.RoleAdmin, FamilyID: "silva"}
	kid = entity.Member{ID: "kid", Name: "Lia", Role: entity.RoleDependent, FamilyID: "silva"}
)

func setupServer(t *testing.T) (*Server, *mockTasks, *stubConn) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tr, err := translator.New(translator.Config{DefaultLanguage: translator.LanguageEn}, zap.NewNop())
	require.NoError(t, err)

	tasks := new(mockTasks)
	conn := &stubConn{online: true}
	srv := NewServer(DefaultServerConfig(), Deps{
		Tasks:        tasks,
		Sync:         &stubSync{report: service.SyncReport{Tasks: 2}},
		Connectivity: conn,
		Members:      service.NewRoster([]entity.Member{mom, kid}),
		Exporter:     stubExporter{},
		Translator:   tr,
		IDs:          &testutil.SequentialIDs{Prefix: "id-"},
		Location:     time.UTC,
		Health:       func(ctx context.Context) interface{} { return gin.H{"database": true} },
		Logger:       utils.NewServiceLogger(zap.NewNop(), "http"),
	})
	return srv, tasks, conn
}

func doRequest(srv *Server, method, path, member, lang string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if member != "" {
		req.Header.Set(MemberHeader, member)
	}
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck_NoMemberNeeded(t *testing.T) {
	srv, _, _ := setupServer(t)

	w := doRequest(srv, http.MethodGet, "/health", "", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.Contains(t, w.Body.String(), "database")
}

func TestActorMiddleware_UnknownMember(t *testing.T) {
	srv, _, _ := setupServer(t)

	w := doRequest(srv, http.MethodGet, "/tasks", "stranger", "pt-BR", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, MsgUnknownMember, resp.Code)
	assert.Equal(t, "Membro da família desconhecido.", resp.Error)
}

func TestListTasks_UsesActor(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	tasks.On("Tasks", mock.MatchedBy(func(m *entity.Member) bool { return m.ID == "kid" })).
		Return([]*entity.Task{{ID: "t1", Title: "Dishes"}}).Once()

	w := doRequest(srv, http.MethodGet, "/tasks", "kid", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Dishes")
	tasks.AssertExpectations(t)
}

func TestSaveTask_Create(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	tasks.On("Save", mock.Anything, mock.Anything, mock.MatchedBy(func(in *entity.Task) bool {
		return in.Title == "Dishes" && in.FamilyID != nil && *in.FamilyID == "silva"
	})).Return(&entity.Task{ID: "t1", Title: "Dishes"}, nil).Once()

	w := doRequest(srv, http.MethodPost, "/tasks", "mom", "", gin.H{"title": " Dishes ", "shared": true})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "t1")
	tasks.AssertExpectations(t)
}

func TestSaveTask_UpdateUsesPathID(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	tasks.On("Save", mock.Anything, mock.Anything, mock.MatchedBy(func(in *entity.Task) bool {
		return in.ID == "t9"
	})).Return(&entity.Task{ID: "t9", Title: "Renamed"}, nil).Once()

	w := doRequest(srv, http.MethodPut, "/tasks/t9", "mom", "", gin.H{"title": "Renamed"})

	assert.Equal(t, http.StatusOK, w.Code)
	tasks.AssertExpectations(t)
}

func TestSaveTask_BadInput(t *testing.T) {
	srv, tasks, _ := setupServer(t)

	w := doRequest(srv, http.MethodPost, "/tasks", "mom", "", gin.H{"title": "x", "due_time": "09:00"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MsgBadRequest, decode(t, w).Code)
	tasks.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveTask_DeniedIsLocalized(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	denied := &entity.DeniedError{MessageID: "denied.edit", Action: "edit", ActorID: "kid"}
	tasks.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(nil, denied).Once()

	w := doRequest(srv, http.MethodPut, "/tasks/t1", "kid", "pt", gin.H{"title": "Mine"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "denied.edit", resp.Code)
	assert.Equal(t, "Você não tem permissão para editar esta tarefa.", resp.Error)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", entity.ErrTaskNotFound, http.StatusNotFound, MsgTaskNotFound},
		{"locked", entity.ErrTaskLocked, http.StatusConflict, MsgTaskLocked},
		{"validation", entity.ErrEmptyTitle, http.StatusUnprocessableEntity, MsgValidation},
		{"save failed", entity.ErrSaveFailed, http.StatusServiceUnavailable, MsgSaveFailed},
		{"unexpected", io.ErrUnexpectedEOF, http.StatusInternalServerError, MsgInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, tasks, _ := setupServer(t)
			tasks.On("ToggleComplete", mock.Anything, mock.Anything, "t1").Return(nil, tt.err).Once()

			w := doRequest(srv, http.MethodPost, "/tasks/t1/toggle", "mom", "", nil)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Code)
		})
	}
}

func TestPostpone_DefaultsAndDate(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	tasks.On("Postpone", mock.Anything, mock.Anything, "t1", 0, (*time.Time)(nil)).
		Return(&entity.Task{ID: "t1"}, nil).Once()
	tasks.On("Postpone", mock.Anything, mock.Anything, "t1", 0, mock.MatchedBy(func(to *time.Time) bool {
		return to != nil && to.Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	})).Return(&entity.Task{ID: "t1"}, nil).Once()

	w := doRequest(srv, http.MethodPost, "/tasks/t1/postpone", "mom", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv, http.MethodPost, "/tasks/t1/postpone", "mom", "", gin.H{"date": "2024-03-20"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv, http.MethodPost, "/tasks/t1/postpone", "mom", "", gin.H{"date": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	tasks.AssertExpectations(t)
}

func TestUnlock_EmptyBodyUnlocks(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	tasks.On("SetUnlocked", mock.Anything, mock.Anything, "t1", true).Return(&entity.Task{ID: "t1"}, nil).Once()
	tasks.On("SetUnlocked", mock.Anything, mock.Anything, "t1", false).Return(&entity.Task{ID: "t1"}, nil).Once()

	assert.Equal(t, http.StatusOK, doRequest(srv, http.MethodPost, "/tasks/t1/unlock", "mom", "", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(srv, http.MethodPost, "/tasks/t1/unlock", "mom", "", gin.H{"unlocked": false}).Code)
	tasks.AssertExpectations(t)
}

func TestApprovalDecisions(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	tasks.On("Approve", mock.Anything, mock.Anything, "a1", "nice").Return(&entity.Task{ID: "t1"}, nil).Once()
	tasks.On("Reject", mock.Anything, mock.Anything, "a2", "").Return(&entity.Task{ID: "t2"}, nil).Once()

	assert.Equal(t, http.StatusOK, doRequest(srv, http.MethodPost, "/approvals/a1/approve", "mom", "", gin.H{"comment": "nice"}).Code)
	assert.Equal(t, http.StatusOK, doRequest(srv, http.MethodPost, "/approvals/a2/reject", "mom", "", nil).Code)
	tasks.AssertExpectations(t)
}

func TestUndo(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	tasks.On("UndoAvailable", mock.Anything).Return(nil, false).Once()
	tasks.On("Undo", mock.Anything, mock.Anything).Return(nil, entity.ErrNothingToUndo).Once()

	w := doRequest(srv, http.MethodGet, "/undo", "mom", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(srv, http.MethodPost, "/undo", "mom", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, MsgNothingToUndo, decode(t, w).Code)
}

func TestUndo_ScopedToMember(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	action := &entity.UndoAction{Type: entity.UndoEdit, ActorID: mom.ID, Task: &entity.Task{ID: "t1"}}
	tasks.On("UndoAvailable", mock.MatchedBy(func(m *entity.Member) bool { return m.ID == mom.ID })).Return(action, true).Once()
	tasks.On("UndoAvailable", mock.MatchedBy(func(m *entity.Member) bool { return m.ID == kid.ID })).Return(nil, false).Once()
	tasks.On("Undo", mock.Anything, mock.MatchedBy(func(m *entity.Member) bool { return m.ID == kid.ID })).
		Return(nil, entity.Deny("denied.undo", "undo", kid.ID)).Once()

	w := doRequest(srv, http.MethodGet, "/undo", "mom", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"actor_id":"mom"`)

	w = doRequest(srv, http.MethodGet, "/undo", "kid", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(srv, http.MethodPost, "/undo", "kid", "pt", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	body := decode(t, w)
	assert.Equal(t, "denied.undo", body.Code)
	assert.Contains(t, body.Error, "desfazê-la")
	tasks.AssertExpectations(t)
}

func TestQueueAndConnectivity(t *testing.T) {
	srv, tasks, conn := setupServer(t)
	tasks.On("PendingOperations", mock.Anything).Return([]*entity.PendingOperation{{Seq: 1, EntityID: "op1"}}, nil).Once()
	tasks.On("Drain", mock.Anything).Return(queue.DrainReport{Attempted: 1, Confirmed: 1}, nil).Once()

	w := doRequest(srv, http.MethodPut, "/connectivity", "mom", "", gin.H{"online": false})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, conn.online)

	w = doRequest(srv, http.MethodPut, "/connectivity", "mom", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(srv, http.MethodGet, "/queue", "mom", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "op1")

	w = doRequest(srv, http.MethodPost, "/queue/drain", "mom", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Confirmed")

	w = doRequest(srv, http.MethodPost, "/sync", "mom", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	tasks.AssertExpectations(t)
}

func TestHistoryExport(t *testing.T) {
	srv, tasks, _ := setupServer(t)
	entries := []*entity.HistoryEntry{{ID: "h1", TaskTitle: "Dishes"}}
	tasks.On("History", mock.Anything, 5).Return(entries, nil).Twice()

	w := doRequest(srv, http.MethodGet, "/history?limit=5", "mom", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Dishes")

	w = doRequest(srv, http.MethodGet, "/history/export?limit=5", "mom", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	w = doRequest(srv, http.MethodGet, "/history?limit=-1", "mom", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	tasks.AssertExpectations(t)
}
