package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"go.uber.org/zap"
)

// TaskRepository implements port.TaskRepository
type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sql.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or overwrites a task by id
func (r *TaskRepository) Save(ctx context.Context, task *entity.Task) error {
	query := `
		INSERT INTO tasks (id, family_id, created_by, status, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			family_id = excluded.family_id,
			created_by = excluded.created_by,
			status = excluded.status,
			created_at = excluded.created_at,
			data = excluded.data
	`

	data, err := encode(task)
	if err != nil {
		return err
	}

	status := task.Status
	if status == "" {
		status = entity.TaskStatusPending
	}

	_, err = executor(ctx, r.db).ExecContext(ctx, query,
		task.ID,
		nullString(task.FamilyID),
		task.CreatedBy,
		status,
		unixNano(task.CreatedAt),
		data,
	)
	if err != nil {
		r.logger.Error("Failed to save task", zap.String("task_id", task.ID), zap.Error(err))
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetByID retrieves a cached task
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	var data string
	err := executor(ctx, r.db).QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entity.ErrTaskNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get task by ID", zap.String("task_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task entity.Task
	if err := decode(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns every cached task ordered by creation time
func (r *TaskRepository) List(ctx context.Context) ([]*entity.Task, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, `SELECT data FROM tasks ORDER BY created_at, id`)
	if err != nil {
		r.logger.Error("Failed to list tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*entity.Task, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		var task entity.Task
		if err := decode(data, &task); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

// Delete removes a task; a missing id is not an error
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if _, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		r.logger.Error("Failed to delete task", zap.String("task_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// ReplaceAll overwrites the cached list. Callers wrap it in a transaction
// when the swap has to be atomic.
func (r *TaskRepository) ReplaceAll(ctx context.Context, tasks []*entity.Task) error {
	if _, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		r.logger.Error("Failed to clear tasks", zap.Error(err))
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	for _, task := range tasks {
		if err := r.Save(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// Rekey moves a cached task from oldID to newID. A missing oldID is a no-op.
func (r *TaskRepository) Rekey(ctx context.Context, oldID, newID string) error {
	task, err := r.GetByID(ctx, oldID)
	if errors.Is(err, entity.ErrTaskNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.Delete(ctx, oldID); err != nil {
		return err
	}
	task.ID = newID
	if err := r.Save(ctx, task); err != nil {
		return err
	}

	r.logger.Debug("Task rekeyed", zap.String("old_id", oldID), zap.String("new_id", newID))
	return nil
}

// Verify interface compliance
var _ port.TaskRepository = (*TaskRepository)(nil)
