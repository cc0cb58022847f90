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

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or overwrites an approval by id
func (r *ApprovalRepository) Save(ctx context.Context, approval *entity.TaskApproval) error {
	query := `
		INSERT INTO approvals (id, task_id, status, family_id, requested_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task_id = excluded.task_id,
			status = excluded.status,
			family_id = excluded.family_id,
			requested_at = excluded.requested_at,
			data = excluded.data
	`

	data, err := encode(approval)
	if err != nil {
		return err
	}

	_, err = executor(ctx, r.db).ExecContext(ctx, query,
		approval.ID,
		approval.TaskID,
		approval.Status,
		approval.FamilyID,
		unixNano(approval.RequestedAt),
		data,
	)
	if err != nil {
		r.logger.Error("Failed to save approval",
			zap.String("approval_id", approval.ID),
			zap.String("task_id", approval.TaskID),
			zap.Error(err))
		return fmt.Errorf("failed to save approval: %w", err)
	}
	return nil
}

// GetByID retrieves a cached approval
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*entity.TaskApproval, error) {
	var data string
	err := executor(ctx, r.db).QueryRowContext(ctx, `SELECT data FROM approvals WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entity.ErrApprovalNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get approval by ID", zap.String("approval_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}

	var approval entity.TaskApproval
	if err := decode(data, &approval); err != nil {
		return nil, err
	}
	return &approval, nil
}

// List returns every cached approval, oldest request first
func (r *ApprovalRepository) List(ctx context.Context) ([]*entity.TaskApproval, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, `SELECT data FROM approvals ORDER BY requested_at, id`)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	approvals := make([]*entity.TaskApproval, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		var approval entity.TaskApproval
		if err := decode(data, &approval); err != nil {
			return nil, err
		}
		approvals = append(approvals, &approval)
	}
	return approvals, rows.Err()
}

// Delete removes an approval; a missing id is not an error
func (r *ApprovalRepository) Delete(ctx context.Context, id string) error {
	if _, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM approvals WHERE id = ?`, id); err != nil {
		r.logger.Error("Failed to delete approval", zap.String("approval_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete approval: %w", err)
	}
	return nil
}

// ReplaceAll overwrites the cached approvals
func (r *ApprovalRepository) ReplaceAll(ctx context.Context, approvals []*entity.TaskApproval) error {
	if _, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM approvals`); err != nil {
		r.logger.Error("Failed to clear approvals", zap.Error(err))
		return fmt.Errorf("failed to clear approvals: %w", err)
	}
	for _, approval := range approvals {
		if err := r.Save(ctx, approval); err != nil {
			return err
		}
	}
	return nil
}

// RekeyTask rewrites the task reference of approvals pointing at oldTaskID
func (r *ApprovalRepository) RekeyTask(ctx context.Context, oldTaskID, newTaskID string) error {
	rows, err := executor(ctx, r.db).QueryContext(ctx, `SELECT data FROM approvals WHERE task_id = ?`, oldTaskID)
	if err != nil {
		r.logger.Error("Failed to load approvals for rekey", zap.String("task_id", oldTaskID), zap.Error(err))
		return fmt.Errorf("failed to load approvals: %w", err)
	}

	var affected []*entity.TaskApproval
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan approval: %w", err)
		}
		var approval entity.TaskApproval
		if err := decode(data, &approval); err != nil {
			rows.Close()
			return err
		}
		affected = append(affected, &approval)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate approvals: %w", err)
	}

	// rows must be closed before writing: an in-memory database has one connection
	for _, approval := range affected {
		approval.TaskID = newTaskID
		if err := r.Save(ctx, approval); err != nil {
			return err
		}
	}
	return nil
}

// Verify interface compliance
var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
