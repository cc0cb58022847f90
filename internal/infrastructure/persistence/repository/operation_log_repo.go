package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"go.uber.org/zap"
)

// OperationLogRepository implements port.OperationLog on the pending_operations table
type OperationLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOperationLogRepository creates a new operation log repository
func NewOperationLogRepository(db *sql.DB, logger *zap.Logger) port.OperationLog {
	return &OperationLogRepository{
		db:     db,
		logger: logger,
	}
}

const operationColumns = `seq, kind, entity_type, entity_id, payload, enqueued_at, attempts, last_error`

// Append stores op and assigns its sequence number
func (r *OperationLogRepository) Append(ctx context.Context, op *entity.PendingOperation) (int64, error) {
	query := `
		INSERT INTO pending_operations (kind, entity_type, entity_id, payload, enqueued_at, attempts, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var payload sql.NullString
	if len(op.Payload) > 0 {
		payload = sql.NullString{String: string(op.Payload), Valid: true}
	}

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		op.Kind,
		op.EntityType,
		op.EntityID,
		payload,
		unixNano(op.EnqueuedAt),
		op.Attempts,
		op.LastError,
	)
	if err != nil {
		r.logger.Error("Failed to append pending operation",
			zap.String("kind", op.Kind),
			zap.String("entity", op.EntityKey()),
			zap.Error(err))
		return 0, fmt.Errorf("failed to append operation: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return seq, nil
}

// List returns pending operations in enqueue order
func (r *OperationLogRepository) List(ctx context.Context) ([]*entity.PendingOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM pending_operations ORDER BY seq`
	return r.query(ctx, query)
}

// ListByEntity returns pending operations for one entity in enqueue order
func (r *OperationLogRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*entity.PendingOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM pending_operations
		WHERE entity_type = ? AND entity_id = ? ORDER BY seq`
	return r.query(ctx, query, entityType, entityID)
}

// Delete removes a confirmed operation
func (r *OperationLogRepository) Delete(ctx context.Context, seq int64) error {
	if _, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM pending_operations WHERE seq = ?`, seq); err != nil {
		r.logger.Error("Failed to delete pending operation", zap.Int64("seq", seq), zap.Error(err))
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt
func (r *OperationLogRepository) MarkFailed(ctx context.Context, seq int64, errMsg string) error {
	query := `UPDATE pending_operations SET attempts = attempts + 1, last_error = ? WHERE seq = ?`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, errMsg, seq); err != nil {
		r.logger.Error("Failed to mark pending operation failed", zap.Int64("seq", seq), zap.Error(err))
		return fmt.Errorf("failed to mark operation failed: %w", err)
	}
	return nil
}

// Rekey rewrites entity ids and payload references from oldID to newID
func (r *OperationLogRepository) Rekey(ctx context.Context, oldID, newID string) (int, error) {
	ops, err := r.List(ctx)
	if err != nil {
		return 0, err
	}

	query := `UPDATE pending_operations SET entity_id = ?, payload = ? WHERE seq = ?`
	n := 0
	for _, op := range ops {
		if !op.Rekey(oldID, newID) {
			continue
		}
		var payload sql.NullString
		if len(op.Payload) > 0 {
			payload = sql.NullString{String: string(op.Payload), Valid: true}
		}
		if _, err := executor(ctx, r.db).ExecContext(ctx, query, op.EntityID, payload, op.Seq); err != nil {
			r.logger.Error("Failed to rekey pending operation", zap.Int64("seq", op.Seq), zap.Error(err))
			return n, fmt.Errorf("failed to rekey operation: %w", err)
		}
		n++
	}
	return n, nil
}

// Count returns the number of pending operations
func (r *OperationLogRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := executor(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	return n, nil
}

func (r *OperationLogRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.PendingOperation, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list pending operations", zap.Error(err))
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := make([]*entity.PendingOperation, 0)
	for rows.Next() {
		var (
			op         entity.PendingOperation
			payload    sql.NullString
			enqueuedAt int64
		)
		if err := rows.Scan(&op.Seq, &op.Kind, &op.EntityType, &op.EntityID, &payload, &enqueuedAt, &op.Attempts, &op.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		if payload.Valid {
			op.Payload = []byte(payload.String)
		}
		if enqueuedAt != 0 {
			op.EnqueuedAt = time.Unix(0, enqueuedAt).UTC()
		}
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}

// Verify interface compliance
var _ port.OperationLog = (*OperationLogRepository)(nil)
