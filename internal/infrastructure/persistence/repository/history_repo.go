package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append creates a new history record. Re-appending an id overwrites it.
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	query := `
		INSERT INTO history (id, task_id, action, actor_id, family_id, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task_id = excluded.task_id,
			data = excluded.data
	`

	data, err := encode(entry)
	if err != nil {
		return err
	}

	_, err = executor(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.TaskID,
		entry.Action,
		entry.ActorID,
		entry.FamilyID,
		unixNano(entry.Timestamp),
		data,
	)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.String("task_id", entry.TaskID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

// List returns the newest entries first; limit <= 0 means no limit
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]*entity.HistoryEntry, error) {
	query := `SELECT data FROM history ORDER BY seq DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list history", zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := make([]*entity.HistoryEntry, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		var entry entity.HistoryEntry
		if err := decode(data, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// RekeyTask rewrites the task reference of entries recorded against oldTaskID
func (r *HistoryRepository) RekeyTask(ctx context.Context, oldTaskID, newTaskID string) error {
	query := `
		UPDATE history
		SET task_id = ?, data = json_set(data, '$.task_id', ?)
		WHERE task_id = ?
	`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, newTaskID, newTaskID, oldTaskID); err != nil {
		r.logger.Error("Failed to rekey history",
			zap.String("old_id", oldTaskID),
			zap.String("new_id", newTaskID),
			zap.Error(err))
		return fmt.Errorf("failed to rekey history: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
