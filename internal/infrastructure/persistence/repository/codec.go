package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/tasksync/internal/infrastructure/persistence/sqlite"
)

// executor returns the transaction carried by ctx, or db outside one
func executor(ctx context.Context, db *sql.DB) sqlite.Querier {
	return sqlite.Executor(ctx, db)
}

func encode(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(data), nil
}

func decode(data string, v interface{}) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

// unixNano keeps ordering columns as integers so sqlite compares them numerically
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
