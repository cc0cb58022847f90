package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/application/port"
)

const (
	defaultBusyRetries = 3
	defaultBusyBackoff = 20 * time.Millisecond
)

type txKey struct{}

// DB is the device's local cache connection. The HTTP handlers and the drain
// worker write through it concurrently, so a transaction that SQLite rejects
// as busy or locked is run again a few times before the error surfaces.
type DB struct {
	*sql.DB
	logger  *zap.Logger
	retries int
	backoff time.Duration
}

// NewDB wraps sqlDB with the default busy retry policy
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:      sqlDB,
		logger:  logger,
		retries: defaultBusyRetries,
		backoff: defaultBusyBackoff,
	}
}

// WithTransaction runs fn in one transaction. Nested calls join the
// transaction already carried by ctx and are never retried on their own.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	for attempt := 1; ; attempt++ {
		err := db.runTx(ctx, fn)
		if err == nil || !IsBusy(err) || attempt > db.retries {
			return err
		}

		db.logger.Warn("Local cache busy, retrying transaction",
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(db.backoff * time.Duration(attempt)):
		}
	}
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsBusy reports whether err is SQLite refusing the write because another
// connection holds the lock.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Executor returns the transaction carried by ctx, or db when there is none.
// Repositories call it so their statements join WithTransaction scopes.
func Executor(ctx context.Context, db *sql.DB) Querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db
}

// Querier covers both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var _ port.TransactionManager = (*DB)(nil)
