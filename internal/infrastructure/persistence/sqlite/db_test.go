package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Exec(`CREATE TABLE marks (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	db := NewDB(conn, zap.NewNop())
	db.backoff = time.Millisecond
	return db
}

func count(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM marks`).Scan(&n))
	return n
}

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsBusy(fmt.Errorf("save task: %w", sqlite3.Error{Code: sqlite3.ErrLocked})))
	assert.False(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, IsBusy(errors.New("database is locked")))
	assert.False(t, IsBusy(nil))
}

func TestWithTransaction_RetriesWhileBusy(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	calls := 0
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		calls++
		if _, err := Executor(ctx, db.DB).ExecContext(ctx, `INSERT INTO marks (id) VALUES (?)`, fmt.Sprint(calls)); err != nil {
			return err
		}
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, count(t, db), "busy attempts roll back")
}

func TestWithTransaction_GivesUpAfterRetries(t *testing.T) {
	db := openDB(t)

	calls := 0
	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrLocked}
	})
	assert.True(t, IsBusy(err))
	assert.Equal(t, defaultBusyRetries+1, calls)
}

func TestWithTransaction_OtherErrorsAreNotRetried(t *testing.T) {
	db := openDB(t)
	boom := errors.New("boom")

	calls := 0
	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithTransaction_NestedJoinsOuter(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		outer := txFrom(ctx)
		require.NotNil(t, outer)
		return db.WithTransaction(ctx, func(inner context.Context) error {
			assert.Same(t, outer, txFrom(inner))
			_, err := Executor(inner, db.DB).ExecContext(inner, `INSERT INTO marks (id) VALUES ('a')`)
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db))
}
