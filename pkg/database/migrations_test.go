package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: MemoryPath, MaxOpenConns: 4, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrator_EmbeddedSchema(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, zap.NewNop())

	require.NoError(t, m.RunMigrations())
	// a second run is a no-op
	require.NoError(t, m.RunMigrations())

	for _, table := range []string{"tasks", "approvals", "history", "pending_operations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestMigrator_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_second.sql": {Data: []byte("ALTER TABLE t ADD COLUMN b TEXT;")},
		"m/002_first.sql":  {Data: []byte("CREATE TABLE t (a TEXT);")},
		"m/README.md":      {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, 10, migrations[1].Version)

	db := openMemory(t)
	require.NoError(t, NewMigrator(db, zap.NewNop()).RunMigrationsFS(fsys, "m"))
	_, err = db.Exec("INSERT INTO t (a, b) VALUES ('x', 'y')")
	assert.NoError(t, err)
}

func TestMigrator_RejectsBadFilename(t *testing.T) {
	fsys := fstest.MapFS{"m/initial.sql": {Data: []byte("SELECT 1;")}}
	_, err := loadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestMigrator_RejectsDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_tasks.sql": {Data: []byte("CREATE TABLE a (x TEXT);")},
		"m/001_queue.sql": {Data: []byte("CREATE TABLE b (x TEXT);")},
		"m/002_extra.sql": {Data: []byte("CREATE TABLE c (x TEXT);")},
	}
	_, err := loadMigrations(fsys, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 1")

	_, err = loadMigrations(fstest.MapFS{"m/000_zero.sql": {Data: []byte("SELECT 1;")}}, "m")
	assert.Error(t, err)
}

func TestMigrator_RefusesNewerCache(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, zap.NewNop())

	version, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	require.NoError(t, m.RunMigrations())
	version, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	older := fstest.MapFS{"m/001_local_cache.sql": {Data: []byte("SELECT 1;")}}
	err = m.RunMigrationsFS(older, "m")
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}
