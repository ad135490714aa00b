package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPragmasApplied(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var synchronous int
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
	assert.Equal(t, 1, synchronous) // NORMAL

	var tempStore int
	require.NoError(t, db.QueryRow("PRAGMA temp_store").Scan(&tempStore))
	assert.Equal(t, 2, tempStore) // MEMORY

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestMigrations(t *testing.T) {
	db := setupTestDB(t)

	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp())

	for _, table := range []string{"sessions", "pose_samples"} {
		var n int
		require.NoError(t, db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&n))
		assert.Equal(t, 1, n, "table %s", table)
	}
}

func TestMigrateDown(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.MigrateDown())

	_, _, err := db.MigrateVersion()
	assert.True(t, errors.Is(err, migrate.ErrNilVersion), "got %v", err)

	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sessions'`,
	).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestOpenDB_FreshHasNoVersion(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer db.Close()

	_, _, err = db.MigrateVersion()
	assert.ErrorIs(t, err, migrate.ErrNilVersion)
}

func TestNewDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestNewDB_BadPath(t *testing.T) {
	_, err := NewDB(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	assert.Error(t, err)
}
