package db

import (
	"path/filepath"
	"testing"
)

// setupTestDB opens a migrated database in a temp dir and closes it when the
// test ends.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "odometry_test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
