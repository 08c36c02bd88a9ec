package testing

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/db"
)

var memSeq atomic.Int64

// CreateTestDB creates a migrated in-memory SQLite database private to the
// test. The pool is limited to one connection so every unit-of-work sees the
// same memory database. Cleanup is registered via t.Cleanup().
func CreateTestDB(t testing.TB) *sql.DB {
	t.Helper()

	name := fmt.Sprintf("file:cdrtest%d?mode=memory&cache=shared", memSeq.Add(1))
	conn, err := db.Open(name, nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	if err := db.Migrate(conn, am.DriverSQLite, nil); err != nil {
		conn.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

// CreateFileTestDB creates a migrated file-backed SQLite database under the
// test's temp dir, for tests that need several concurrent connections.
func CreateFileTestDB(t testing.TB) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "cdr.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}
