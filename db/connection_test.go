package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
)

func TestOpen(t *testing.T) {
	t.Run("opens database successfully", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var foreignKeys int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
		assert.Equal(t, 1, foreignKeys)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})

	t.Run("pragmas apply to every pooled connection", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "pool.db")
		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		conn1, err := db.Conn(t.Context())
		require.NoError(t, err)
		defer conn1.Close()
		conn2, err := db.Conn(t.Context())
		require.NoError(t, err)
		defer conn2.Close()

		for _, c := range []*sql.Conn{conn1, conn2} {
			var fk int
			require.NoError(t, c.QueryRowContext(t.Context(), "PRAGMA foreign_keys").Scan(&fk))
			assert.Equal(t, 1, fk)
		}
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		db, err := Open("/invalid/nonexistent/path/db.sqlite", nil)
		if err == nil && db != nil {
			err = db.Ping()
			db.Close()
		}
		require.Error(t, err)
		assert.NotNil(t, errors.GetStack(err), "error should have stack trace from errors.Wrap")
	})

	t.Run("creates database file if it doesn't exist", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "new.db")
		_, err := os.Stat(dbPath)
		assert.True(t, os.IsNotExist(err))

		db, err := Open(dbPath, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer db.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{":memory:", ":memory:?_foreign_keys=on&_busy_timeout=10&_txlock=immediate"},
		{"/tmp/a.db", "file:/tmp/a.db?_foreign_keys=on&_busy_timeout=10&_txlock=immediate"},
		{"file:x?mode=memory&cache=shared", "file:x?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=10&_txlock=immediate"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, sqliteDSN(tt.path, 10))
		})
	}
}

func TestOpenConfig_SelectsDriver(t *testing.T) {
	var gotDriver, gotDSN string
	prev := sqlOpen
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return nil, errors.New("stop here")
	}
	t.Cleanup(func() { sqlOpen = prev })

	_, err := OpenConfig(am.DatabaseConfig{Driver: am.DriverPostgres, DSN: "postgres://cdr@db/cdr"}, nil)
	require.Error(t, err)
	assert.Equal(t, am.DriverPostgres, gotDriver)
	assert.Equal(t, "postgres://cdr@db/cdr", gotDSN)

	_, err = OpenConfig(am.DatabaseConfig{Driver: am.DriverSQLite, Path: "/srv/cdr.db", BusyTimeoutMS: 250}, nil)
	require.Error(t, err)
	assert.Equal(t, am.DriverSQLite, gotDriver)
	assert.Contains(t, gotDSN, "_busy_timeout=250")

	_, err = OpenConfig(am.DatabaseConfig{Driver: "oracle"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpenPostgres_RequiresDSN(t *testing.T) {
	_, err := OpenPostgres("  ", nil)
	require.Error(t, err)
}

func TestOpenConfig_AppliesPoolLimit(t *testing.T) {
	db, err := OpenConfig(am.DatabaseConfig{
		Driver:       am.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "limit.db"),
		MaxOpenConns: 3,
	}, nil)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 3, db.Stats().MaxOpenConnections)
}
