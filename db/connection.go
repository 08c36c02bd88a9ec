package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
)

// SQLiteBusyTimeoutMS is the default time a sqlite connection waits on a lock.
const SQLiteBusyTimeoutMS = 5000

// sqlOpen is swapped in tests to observe driver/DSN selection.
var sqlOpen = sql.Open

// Open opens a SQLite database at the specified path with WAL journaling,
// foreign keys, a busy timeout and immediate write transactions.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	return openSQLite(path, SQLiteBusyTimeoutMS, log)
}

func openSQLite(path string, busyTimeoutMS int, log *zap.SugaredLogger) (*sql.DB, error) {
	log = logger.OrNop(log)
	log.Debugw("Opening database", "path", path, logger.FieldDriver, am.DriverSQLite)

	db, err := sqlOpen(am.DriverSQLite, sqliteDSN(path, busyTimeoutMS))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// journal_mode is persistent per database file; the rest travel in the DSN
	// so every pooled connection gets them.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	log.Infow("Database opened successfully",
		"path", path,
		logger.FieldDriver, am.DriverSQLite,
		"foreign_keys", true,
	)
	return db, nil
}

// sqliteDSN appends connection parameters understood by mattn/go-sqlite3.
func sqliteDSN(path string, busyTimeoutMS int) string {
	params := fmt.Sprintf("_foreign_keys=on&_busy_timeout=%d&_txlock=immediate", busyTimeoutMS)
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		return "file:" + path + "?" + params
	}
	return path + "?" + params
}

// OpenPostgres opens a PostgreSQL database through the pgx database/sql driver.
func OpenPostgres(dsn string, log *zap.SugaredLogger) (*sql.DB, error) {
	log = logger.OrNop(log)
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := sqlOpen(am.DriverPostgres, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to reach postgres database")
	}

	log.Infow("Database opened successfully", logger.FieldDriver, am.DriverPostgres)
	return db, nil
}

// OpenConfig opens the database selected by cfg.
func OpenConfig(cfg am.DatabaseConfig, log *zap.SugaredLogger) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case am.DriverPostgres:
		db, err = OpenPostgres(cfg.DSN, log)
	case am.DriverSQLite, "":
		timeout := cfg.BusyTimeoutMS
		if timeout <= 0 {
			timeout = SQLiteBusyTimeoutMS
		}
		db, err = openSQLite(cfg.Path, timeout, log)
	default:
		return nil, errors.Newf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}

// OpenWithMigrations opens a SQLite database and brings its schema up to date.
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := Migrate(db, am.DriverSQLite, log); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return db, nil
}
