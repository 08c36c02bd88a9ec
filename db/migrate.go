package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
)

//go:embed sqlite/migrations/*.sql postgres/migrations/*.sql
var migrations embed.FS

func migrationDir(driver string) (string, error) {
	switch driver {
	case am.DriverSQLite:
		return "sqlite/migrations", nil
	case am.DriverPostgres:
		return "postgres/migrations", nil
	default:
		return "", errors.Newf("no migrations for driver %q", driver)
	}
}

// Migrate runs all pending migrations for the given driver.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, driver string, log *zap.SugaredLogger) error {
	log = logger.OrNop(log)

	dir, err := migrationDir(driver)
	if err != nil {
		return err
	}
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	// 000_create_schema_migrations.sql runs first
	var migrationFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	existsQuery := "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)"
	recordQuery := "INSERT INTO schema_migrations (version) VALUES (?)"
	if driver == am.DriverPostgres {
		existsQuery = strings.Replace(existsQuery, "?", "$1", 1)
		recordQuery = strings.Replace(recordQuery, "?", "$1", 1)
	}

	applied := 0
	for _, filename := range migrationFiles {
		version := strings.Split(filename, "_")[0]

		// schema_migrations is created by 000
		var exists bool
		if err := db.QueryRow(existsQuery, version).Scan(&exists); err != nil {
			if IsDatabaseClosed(err) {
				return errors.Wrap(ErrDatabaseClosed, "check migration state")
			}
			if version != "000" {
				return errors.Wrapf(err, "schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if exists {
			log.Debugw("Skipping migration (already applied)", "migration", filename, logger.FieldVersion, version)
			continue
		}

		sqlBytes, err := migrations.ReadFile(path.Join(dir, filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		log.Infow("Applying migration", "migration", filename, logger.FieldVersion, version)

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}
		if _, err := tx.Exec(recordQuery, version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	log.Infow("Migrations complete",
		logger.FieldDriver, driver,
		"total_migrations", len(migrationFiles),
		"applied", applied,
	)
	return nil
}
