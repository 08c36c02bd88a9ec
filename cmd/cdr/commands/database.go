package commands

import (
	"database/sql"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/cache"
	"github.com/teranos/cdr/db"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/persistence"
	"github.com/teranos/cdr/querystate"
)

// openDatabase opens and migrates the database selected by cfg.
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	database, err := db.OpenConfig(cfg.Database, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Database.Driver)
	}

	if err := db.Migrate(database, cfg.Database.Driver, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return database, nil
}

// repository is an open database with the persistence services over it.
type repository struct {
	*persistence.Repository
	db *sql.DB
}

func (r *repository) Close() error {
	return r.db.Close()
}

// openRepository wires the persistence services from cfg: cache, query
// registry and policies all come from the configuration.
func openRepository(cfg *am.Config) (*repository, error) {
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dialect, err := orm.DialectFor(cfg.Database.Driver)
	if err != nil {
		database.Close()
		return nil, err
	}
	provider := orm.NewProvider(database, dialect, logger.Logger)

	c, err := cache.New(cfg.Cache, logger.Logger)
	if err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to configure cache")
	}
	registry, err := querystate.New(cfg.Query, provider, logger.Logger)
	if err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to configure query registry")
	}

	repo, err := persistence.New(cfg.Persistence, provider, persistence.Options{
		Cache:    c,
		Registry: registry,
		Logger:   logger.Logger,
	})
	if err != nil {
		database.Close()
		return nil, err
	}
	return &repository{Repository: repo, db: database}, nil
}
