package am

import "github.com/teranos/cdr/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path cannot be empty for the sqlite3 driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn cannot be empty for the pgx driver (set CDR_DATABASE_DSN)")
		}
	default:
		return errors.Newf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.MaxOpenConns < 0 {
		return errors.Newf("database.max_open_conns must be >= 0, got %d", c.Database.MaxOpenConns)
	}
	if c.Database.BusyTimeoutMS < 0 {
		return errors.Newf("database.busy_timeout_ms must be >= 0, got %d", c.Database.BusyTimeoutMS)
	}

	if c.Persistence.PageChunkSize <= 0 {
		return errors.Newf("persistence.page_chunk_size must be > 0, got %d", c.Persistence.PageChunkSize)
	}

	for _, category := range c.Cache.Categories {
		switch category {
		case CacheCategoryModels, CacheCategoryRows, CacheCategoryAssociations:
		default:
			return errors.Newf("cache.categories: unknown category %q", category)
		}
	}
	// Zero means caching disabled; negative is invalid
	if c.Cache.Size < 0 {
		return errors.Newf("cache.size must be >= 0, got %d", c.Cache.Size)
	}
	if c.Cache.ExpirySeconds < 0 {
		return errors.Newf("cache.expiry_seconds must be >= 0, got %d", c.Cache.ExpirySeconds)
	}

	switch c.Query.Registry {
	case RegistryMemory, RegistrySQL:
	default:
		return errors.Newf("query.registry must be %q or %q, got %q", RegistryMemory, RegistrySQL, c.Query.Registry)
	}
	if c.Query.RetentionSeconds <= 0 {
		return errors.Newf("query.retention_seconds must be > 0, got %d", c.Query.RetentionSeconds)
	}
	if c.Query.Registry == RegistryMemory && c.Query.MaxRegistrations <= 0 {
		return errors.Newf("query.max_registrations must be > 0, got %d", c.Query.MaxRegistrations)
	}
	return nil
}
