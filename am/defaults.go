package am

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "cdr.db")
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.busy_timeout_ms", 5000)

	// Persistence policies
	v.SetDefault("persistence.full_versioning", true)
	v.SetDefault("persistence.association_versioning", true)
	v.SetDefault("persistence.logical_deletion", true)
	v.SetDefault("persistence.optimistic_concurrency", false)
	v.SetDefault("persistence.page_chunk_size", 100)

	// Caches
	v.SetDefault("cache.categories", []string{CacheCategoryModels, CacheCategoryRows})
	v.SetDefault("cache.expiry_seconds", 300)
	v.SetDefault("cache.size", 4096)

	// Stateful queries
	v.SetDefault("query.registry", RegistryMemory)
	v.SetDefault("query.retention_seconds", 3600)
	v.SetDefault("query.max_registrations", 1024)

	// Logging
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}
