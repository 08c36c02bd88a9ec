// Package am loads the repository configuration ("application manifest").
//
// Configuration is read with Viper from TOML files merged in precedence
// order (system, user, project) with CDR_-prefixed environment variables on
// top. Components never read Viper directly; they receive the typed sections
// below.
package am

import "time"

// Config represents the core repository configuration
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Query       QueryConfig       `mapstructure:"query"`
	Log         LogConfig         `mapstructure:"log"`
}

// DatabaseConfig selects and tunes the relational backing store
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"` // sqlite3 or pgx
	Path          string `mapstructure:"path"`   // sqlite file path (":memory:" allowed)
	DSN           string `mapstructure:"dsn"`    // postgres connection string
	MaxOpenConns  int    `mapstructure:"max_open_conns"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
}

// PersistenceConfig holds the versioning and deletion policies
type PersistenceConfig struct {
	FullVersioning        bool `mapstructure:"full_versioning"`        // insert a new row per update
	AssociationVersioning bool `mapstructure:"association_versioning"` // stamp obsolete_seq instead of deleting links
	LogicalDeletion       bool `mapstructure:"logical_deletion"`       // obsolete via status concept when available
	OptimisticConcurrency bool `mapstructure:"optimistic_concurrency"` // reject updates carrying a stale version key
	PageChunkSize         int  `mapstructure:"page_chunk_size"`        // rows fetched per round trip while enumerating
}

// CacheConfig configures the model and row caches
type CacheConfig struct {
	Categories    []string `mapstructure:"categories"` // models, rows, associations
	ExpirySeconds int      `mapstructure:"expiry_seconds"`
	Size          int      `mapstructure:"size"`
}

// Expiry returns the configured expiry as a duration.
func (c CacheConfig) Expiry() time.Duration {
	return time.Duration(c.ExpirySeconds) * time.Second
}

// QueryConfig configures stateful query registration
type QueryConfig struct {
	Registry         string `mapstructure:"registry"` // memory or sql
	RetentionSeconds int    `mapstructure:"retention_seconds"`
	MaxRegistrations int    `mapstructure:"max_registrations"` // memory registry capacity
}

// Retention returns the configured retention as a duration.
func (c QueryConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// LogConfig configures the global logger
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Supported query registries
const (
	RegistryMemory = "memory"
	RegistrySQL    = "sql"
)

// Cache category names accepted in cache.categories
const (
	CacheCategoryModels       = "models"
	CacheCategoryRows         = "rows"
	CacheCategoryAssociations = "associations"
)

// File system constants
const (
	DefaultDirPermissions = 0755
	EnvPrefix             = "CDR"
	ConfigFileName        = "am.toml"
)
