// Package cache is the caching contract used by the persistence services and
// an expiring LRU implementation of it.
//
// Callers hold a Service that may be nil; the package-level helpers treat a
// nil Service as a cache that never hits.
package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
)

// Category selects which kinds of objects a cache holds.
type Category uint8

const (
	// CategoryModels holds converted models keyed by entity key.
	CategoryModels Category = 1 << iota
	// CategoryRows holds raw rows keyed by "{TypeName}.{Key}".
	CategoryRows
	// CategoryAssociations holds current association sets keyed by owner.
	CategoryAssociations

	CategoryNone Category = 0
	CategoryAll           = CategoryModels | CategoryRows | CategoryAssociations
)

// Has reports whether every bit of o is set in c.
func (c Category) Has(o Category) bool { return o != 0 && c&o == o }

func (c Category) String() string {
	if c == CategoryNone {
		return "none"
	}
	var names []string
	if c.Has(CategoryModels) {
		names = append(names, am.CacheCategoryModels)
	}
	if c.Has(CategoryRows) {
		names = append(names, am.CacheCategoryRows)
	}
	if c.Has(CategoryAssociations) {
		names = append(names, am.CacheCategoryAssociations)
	}
	return strings.Join(names, "|")
}

// ParseCategories turns configured category names into a bitmask.
func ParseCategories(names []string) (Category, error) {
	var c Category
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case am.CacheCategoryModels:
			c |= CategoryModels
		case am.CacheCategoryRows:
			c |= CategoryRows
		case am.CacheCategoryAssociations:
			c |= CategoryAssociations
		default:
			return CategoryNone, errors.Newf("unknown cache category %q", n)
		}
	}
	return c, nil
}

// Service is the caching contract.
type Service interface {
	Get(key string) (any, bool)
	Add(key string, value any)
	Remove(key string)
	// Caches reports whether objects of category c are eligible.
	Caches(c Category) bool
}

// ModelKey is the cache key of a converted model.
func ModelKey(key uuid.UUID) string { return key.String() }

// RowKey is the cache key of a raw row.
func RowKey(typeName string, key uuid.UUID) string { return typeName + "." + key.String() }

// AssociationKey is the cache key of an owner's current association set.
func AssociationKey(table string, owner uuid.UUID) string {
	return fmt.Sprintf("%s@%s", table, owner)
}

// Lookup reads key when s caches category c.
func Lookup(s Service, c Category, key string) (any, bool) {
	if s == nil || !s.Caches(c) {
		return nil, false
	}
	return s.Get(key)
}

// Store writes key when s caches category c.
func Store(s Service, c Category, key string, value any) {
	if s == nil || !s.Caches(c) {
		return
	}
	s.Add(key, value)
}

// Evict removes key, whatever its category.
func Evict(s Service, key string) {
	if s != nil {
		s.Remove(key)
	}
}

// LRU is a size-bounded cache whose entries expire after a fixed TTL.
type LRU struct {
	entries    *expirable.LRU[string, any]
	categories Category
	logger     *zap.SugaredLogger
}

// NewLRU builds a cache holding at most size entries for ttl each.
func NewLRU(size int, ttl time.Duration, categories Category, log *zap.SugaredLogger) *LRU {
	return &LRU{
		entries:    expirable.NewLRU[string, any](size, nil, ttl),
		categories: categories,
		logger:     logger.OrNop(log),
	}
}

// New builds the configured cache. It returns a nil Service when no category
// is enabled.
func New(cfg am.CacheConfig, log *zap.SugaredLogger) (Service, error) {
	categories, err := ParseCategories(cfg.Categories)
	if err != nil {
		return nil, err
	}
	if categories == CategoryNone {
		logger.OrNop(log).Debugw("caching disabled")
		return nil, nil
	}
	if cfg.Size <= 0 {
		return nil, errors.Newf("cache size must be positive, got %d", cfg.Size)
	}
	c := NewLRU(cfg.Size, cfg.Expiry(), categories, log)
	c.logger.Debugw("cache configured",
		"categories", categories.String(),
		"size", cfg.Size,
		"expiry", cfg.Expiry().String())
	return c, nil
}

func (c *LRU) Get(key string) (any, bool) { return c.entries.Get(key) }
func (c *LRU) Add(key string, value any)  { c.entries.Add(key, value) }
func (c *LRU) Remove(key string)          { c.entries.Remove(key) }
func (c *LRU) Caches(cat Category) bool   { return c.categories.Has(cat) }

// Len returns the number of live entries.
func (c *LRU) Len() int { return c.entries.Len() }

// Purge drops every entry.
func (c *LRU) Purge() { c.entries.Purge() }
