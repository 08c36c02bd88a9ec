// Package querystate keeps the server-side key lists behind stateful query
// result sets, so a paging cursor stays valid across separate requests.
package querystate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/orm"
)

// Registry stores registered query sets. Registrations are immutable once
// created and expire per the registry's retention.
type Registry interface {
	// RegisterQuerySet records keys under id. Registering an id twice is a
	// conflict.
	RegisterQuerySet(ctx context.Context, id uuid.UUID, keys []uuid.UUID, shape string, totalCount int) error
	IsRegistered(ctx context.Context, id uuid.UUID) (bool, error)
	// GetResultPage returns up to count keys starting at offset. A negative
	// count returns the rest of the set.
	GetResultPage(ctx context.Context, id uuid.UUID, offset, count int) ([]uuid.UUID, error)
	GetTotalCount(ctx context.Context, id uuid.UUID) (int, error)
}

// New builds the configured registry. The provider is only used by the SQL
// registry.
func New(cfg am.QueryConfig, p *orm.Provider, log *zap.SugaredLogger) (Registry, error) {
	switch cfg.Registry {
	case am.RegistryMemory, "":
		return NewMemoryRegistry(cfg.MaxRegistrations, cfg.Retention(), log), nil
	case am.RegistrySQL:
		if p == nil {
			return nil, errors.New("sql query registry requires a database")
		}
		return NewSQLRegistry(p, cfg.Retention(), log), nil
	default:
		return nil, errors.Newf("unknown query registry %q", cfg.Registry)
	}
}

func validateRegistration(id uuid.UUID, totalCount int) error {
	if id == uuid.Nil {
		return errors.NewArgumentError("query id is required")
	}
	if totalCount < 0 {
		return errors.NewArgumentError("total count must not be negative, got %d", totalCount)
	}
	return nil
}

func notRegistered(id uuid.UUID) error {
	return errors.NewNotFoundError("query %s is not registered", id)
}

// page slices keys the way GetResultPage promises.
func page(keys []uuid.UUID, offset, count int) []uuid.UUID {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(keys) {
		return []uuid.UUID{}
	}
	end := len(keys)
	if count >= 0 && offset+count < end {
		end = offset + count
	}
	out := make([]uuid.UUID, end-offset)
	copy(out, keys[offset:end])
	return out
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
