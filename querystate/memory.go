package querystate

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
)

type registration struct {
	keys    []uuid.UUID
	shape   string
	total   int
	created time.Time
}

// MemoryRegistry holds registrations in process memory. Entries expire after
// the retention period or when capacity forces the least recently used out.
type MemoryRegistry struct {
	mu      sync.Mutex // serializes check-then-add in RegisterQuerySet
	entries *expirable.LRU[uuid.UUID, *registration]
	logger  *zap.SugaredLogger
}

// NewMemoryRegistry builds a registry for at most capacity query sets.
func NewMemoryRegistry(capacity int, retention time.Duration, log *zap.SugaredLogger) *MemoryRegistry {
	log = logger.OrNop(log)
	return &MemoryRegistry{
		entries: expirable.NewLRU[uuid.UUID, *registration](capacity, func(id uuid.UUID, _ *registration) {
			log.Debugw("query registration evicted", logger.FieldQueryID, id)
		}, retention),
		logger: log,
	}
}

func (r *MemoryRegistry) RegisterQuerySet(_ context.Context, id uuid.UUID, keys []uuid.UUID, shape string, totalCount int) error {
	if err := validateRegistration(id, totalCount); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries.Peek(id); ok {
		return errors.NewConflictError("query %s is already registered", id)
	}
	r.entries.Add(id, &registration{
		keys:    slices.Clone(keys),
		shape:   shape,
		total:   totalCount,
		created: now(),
	})
	r.logger.Debugw("query registered",
		logger.FieldQueryID, id,
		logger.FieldCount, len(keys),
		logger.FieldTotalCount, totalCount)
	return nil
}

func (r *MemoryRegistry) IsRegistered(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := r.entries.Get(id)
	return ok, nil
}

func (r *MemoryRegistry) GetResultPage(_ context.Context, id uuid.UUID, offset, count int) ([]uuid.UUID, error) {
	reg, ok := r.entries.Get(id)
	if !ok {
		return nil, notRegistered(id)
	}
	return page(reg.keys, offset, count), nil
}

func (r *MemoryRegistry) GetTotalCount(_ context.Context, id uuid.UUID) (int, error) {
	reg, ok := r.entries.Get(id)
	if !ok {
		return 0, notRegistered(id)
	}
	return reg.total, nil
}

// Shape returns the recorded query shape of a registration.
func (r *MemoryRegistry) Shape(id uuid.UUID) (string, bool) {
	reg, ok := r.entries.Get(id)
	if !ok {
		return "", false
	}
	return reg.shape, true
}

// Len returns the number of live registrations.
func (r *MemoryRegistry) Len() int { return r.entries.Len() }
