package persistence

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/cdr/cache"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/query"
	"github.com/teranos/cdr/querystate"
)

// Validator inspects a model about to be written. Issues at error priority
// abort the write; the rest are attached to models that can carry them.
type Validator[T any] func(T) []errors.Issue

// issueCarrier is a model that stores non-fatal validation issues.
type issueCarrier interface {
	AttachIssues([]errors.Issue) error
}

// backend is the storage strategy behind a Service: identity rows, soft
// deleted entities or versioned acts.
type backend[T model.Model] interface {
	typeName() string
	// cachesModels reports whether converted models go to the model cache.
	cachesModels() bool
	get(u *orm.UnitOfWork, key uuid.UUID, version *uuid.UUID) (T, bool, error)
	exists(u *orm.UnitOfWork, key uuid.UUID) (bool, error)
	insert(u *orm.UnitOfWork, m T, prov uuid.UUID) (T, error)
	update(u *orm.UnitOfWork, m T, prov uuid.UUID) (T, error)
	obsolete(u *orm.UnitOfWork, key uuid.UUID, prov uuid.UUID) (T, error)
	// cacheKeys lists the cache entries a write to key invalidates.
	cacheKeys(key uuid.UUID) []string
	source() source[T]
}

// source is what result sets query: a table, the column holding model keys,
// and a loader converting its rows.
type source[T any] interface {
	table() *orm.Table
	keyColumn() string
	// scope restricts rows to those a key lookup may return.
	scope() orm.Expr
	// filter is scope, implicit filters and the translated predicate.
	filter(p query.Predicate) (orm.Expr, error)
	orderColumn(path string) (string, error)
	load(u *orm.UnitOfWork, s *orm.Select) ([]T, error)
}

// Service is the persistence contract for one model type. Every call opens
// its own unit of work, so a Service is safe for concurrent use once its
// hooks are registered.
type Service[T model.Model] struct {
	backend    backend[T]
	provider   *orm.Provider
	cache      cache.Service
	provenance *Provenance
	validate   Validator[T]
	persisting []Interceptor[T]
	persisted  []Observer[T]
	metrics    *Metrics
	registry   querystate.Registry
	chunk      int
	logger     *zap.SugaredLogger
}

type serviceDeps struct {
	provider   *orm.Provider
	cache      cache.Service
	provenance *Provenance
	metrics    *Metrics
	registry   querystate.Registry
	chunk      int
	logger     *zap.SugaredLogger
}

func newService[T model.Model](b backend[T], d serviceDeps) *Service[T] {
	chunk := d.chunk
	if chunk <= 0 {
		chunk = 100
	}
	return &Service[T]{
		backend:    b,
		provider:   d.provider,
		cache:      d.cache,
		provenance: d.provenance,
		metrics:    d.metrics,
		registry:   d.registry,
		chunk:      chunk,
		logger:     logger.OrNop(d.logger).With(logger.FieldType, b.typeName()),
	}
}

// Name returns the model type name the service persists.
func (s *Service[T]) Name() string { return s.backend.typeName() }

// SetValidator installs the business-rule validator run before writes.
func (s *Service[T]) SetValidator(v Validator[T]) { s.validate = v }

// Get returns the current version of key, or the exact version when version
// is not nil. A missing current record is the zero T and no error; a missing
// pinned version is a not-found error.
func (s *Service[T]) Get(ctx context.Context, key uuid.UUID, version *uuid.UUID) (T, error) {
	var zero T
	started := time.Now()
	if key == uuid.Nil {
		return zero, errors.NewArgumentError("key is required")
	}

	cacheable := version == nil && s.backend.cachesModels()
	if cacheable {
		v, hit := cache.Lookup(s.cache, cache.CategoryModels, cache.ModelKey(key))
		// the entry may hold another act class cached by a sibling service
		cached, typed := v.(T)
		hit = hit && typed
		if s.cache != nil && s.cache.Caches(cache.CategoryModels) {
			s.metrics.cacheLookup(s.Name(), hit)
		}
		if hit {
			s.metrics.observe(s.Name(), OpGet, started, nil)
			return cached.Clone().(T), nil
		}
	}

	m, found, err := s.read(ctx, func(u *orm.UnitOfWork) (T, bool, error) {
		return s.backend.get(u, key, version)
	})
	if err == nil && !found && version != nil {
		err = errors.NewNotFoundError("%s %s has no version %s", s.Name(), key, *version)
	}
	s.metrics.observe(s.Name(), OpGet, started, err)
	if err != nil || !found {
		return zero, err
	}
	if cacheable {
		cache.Store(s.cache, cache.CategoryModels, cache.ModelKey(key), m.Clone())
	}
	return m, nil
}

// Exists reports whether key names a stored record, consulting the model
// cache first.
func (s *Service[T]) Exists(ctx context.Context, key uuid.UUID) (bool, error) {
	if key == uuid.Nil {
		return false, errors.NewArgumentError("key is required")
	}
	if s.backend.cachesModels() {
		if v, hit := cache.Lookup(s.cache, cache.CategoryModels, cache.ModelKey(key)); hit {
			if _, typed := v.(T); typed {
				return true, nil
			}
		}
	}
	u, err := s.provider.Open(ctx, true)
	if err != nil {
		return false, translate(err, "open unit of work")
	}
	defer u.Close()
	ok, err := s.backend.exists(u, key)
	if err != nil {
		return false, translate(err, "probe "+s.Name())
	}
	return ok, nil
}

// read runs fn on a read-only unit of work.
func (s *Service[T]) read(ctx context.Context, fn func(u *orm.UnitOfWork) (T, bool, error)) (T, bool, error) {
	var zero T
	u, err := s.provider.Open(ctx, true)
	if err != nil {
		return zero, false, translate(err, "open unit of work")
	}
	defer u.Close()
	m, found, err := fn(u)
	if err != nil {
		return zero, false, translate(err, "read "+s.Name())
	}
	return m, found, nil
}

// Insert stores a new record and returns it as stored.
func (s *Service[T]) Insert(ctx context.Context, m T, mode Mode, actor string) (T, error) {
	if err := s.checkWrite(m, actor); err != nil {
		return m, err
	}
	prepared, err := s.prepare(m)
	if err != nil {
		return m, err
	}
	return s.write(ctx, OpInsert, m.GetKey(), m, prepared, mode, actor, func(u *orm.UnitOfWork, prov uuid.UUID) (T, error) {
		return s.backend.insert(u, prepared, prov)
	})
}

// Update writes m over the stored record with the same key.
func (s *Service[T]) Update(ctx context.Context, m T, mode Mode, actor string) (T, error) {
	if err := s.checkWrite(m, actor); err != nil {
		return m, err
	}
	if m.GetKey() == uuid.Nil {
		return m, errors.NewArgumentError("update of %s requires a key", s.Name())
	}
	prepared, err := s.prepare(m)
	if err != nil {
		return m, err
	}
	return s.write(ctx, OpUpdate, m.GetKey(), m, prepared, mode, actor, func(u *orm.UnitOfWork, prov uuid.UUID) (T, error) {
		return s.backend.update(u, prepared, prov)
	})
}

// Obsolete retires key and returns the record as it was last stored.
func (s *Service[T]) Obsolete(ctx context.Context, key uuid.UUID, mode Mode, actor string) (T, error) {
	var zero T
	if key == uuid.Nil {
		return zero, errors.NewArgumentError("key is required")
	}
	if actor == "" {
		return zero, errors.NewArgumentError("actor is required")
	}
	return s.write(ctx, OpObsolete, key, zero, zero, mode, actor, func(u *orm.UnitOfWork, prov uuid.UUID) (T, error) {
		return s.backend.obsolete(u, key, prov)
	})
}

func (s *Service[T]) checkWrite(m T, actor string) error {
	if isNil(m) {
		return errors.NewArgumentError("%s model is required", s.Name())
	}
	if actor == "" {
		return errors.NewArgumentError("actor is required")
	}
	return nil
}

// prepare clones m and applies validation. The caller's model is never
// modified.
func (s *Service[T]) prepare(m T) (T, error) {
	out := m.Clone().(T)
	if s.validate == nil {
		return out, nil
	}
	issues := s.validate(out)
	if errors.Fatal(issues) {
		return m, errors.NewValidationError(issues)
	}
	// an empty set clears the findings of an earlier version
	carrier, ok := any(out).(issueCarrier)
	if !ok {
		if len(issues) > 0 {
			s.logger.Debugw("validation issues dropped, model cannot carry them", logger.FieldCount, len(issues))
		}
		return out, nil
	}
	if err := carrier.AttachIssues(issues); err != nil {
		return m, errors.Wrap(err, "attach validation issues")
	}
	return out, nil
}

// write runs one mutation: interceptors, a transaction with provenance,
// commit or rollback per mode, cache invalidation and observers on commit.
func (s *Service[T]) write(ctx context.Context, op Operation, key uuid.UUID, original, prepared T, mode Mode, actor string,
	fn func(u *orm.UnitOfWork, prov uuid.UUID) (T, error)) (T, error) {
	started := time.Now()

	event := &Event[T]{Operation: op, Key: key, Model: prepared, Actor: actor, Mode: mode}
	if s.intercept(ctx, event) == Cancel {
		return original, nil
	}

	result, err := s.transact(ctx, op, mode, actor, fn)
	s.metrics.observe(s.Name(), op, started, err)
	if err != nil {
		s.logger.Debugw("write failed",
			logger.FieldOperation, string(op),
			logger.FieldKey, key,
			logger.FieldError, err)
		return original, err
	}

	s.logger.Debugw("write complete",
		logger.FieldOperation, string(op),
		logger.FieldKey, result.GetKey(),
		logger.FieldMode, mode.String(),
		logger.FieldActor, actor,
		logger.FieldDurationMS, time.Since(started).Milliseconds())
	if mode == ModeCommit {
		s.notify(ctx, &Event[T]{Operation: op, Key: result.GetKey(), Model: result, Actor: actor, Mode: mode})
	}
	return result, nil
}

func (s *Service[T]) transact(ctx context.Context, op Operation, mode Mode, actor string,
	fn func(u *orm.UnitOfWork, prov uuid.UUID) (T, error)) (T, error) {
	var zero T
	u, err := s.provider.Open(ctx, false)
	if err != nil {
		return zero, translate(err, "open unit of work")
	}
	defer u.Close()

	if err := u.Begin(); err != nil {
		return zero, translate(err, "begin transaction")
	}
	prov, err := s.provenance.Establish(u, actor)
	if err != nil {
		return zero, translate(err, "establish provenance")
	}
	result, err := fn(u, prov)
	if err != nil {
		return zero, translate(err, string(op)+" "+s.Name())
	}

	if mode == ModeRollback {
		if err := u.Rollback(); err != nil {
			return zero, translate(err, "roll back "+s.Name())
		}
		return result, nil
	}
	keys := s.backend.cacheKeys(result.GetKey())
	u.AfterCommit(func() {
		for _, k := range keys {
			cache.Evict(s.cache, k)
		}
	})
	if err := u.Commit(); err != nil {
		return zero, translate(err, "commit "+s.Name())
	}
	return result, nil
}

// Query returns a lazy result set over records matching p. Nothing runs
// until the set is enumerated or counted.
func (s *Service[T]) Query(p query.Predicate, actor string) ResultSet[T] {
	s.logger.Debugw("query",
		logger.FieldActor, actor,
		logger.FieldShape, query.String(p))
	rs := &lazyResultSet[T]{svc: s, src: s.backend.source(), limit: -1}
	return rs.Where(p)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
