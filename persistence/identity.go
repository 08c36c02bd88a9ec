package persistence

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teranos/cdr/cache"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/query"
)

const extensionTypeName = "ExtensionType"

// extensionTypes persists extension types as plain identity rows: no
// versions, no soft delete. Reads go through the row cache.
type extensionTypes struct {
	cache   cache.Service
	flight  singleflight.Group
	paths   *mapper
	metrics *Metrics
	logger  *zap.SugaredLogger
}

func newExtensionTypes(c cache.Service, m *Metrics, log *zap.SugaredLogger) *extensionTypes {
	return &extensionTypes{
		cache:   c,
		metrics: m,
		logger:  log,
		paths: newMapper(extensionTypeTable, map[string]string{
			"key":                          "extension_type_key",
			model.ExtensionTypeURI.Path():  "uri",
			model.ExtensionTypeName.Path(): "name",
		}),
	}
}

func (b *extensionTypes) typeName() string                     { return extensionTypeName }
func (b *extensionTypes) cachesModels() bool                   { return false }
func (b *extensionTypes) source() source[*model.ExtensionType] { return b }

func (b *extensionTypes) cacheKeys(key uuid.UUID) []string {
	return []string{cache.RowKey(extensionTypeName, key)}
}

// row reads through the row cache outside transactions; concurrent misses on
// the same key share one fetch.
func (b *extensionTypes) row(u *orm.UnitOfWork, key uuid.UUID) (*extensionTypeRow, bool, error) {
	if u.InTransaction() {
		return orm.Get(u, newExtensionTypeRow, key)
	}
	cacheKey := cache.RowKey(extensionTypeName, key)
	v, err, _ := b.flight.Do(cacheKey, func() (any, error) {
		v, hit := cache.Lookup(b.cache, cache.CategoryRows, cacheKey)
		if b.cache != nil && b.cache.Caches(cache.CategoryRows) {
			b.metrics.cacheLookup(extensionTypeName, hit)
		}
		if hit {
			return v, nil
		}
		r, found, err := orm.Get(u, newExtensionTypeRow, key)
		if err != nil || !found {
			return (*extensionTypeRow)(nil), err
		}
		cache.Store(b.cache, cache.CategoryRows, cacheKey, r)
		return r, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(*extensionTypeRow)
	return r, r != nil, nil
}

func (b *extensionTypes) get(u *orm.UnitOfWork, key uuid.UUID, _ *uuid.UUID) (*model.ExtensionType, bool, error) {
	r, found, err := b.row(u, key)
	if err != nil || !found {
		return nil, false, err
	}
	return extensionTypeFromRow(r), true, nil
}

func (b *extensionTypes) exists(u *orm.UnitOfWork, key uuid.UUID) (bool, error) {
	_, found, err := b.row(u, key)
	return found, err
}

func (b *extensionTypes) insert(u *orm.UnitOfWork, m *model.ExtensionType, _ uuid.UUID) (*model.ExtensionType, error) {
	if m.Key == uuid.Nil {
		m.Key = uuid.New()
	}
	r := extensionTypeToRow(m)
	if err := orm.Insert(u, r); err != nil {
		return nil, err
	}
	return extensionTypeFromRow(r), nil
}

func (b *extensionTypes) update(u *orm.UnitOfWork, m *model.ExtensionType, _ uuid.UUID) (*model.ExtensionType, error) {
	r := extensionTypeToRow(m)
	n, err := orm.Update(u, r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.NewNotFoundError("%s %s", extensionTypeName, m.Key)
	}
	return extensionTypeFromRow(r), nil
}

func (b *extensionTypes) obsolete(u *orm.UnitOfWork, key uuid.UUID, _ uuid.UUID) (*model.ExtensionType, error) {
	r, found, err := orm.Get(u, newExtensionTypeRow, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFoundError("%s %s", extensionTypeName, key)
	}
	if err := orm.Delete(u, r); err != nil {
		return nil, err
	}
	return extensionTypeFromRow(r), nil
}

func (b *extensionTypes) table() *orm.Table { return extensionTypeTable }
func (b *extensionTypes) keyColumn() string { return extensionTypeTable.KeyCol() }
func (b *extensionTypes) scope() orm.Expr   { return nil }

func (b *extensionTypes) filter(p query.Predicate) (orm.Expr, error) {
	return b.paths.translate(p)
}

func (b *extensionTypes) orderColumn(path string) (string, error) {
	return b.paths.column(path)
}

func (b *extensionTypes) load(u *orm.UnitOfWork, s *orm.Select) ([]*model.ExtensionType, error) {
	rows, err := orm.Fetch(u, newExtensionTypeRow, s)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ExtensionType, len(rows))
	for i, r := range rows {
		out[i] = extensionTypeFromRow(r)
	}
	return out, nil
}
