package persistence

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/cdr/cache"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/query"
)

// entityRow is a row with creation, update and obsoletion stamps.
type entityRow[R any] interface {
	orm.Row
	stampCreated(at time.Time, by uuid.UUID)
	stampUpdated(at time.Time, by uuid.UUID)
	stampObsoleted(at time.Time, by uuid.UUID)
	carryCreation(from R)
	obsolete() bool
	reactivate()
}

// entities persists soft-deleted base entities. Obsoletion stamps the row;
// an update of an obsoleted entity brings it back.
type entities[T model.Model, R entityRow[R]] struct {
	name string
	tbl  *orm.Table
	// obsoletion is the path whose mention lifts the implicit current-only
	// filter.
	obsoletion string
	paths      *mapper

	newRow  func() R
	toRow   func(T) R
	fromRow func(R) T

	now    func() time.Time
	logger *zap.SugaredLogger
}

func newAuthorities(now func() time.Time, log *zap.SugaredLogger) *entities[*model.AssigningAuthority, *authorityRow] {
	return &entities[*model.AssigningAuthority, *authorityRow]{
		name:       "AssigningAuthority",
		tbl:        authorityTable,
		obsoletion: model.AuthorityObsoletionTime.Path(),
		paths: newMapper(authorityTable, map[string]string{
			"key":                                "authority_key",
			model.AuthorityDomain.Path():         "domain_name",
			model.AuthorityName.Path():           "name",
			model.AuthorityURL.Path():            "url",
			model.AuthorityObsoletionTime.Path(): "obsoletion_time",
		}),
		newRow:  newAuthorityRow,
		toRow:   authorityToRow,
		fromRow: authorityFromRow,
		now:     now,
		logger:  log,
	}
}

func (b *entities[T, R]) typeName() string   { return b.name }
func (b *entities[T, R]) cachesModels() bool { return true }
func (b *entities[T, R]) source() source[T]  { return b }

func (b *entities[T, R]) cacheKeys(key uuid.UUID) []string {
	return []string{cache.ModelKey(key)}
}

func (b *entities[T, R]) get(u *orm.UnitOfWork, key uuid.UUID, _ *uuid.UUID) (T, bool, error) {
	var zero T
	r, found, err := orm.Get(u, b.newRow, key)
	if err != nil || !found {
		return zero, false, err
	}
	return b.fromRow(r), true, nil
}

func (b *entities[T, R]) exists(u *orm.UnitOfWork, key uuid.UUID) (bool, error) {
	s := orm.NewSelect(b.tbl)
	s.Where = orm.Eq(b.tbl.KeyCol(), key)
	return orm.Exists(u, s)
}

func (b *entities[T, R]) insert(u *orm.UnitOfWork, m T, prov uuid.UUID) (T, error) {
	var zero T
	if m.GetKey() == uuid.Nil {
		m.SetKey(uuid.New())
	}
	r := b.toRow(m)
	r.stampCreated(b.now(), prov)
	r.reactivate()
	if err := orm.Insert(u, r); err != nil {
		return zero, err
	}
	return b.fromRow(r), nil
}

func (b *entities[T, R]) update(u *orm.UnitOfWork, m T, prov uuid.UUID) (T, error) {
	var zero T
	existing, found, err := orm.Get(u, b.newRow, m.GetKey())
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, errors.NewNotFoundError("%s %s", b.name, m.GetKey())
	}

	r := b.toRow(m)
	r.carryCreation(existing)
	r.stampUpdated(b.now(), prov)
	r.reactivate()
	if existing.obsolete() {
		b.logger.Infow("obsoleted entity reactivated by update",
			logger.FieldType, b.name,
			logger.FieldKey, m.GetKey())
	}
	if _, err := orm.Update(u, r); err != nil {
		return zero, err
	}
	return b.fromRow(r), nil
}

func (b *entities[T, R]) obsolete(u *orm.UnitOfWork, key uuid.UUID, prov uuid.UUID) (T, error) {
	var zero T
	r, found, err := orm.Get(u, b.newRow, key)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, errors.NewNotFoundError("%s %s", b.name, key)
	}
	r.stampObsoleted(b.now(), prov)
	if _, err := orm.Update(u, r); err != nil {
		return zero, err
	}
	return b.fromRow(r), nil
}

func (b *entities[T, R]) table() *orm.Table { return b.tbl }
func (b *entities[T, R]) keyColumn() string { return b.tbl.KeyCol() }
func (b *entities[T, R]) scope() orm.Expr   { return nil }

// filter hides obsoleted rows unless the predicate asks about obsoletion.
func (b *entities[T, R]) filter(p query.Predicate) (orm.Expr, error) {
	where, err := b.paths.translate(p)
	if err != nil {
		return nil, err
	}
	if query.Mentions(p, b.obsoletion) {
		return where, nil
	}
	return orm.AllOf(orm.Null{Column: b.tbl.Col("obsoletion_time")}, where), nil
}

func (b *entities[T, R]) orderColumn(path string) (string, error) {
	return b.paths.column(path)
}

func (b *entities[T, R]) load(u *orm.UnitOfWork, s *orm.Select) ([]T, error) {
	rows, err := orm.Fetch(u, b.newRow, s)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = b.fromRow(r)
	}
	return out, nil
}
