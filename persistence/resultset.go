package persistence

import (
	"context"
	"iter"
	"slices"

	"github.com/google/uuid"

	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/query"
)

// ResultSet is a composable query over one model type. Combinators return a
// new set and never touch the store; a failed combinator is reported by Err
// and by every terminal operation.
//
// A set takes exactly one predicate. Combine predicates with query.All
// before calling Where rather than chaining Where calls.
type ResultSet[T any] interface {
	Where(p query.Predicate) ResultSet[T]
	Union(other ResultSet[T]) ResultSet[T]
	Intersect(other ResultSet[T]) ResultSet[T]
	Skip(n int) ResultSet[T]
	Take(n int) ResultSet[T]
	OrderBy(path string) ResultSet[T]
	OrderByDescending(path string) ResultSet[T]
	Sort(orders ...query.Order) ResultSet[T]

	Any(ctx context.Context) (bool, error)
	// Count honours Skip and Take; TotalCount ignores them.
	Count(ctx context.Context) (int, error)
	TotalCount(ctx context.Context) (int, error)
	First(ctx context.Context) (T, error)
	FirstOrDefault(ctx context.Context) (T, error)
	Single(ctx context.Context) (T, error)
	SingleOrDefault(ctx context.Context) (T, error)
	// AsStateful pins the key list of the set under id so pages can be
	// requested by later, independent calls.
	AsStateful(ctx context.Context, id uuid.UUID) (ResultSet[T], error)
	All(ctx context.Context) iter.Seq2[T, error]
	ToSlice(ctx context.Context) ([]T, error)
	Err() error
}

// lazyResultSet compiles to a single select and runs only when enumerated
// or counted.
type lazyResultSet[T model.Model] struct {
	svc    *Service[T]
	src    source[T]
	where  orm.Expr
	shape  string
	based  bool
	orders []orm.Order
	offset int
	limit  int
	err    error
}

func (rs *lazyResultSet[T]) clone() *lazyResultSet[T] {
	c := *rs
	c.orders = append([]orm.Order(nil), rs.orders...)
	return &c
}

func (rs *lazyResultSet[T]) fail(err error) ResultSet[T] {
	c := rs.clone()
	if c.err == nil {
		c.err = err
	}
	return c
}

func (rs *lazyResultSet[T]) Err() error { return rs.err }

func (rs *lazyResultSet[T]) paged() bool { return rs.offset > 0 || rs.limit >= 0 }

func (rs *lazyResultSet[T]) Where(p query.Predicate) ResultSet[T] {
	if rs.err != nil {
		return rs
	}
	if rs.based {
		return rs.fail(errors.NewArgumentError("result set already has a predicate; combine predicates with query.All"))
	}
	where, err := rs.src.filter(p)
	if err != nil {
		return rs.fail(err)
	}
	c := rs.clone()
	c.where, c.shape, c.based = where, query.String(p), true
	return c
}

// keys selects the model keys of the set, honouring order and paging.
func (rs *lazyResultSet[T]) keys() *orm.Select {
	s := orm.NewSelect(rs.src.table())
	s.Columns = []string{rs.src.keyColumn()}
	s.Where = rs.where
	if rs.paged() {
		s.OrderBy = rs.ordering()
		s.Limit, s.Offset = rs.limit, rs.offset
	}
	return s
}

func (rs *lazyResultSet[T]) ordering() []orm.Order {
	return append(append([]orm.Order(nil), rs.orders...), orm.Order{Column: rs.src.keyColumn()})
}

// freeze turns the set into a key membership test so further ordering or
// composition applies to exactly the rows it selects now.
func (rs *lazyResultSet[T]) freeze() *lazyResultSet[T] {
	c := rs.clone()
	c.where = orm.AllOf(rs.src.scope(), orm.InSelect{Column: rs.src.keyColumn(), Select: rs.keys()})
	c.orders, c.offset, c.limit = nil, 0, -1
	return c
}

func (rs *lazyResultSet[T]) combine(other ResultSet[T], op string) ResultSet[T] {
	if rs.err != nil {
		return rs
	}
	o, ok := other.(*lazyResultSet[T])
	if !ok || o.svc != rs.svc {
		return rs.fail(errors.NewArgumentError("%s needs a lazy result set of the same service", op))
	}
	if o.err != nil {
		return rs.fail(o.err)
	}
	a := orm.InSelect{Column: rs.src.keyColumn(), Select: rs.keys()}
	b := orm.InSelect{Column: rs.src.keyColumn(), Select: o.keys()}
	c := rs.clone()
	if op == "union" {
		c.where = orm.AllOf(rs.src.scope(), orm.Or{a, b})
	} else {
		c.where = orm.AllOf(rs.src.scope(), a, b)
	}
	c.shape = "(" + rs.shape + " " + op + " " + o.shape + ")"
	c.based = true
	c.orders, c.offset, c.limit = nil, 0, -1
	return c
}

func (rs *lazyResultSet[T]) Union(other ResultSet[T]) ResultSet[T] {
	return rs.combine(other, "union")
}

func (rs *lazyResultSet[T]) Intersect(other ResultSet[T]) ResultSet[T] {
	return rs.combine(other, "intersect")
}

func (rs *lazyResultSet[T]) Skip(n int) ResultSet[T] {
	if rs.err != nil {
		return rs
	}
	if n < 0 {
		return rs.fail(errors.NewArgumentError("skip count must not be negative, got %d", n))
	}
	c := rs.clone()
	c.offset, c.limit = skip(c.offset, c.limit, n)
	return c
}

func (rs *lazyResultSet[T]) Take(n int) ResultSet[T] {
	if rs.err != nil {
		return rs
	}
	if n < 0 {
		return rs.fail(errors.NewArgumentError("take count must not be negative, got %d", n))
	}
	c := rs.clone()
	c.limit = take(c.limit, n)
	return c
}

func (rs *lazyResultSet[T]) OrderBy(path string) ResultSet[T] {
	return rs.Sort(query.Asc(path))
}

func (rs *lazyResultSet[T]) OrderByDescending(path string) ResultSet[T] {
	return rs.Sort(query.Desc(path))
}

func (rs *lazyResultSet[T]) Sort(orders ...query.Order) ResultSet[T] {
	if rs.err != nil {
		return rs
	}
	c := rs
	if rs.paged() {
		c = rs.freeze()
	} else {
		c = rs.clone()
	}
	for _, o := range orders {
		col, err := rs.src.orderColumn(o.Path)
		if err != nil {
			return rs.fail(err)
		}
		c.orders = append(c.orders, orm.Order{Column: col, Desc: o.Desc})
	}
	return c
}

func (rs *lazyResultSet[T]) rows() *orm.Select {
	s := orm.NewSelect(rs.src.table())
	s.Where = rs.where
	s.OrderBy = rs.ordering()
	s.Limit, s.Offset = rs.limit, rs.offset
	return s
}

func (rs *lazyResultSet[T]) read(ctx context.Context, fn func(u *orm.UnitOfWork) error) error {
	if rs.err != nil {
		return rs.err
	}
	u, err := rs.svc.provider.Open(ctx, true)
	if err != nil {
		return translate(err, "open unit of work")
	}
	defer u.Close()
	if err := fn(u); err != nil {
		return translate(err, "query "+rs.svc.Name())
	}
	return nil
}

func (rs *lazyResultSet[T]) Any(ctx context.Context) (bool, error) {
	var ok bool
	err := rs.read(ctx, func(u *orm.UnitOfWork) (err error) {
		ok, err = orm.Exists(u, rs.rows())
		return err
	})
	return ok, err
}

func (rs *lazyResultSet[T]) Count(ctx context.Context) (int, error) {
	var n int
	err := rs.read(ctx, func(u *orm.UnitOfWork) (err error) {
		n, err = orm.Count(u, rs.rows())
		return err
	})
	return n, err
}

func (rs *lazyResultSet[T]) TotalCount(ctx context.Context) (int, error) {
	c := rs.clone()
	c.offset, c.limit = 0, -1
	return c.Count(ctx)
}

func (rs *lazyResultSet[T]) First(ctx context.Context) (T, error) {
	return first[T](ctx, rs, false)
}

func (rs *lazyResultSet[T]) FirstOrDefault(ctx context.Context) (T, error) {
	return first[T](ctx, rs, true)
}

func (rs *lazyResultSet[T]) Single(ctx context.Context) (T, error) {
	return single[T](ctx, rs, false)
}

func (rs *lazyResultSet[T]) SingleOrDefault(ctx context.Context) (T, error) {
	return single[T](ctx, rs, true)
}

func (rs *lazyResultSet[T]) ToSlice(ctx context.Context) ([]T, error) {
	return collect(rs.All(ctx))
}

// All selects the ordered key list of the set once, then loads the
// records a chunk at a time, each chunk on its own unit of work. Writes
// made while enumerating neither repeat nor drop a key; records removed
// before their chunk is loaded are skipped.
func (rs *lazyResultSet[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if rs.err != nil {
			yield(zero, rs.err)
			return
		}
		s := rs.keys()
		s.OrderBy = rs.ordering()

		var keys []uuid.UUID
		err := rs.read(ctx, func(u *orm.UnitOfWork) (err error) {
			keys, err = orm.Column[uuid.UUID](u, s)
			return err
		})
		if err != nil {
			yield(zero, err)
			return
		}
		for chunk := range slices.Chunk(keys, rs.svc.chunk) {
			page, err := loadKeys(ctx, rs.svc, rs.src, chunk)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, m := range page {
				if !yield(m, nil) {
					return
				}
			}
		}
	}
}

func (rs *lazyResultSet[T]) AsStateful(ctx context.Context, id uuid.UUID) (ResultSet[T], error) {
	if rs.err != nil {
		return nil, rs.err
	}
	reg := rs.svc.registry
	if reg == nil {
		return nil, errors.New("no query registry configured")
	}
	if id == uuid.Nil {
		return nil, errors.NewArgumentError("query id is required")
	}
	registered, err := reg.IsRegistered(ctx, id)
	if err != nil {
		return nil, err
	}
	if !registered {
		// the full key list, whatever page this set was narrowed to
		all := rs.clone()
		all.offset, all.limit = 0, -1
		s := all.keys()
		s.OrderBy = all.ordering()

		var keys []uuid.UUID
		err := rs.read(ctx, func(u *orm.UnitOfWork) (err error) {
			keys, err = orm.Column[uuid.UUID](u, s)
			return err
		})
		if err != nil {
			return nil, err
		}
		err = reg.RegisterQuerySet(ctx, id, keys, rs.shape, len(keys))
		switch {
		case errors.IsConflict(err):
			// lost a registration race; the winner's key list stands
			rs.svc.logger.Debugw("query set registered concurrently, attaching", logger.FieldQueryID, id)
		case err != nil:
			return nil, err
		default:
			rs.svc.logger.Infow("query set registered",
				logger.FieldQueryID, id,
				logger.FieldTotalCount, len(keys),
				logger.FieldShape, rs.shape)
		}
	}
	return &statefulResultSet[T]{svc: rs.svc, src: rs.src, id: id, offset: rs.offset, limit: rs.limit}, nil
}

// skip applies Skip(n) to a window.
func skip(offset, limit, n int) (int, int) {
	offset += n
	if limit >= 0 {
		limit = max(limit-n, 0)
	}
	return offset, limit
}

// take applies Take(n) to a window.
func take(limit, n int) int {
	if limit < 0 || n < limit {
		return n
	}
	return limit
}

func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for m, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func first[T any](ctx context.Context, rs ResultSet[T], orDefault bool) (T, error) {
	var zero T
	for m, err := range rs.Take(1).All(ctx) {
		return m, err
	}
	if orDefault {
		return zero, nil
	}
	return zero, errors.NewNotFoundError("query matched nothing")
}

func single[T any](ctx context.Context, rs ResultSet[T], orDefault bool) (T, error) {
	var zero T
	found, err := collect(rs.Take(2).All(ctx))
	switch {
	case err != nil:
		return zero, err
	case len(found) > 1:
		return zero, errors.New("query matched more than one record")
	case len(found) == 1:
		return found[0], nil
	case orDefault:
		return zero, nil
	default:
		return zero, errors.NewNotFoundError("query matched nothing")
	}
}
