package persistence

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/query"
)

// statefulResultSet pages over a key list held by the query registry. Only
// the requested page's rows are read, by key, so the paging stays stable
// while other writers change the table.
type statefulResultSet[T model.Model] struct {
	svc    *Service[T]
	src    source[T]
	id     uuid.UUID
	offset int
	limit  int
	err    error
}

// Session attaches to a query set registered earlier under id.
func (s *Service[T]) Session(ctx context.Context, id uuid.UUID) (ResultSet[T], error) {
	if s.registry == nil {
		return nil, errors.New("no query registry configured")
	}
	ok, err := s.registry.IsRegistered(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFoundError("query set %s is not registered", id)
	}
	return &statefulResultSet[T]{svc: s, src: s.backend.source(), id: id, limit: -1}, nil
}

func (rs *statefulResultSet[T]) fail(err error) ResultSet[T] {
	c := *rs
	if c.err == nil {
		c.err = err
	}
	return &c
}

func (rs *statefulResultSet[T]) fixed(op string) ResultSet[T] {
	return rs.fail(errors.NewArgumentError("%s on stateful query set %s: its key list is fixed", op, rs.id))
}

func (rs *statefulResultSet[T]) Err() error                            { return rs.err }
func (rs *statefulResultSet[T]) Where(query.Predicate) ResultSet[T]    { return rs.fixed("where") }
func (rs *statefulResultSet[T]) Union(ResultSet[T]) ResultSet[T]       { return rs.fixed("union") }
func (rs *statefulResultSet[T]) Intersect(ResultSet[T]) ResultSet[T]   { return rs.fixed("intersect") }
func (rs *statefulResultSet[T]) OrderBy(string) ResultSet[T]           { return rs.fixed("order by") }
func (rs *statefulResultSet[T]) OrderByDescending(string) ResultSet[T] { return rs.fixed("order by") }
func (rs *statefulResultSet[T]) Sort(...query.Order) ResultSet[T]      { return rs.fixed("sort") }

func (rs *statefulResultSet[T]) Skip(n int) ResultSet[T] {
	if rs.err != nil {
		return rs
	}
	if n < 0 {
		return rs.fail(errors.NewArgumentError("skip count must not be negative, got %d", n))
	}
	c := *rs
	c.offset, c.limit = skip(c.offset, c.limit, n)
	return &c
}

func (rs *statefulResultSet[T]) Take(n int) ResultSet[T] {
	if rs.err != nil {
		return rs
	}
	if n < 0 {
		return rs.fail(errors.NewArgumentError("take count must not be negative, got %d", n))
	}
	c := *rs
	c.limit = take(c.limit, n)
	return &c
}

func (rs *statefulResultSet[T]) TotalCount(ctx context.Context) (int, error) {
	if rs.err != nil {
		return 0, rs.err
	}
	return rs.svc.registry.GetTotalCount(ctx, rs.id)
}

func (rs *statefulResultSet[T]) Count(ctx context.Context) (int, error) {
	total, err := rs.TotalCount(ctx)
	if err != nil {
		return 0, err
	}
	n := max(total-rs.offset, 0)
	if rs.limit >= 0 {
		n = min(n, rs.limit)
	}
	return n, nil
}

func (rs *statefulResultSet[T]) Any(ctx context.Context) (bool, error) {
	n, err := rs.Count(ctx)
	return n > 0, err
}

func (rs *statefulResultSet[T]) First(ctx context.Context) (T, error) {
	return first[T](ctx, rs, false)
}

func (rs *statefulResultSet[T]) FirstOrDefault(ctx context.Context) (T, error) {
	return first[T](ctx, rs, true)
}

func (rs *statefulResultSet[T]) Single(ctx context.Context) (T, error) {
	return single[T](ctx, rs, false)
}

func (rs *statefulResultSet[T]) SingleOrDefault(ctx context.Context) (T, error) {
	return single[T](ctx, rs, true)
}

func (rs *statefulResultSet[T]) ToSlice(ctx context.Context) ([]T, error) {
	return collect(rs.All(ctx))
}

// AsStateful on a stateful set is the set itself when id matches.
func (rs *statefulResultSet[T]) AsStateful(_ context.Context, id uuid.UUID) (ResultSet[T], error) {
	if rs.err != nil {
		return nil, rs.err
	}
	if id != rs.id {
		return nil, errors.NewArgumentError("result set is already stateful as %s", rs.id)
	}
	return rs, nil
}

// All reads the registered keys a chunk at a time and loads their rows.
// Keys whose records no longer exist are skipped.
func (rs *statefulResultSet[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if rs.err != nil {
			yield(zero, rs.err)
			return
		}
		offset, remaining := rs.offset, rs.limit
		for remaining != 0 {
			n := rs.svc.chunk
			if remaining > 0 && remaining < n {
				n = remaining
			}
			keys, err := rs.svc.registry.GetResultPage(ctx, rs.id, offset, n)
			if err != nil {
				yield(zero, err)
				return
			}
			page, err := loadKeys(ctx, rs.svc, rs.src, keys)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, m := range page {
				if !yield(m, nil) {
					return
				}
			}
			if len(keys) < n {
				return
			}
			offset += n
			if remaining > 0 {
				remaining -= n
			}
		}
	}
}

// loadKeys fetches the current records of keys on a unit of work of its
// own and returns them in key order. Keys with no current record are
// skipped.
func loadKeys[T model.Model](ctx context.Context, svc *Service[T], src source[T], keys []uuid.UUID) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = k
	}
	s := orm.NewSelect(src.table())
	s.Where = orm.AllOf(src.scope(), orm.In{Column: src.keyColumn(), Values: values})

	u, err := svc.provider.Open(ctx, true)
	if err != nil {
		return nil, translate(err, "open unit of work")
	}
	defer u.Close()
	loaded, err := src.load(u, s)
	if err != nil {
		return nil, translate(err, "page "+svc.Name())
	}

	byKey := make(map[uuid.UUID]T, len(loaded))
	for _, m := range loaded {
		byKey[m.GetKey()] = m
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if m, ok := byKey[k]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
