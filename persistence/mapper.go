package persistence

import (
	"time"

	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/query"
)

// component is a table reachable from a model through query.Has: an
// association collection or a subtype's own table.
type component struct {
	table *orm.Table
	link  string // column of table referencing the owner
	owner string // qualified owner column link points at
	scope orm.Expr
	paths *mapper
}

// mapper translates logical predicates over model paths into physical
// predicates over qualified columns.
type mapper struct {
	columns    map[string]string
	components map[string]component
	// promoted paths resolve through a component without an explicit Has.
	promoted map[string]string
}

func newMapper(t *orm.Table, columns map[string]string) *mapper {
	m := &mapper{
		columns:    make(map[string]string, len(columns)),
		components: map[string]component{},
		promoted:   map[string]string{},
	}
	for path, col := range columns {
		m.columns[path] = t.Col(col)
	}
	return m
}

func (m *mapper) addComponent(name string, c component) {
	m.components[name] = c
}

// promote makes every path of component name addressable at the top level.
func (m *mapper) promote(name string) {
	for path := range m.components[name].paths.columns {
		if _, taken := m.columns[path]; !taken {
			m.promoted[path] = name
		}
	}
}

// column resolves a top-level path to its qualified column.
func (m *mapper) column(path string) (string, error) {
	if col, ok := m.columns[path]; ok {
		return col, nil
	}
	return "", errors.NewArgumentError("unknown property %q", path)
}

func (m *mapper) translate(p query.Predicate) (orm.Expr, error) {
	switch x := p.(type) {
	case nil:
		return nil, nil
	case query.Compare:
		if name, ok := m.promoted[x.Path]; ok {
			return m.translate(query.Has{Path: name, Where: x})
		}
		col, err := m.column(x.Path)
		if err != nil {
			return nil, err
		}
		return compare(col, x.Op, x.Value)
	case query.In:
		if name, ok := m.promoted[x.Path]; ok {
			return m.translate(query.Has{Path: name, Where: x})
		}
		col, err := m.column(x.Path)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(x.Values))
		for i, v := range x.Values {
			values[i] = coerce(v)
		}
		return orm.In{Column: col, Values: values}, nil
	case query.Null:
		if name, ok := m.promoted[x.Path]; ok {
			return m.translate(query.Has{Path: name, Where: x})
		}
		col, err := m.column(x.Path)
		if err != nil {
			return nil, err
		}
		return orm.Null{Column: col, Negate: x.Negate}, nil
	case query.Has:
		c, ok := m.components[x.Path]
		if !ok {
			return nil, errors.NewArgumentError("unknown collection %q", x.Path)
		}
		inner, err := c.paths.translate(x.Where)
		if err != nil {
			return nil, err
		}
		sub := orm.NewSelect(c.table)
		sub.Columns = []string{"1"}
		sub.Where = orm.AllOf(orm.ColumnEq{Left: c.table.Col(c.link), Right: c.owner}, c.scope, inner)
		return orm.ExistsExpr{Select: sub}, nil
	case query.And:
		out := make(orm.And, 0, len(x))
		for _, c := range x {
			e, err := m.translate(c)
			if err != nil {
				return nil, err
			}
			if e != nil {
				out = append(out, e)
			}
		}
		return out, nil
	case query.Or:
		out := make(orm.Or, 0, len(x))
		for _, c := range x {
			e, err := m.translate(c)
			if err != nil {
				return nil, err
			}
			if e == nil {
				// a true disjunct makes the whole disjunction true
				return nil, nil
			}
			out = append(out, e)
		}
		return out, nil
	case query.Not:
		e, err := m.translate(x.Predicate)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return orm.Or{}, nil
		}
		return orm.Not{Expr: e}, nil
	default:
		return nil, errors.NewArgumentError("unsupported predicate %T", p)
	}
}

func compare(col string, op query.Op, value any) (orm.Expr, error) {
	v := coerce(value)
	switch op {
	case query.Eq:
		return orm.Compare{Column: col, Op: orm.OpEq, Value: v}, nil
	case query.Ne:
		return orm.Compare{Column: col, Op: orm.OpNe, Value: v}, nil
	case query.Lt:
		return orm.Compare{Column: col, Op: orm.OpLt, Value: v}, nil
	case query.Le:
		return orm.Compare{Column: col, Op: orm.OpLe, Value: v}, nil
	case query.Gt:
		return orm.Compare{Column: col, Op: orm.OpGt, Value: v}, nil
	case query.Ge:
		return orm.Compare{Column: col, Op: orm.OpGe, Value: v}, nil
	case query.Prefix:
		s, ok := v.(string)
		if !ok {
			return nil, errors.NewArgumentError("prefix match on %s needs a string, got %T", col, value)
		}
		return orm.Compare{Column: col, Op: orm.OpLike, Value: orm.EscapeLike(s) + "%"}, nil
	default:
		return nil, errors.NewArgumentError("unsupported operator %q", op)
	}
}

// coerce converts model-typed values into the representation stored in the
// physical rows.
func coerce(v any) any {
	switch x := v.(type) {
	case model.ClassKey:
		return string(x)
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}
