package orm

import (
	"strings"

	"github.com/teranos/cdr/errors"
)

// queryBuilder accumulates SQL text and bind parameters.
type queryBuilder struct {
	sb   strings.Builder
	args []any
}

func (qb *queryBuilder) write(parts ...string) {
	for _, p := range parts {
		qb.sb.WriteString(p)
	}
}

func (qb *queryBuilder) bind(v any) {
	qb.sb.WriteByte('?')
	qb.args = append(qb.args, v)
}

// Build compiles the select into dialect-specific SQL and its arguments.
func (s *Select) Build(d Dialect) (string, []any, error) {
	query, args, err := s.build(d)
	if err != nil {
		return "", nil, err
	}
	return d.Rebind(query), args, nil
}

// BuildCount compiles SELECT COUNT(*) over the select, honouring its paging.
func (s *Select) BuildCount(d Dialect) (string, []any, error) {
	query, args, err := s.buildCount(d)
	if err != nil {
		return "", nil, err
	}
	return d.Rebind(query), args, nil
}

// build renders the select with ? placeholders.
func (s *Select) build(d Dialect) (string, []any, error) {
	var qb queryBuilder
	if err := qb.selectStmt(s, d); err != nil {
		return "", nil, err
	}
	return qb.sb.String(), qb.args, nil
}

func (s *Select) buildCount(d Dialect) (string, []any, error) {
	inner := *s
	inner.Columns = []string{s.From.KeyCol()}
	inner.OrderBy = nil

	var qb queryBuilder
	qb.write("SELECT COUNT(*) FROM (")
	if err := qb.selectStmt(&inner, d); err != nil {
		return "", nil, err
	}
	qb.write(") AS counted")
	return qb.sb.String(), qb.args, nil
}

func (qb *queryBuilder) selectStmt(s *Select, d Dialect) error {
	if s == nil || s.From == nil {
		return errors.New("select without table")
	}
	columns := s.Columns
	if len(columns) == 0 {
		columns = s.From.QualifiedColumns()
	}

	qb.write("SELECT ")
	if s.Distinct {
		qb.write("DISTINCT ")
	}
	qb.write(strings.Join(columns, ", "), " FROM ", s.From.Name)

	if s.Where != nil {
		qb.write(" WHERE ")
		if err := qb.expr(s.Where, d); err != nil {
			return err
		}
	}

	if len(s.OrderBy) > 0 {
		terms := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			terms[i] = o.Column
			if o.Desc {
				terms[i] += " DESC"
			}
		}
		qb.write(" ORDER BY ", strings.Join(terms, ", "))
	}

	qb.write(d.limitOffset(s.Limit, s.Offset))
	return nil
}

func (qb *queryBuilder) expr(e Expr, d Dialect) error {
	switch x := e.(type) {
	case Compare:
		return qb.compare(x)
	case In:
		if len(x.Values) == 0 {
			// empty IN list: never true, NOT IN always true
			if x.Negate {
				qb.write("1 = 1")
			} else {
				qb.write("1 = 0")
			}
			return nil
		}
		qb.write(x.Column)
		if x.Negate {
			qb.write(" NOT")
		}
		qb.write(" IN (")
		for i, v := range x.Values {
			if i > 0 {
				qb.write(", ")
			}
			qb.bind(v)
		}
		qb.write(")")
	case InSelect:
		qb.write(x.Column)
		if x.Negate {
			qb.write(" NOT")
		}
		qb.write(" IN (")
		if err := qb.selectStmt(x.Select, d); err != nil {
			return err
		}
		qb.write(")")
	case Null:
		qb.write(x.Column, " IS ")
		if x.Negate {
			qb.write("NOT ")
		}
		qb.write("NULL")
	case ColumnEq:
		qb.write(x.Left, " = ", x.Right)
	case ExistsExpr:
		if x.Negate {
			qb.write("NOT ")
		}
		qb.write("EXISTS (")
		if err := qb.selectStmt(x.Select, d); err != nil {
			return err
		}
		qb.write(")")
	case And:
		return qb.junction([]Expr(x), " AND ", "1 = 1", d)
	case Or:
		return qb.junction([]Expr(x), " OR ", "1 = 0", d)
	case Not:
		qb.write("NOT (")
		if err := qb.expr(x.Expr, d); err != nil {
			return err
		}
		qb.write(")")
	case nil:
		qb.write("1 = 1")
	default:
		return errors.Newf("unsupported physical expression %T", e)
	}
	return nil
}

func (qb *queryBuilder) compare(c Compare) error {
	if c.Value == nil {
		switch c.Op {
		case OpEq:
			qb.write(c.Column, " IS NULL")
			return nil
		case OpNe:
			qb.write(c.Column, " IS NOT NULL")
			return nil
		default:
			return errors.Newf("operator %s cannot compare %s with null", c.Op, c.Column)
		}
	}
	switch c.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		qb.write(c.Column, " ", string(c.Op), " ")
		qb.bind(c.Value)
	case OpLike:
		qb.write(c.Column, " LIKE ")
		qb.bind(c.Value)
		qb.write(" ESCAPE '\\'")
	default:
		return errors.Newf("unsupported operator %q", c.Op)
	}
	return nil
}

func (qb *queryBuilder) junction(parts []Expr, sep, empty string, d Dialect) error {
	if len(parts) == 0 {
		qb.write(empty)
		return nil
	}
	qb.write("(")
	for i, p := range parts {
		if i > 0 {
			qb.write(sep)
		}
		if err := qb.expr(p, d); err != nil {
			return err
		}
	}
	qb.write(")")
	return nil
}

// EscapeLike escapes LIKE metacharacters so s matches literally.
func EscapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
