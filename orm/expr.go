package orm

// Expr is a physical predicate over qualified columns.
//
// This is a sealed interface: only types in this package implement it, so the
// compiler's type switch is exhaustive.
type Expr interface {
	physicalExpr()
}

// Op is a comparison operator.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "<>"
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpLike Op = "LIKE"
)

// Compare is column <op> value. A nil value with OpEq/OpNe compiles to
// IS NULL / IS NOT NULL.
type Compare struct {
	Column string
	Op     Op
	Value  any
}

// In is column IN (values...).
type In struct {
	Column string
	Values []any
	Negate bool
}

// InSelect is column IN (subquery).
type InSelect struct {
	Column string
	Select *Select
	Negate bool
}

// Null is column IS NULL, or IS NOT NULL when negated.
type Null struct {
	Column string
	Negate bool
}

// ColumnEq correlates two columns, typically inside an Exists subquery.
type ColumnEq struct {
	Left, Right string
}

// ExistsExpr is EXISTS (subquery).
type ExistsExpr struct {
	Select *Select
	Negate bool
}

// And is a conjunction; an empty And is true.
type And []Expr

// Or is a disjunction; an empty Or is false.
type Or []Expr

// Not negates its operand.
type Not struct {
	Expr Expr
}

func (Compare) physicalExpr()    {}
func (In) physicalExpr()         {}
func (InSelect) physicalExpr()   {}
func (Null) physicalExpr()       {}
func (ColumnEq) physicalExpr()   {}
func (ExistsExpr) physicalExpr() {}
func (And) physicalExpr()        {}
func (Or) physicalExpr()         {}
func (Not) physicalExpr()        {}

// Eq is shorthand for Compare{Column, OpEq, value}.
func Eq(column string, value any) Expr {
	return Compare{Column: column, Op: OpEq, Value: value}
}

// AllOf conjoins the non-nil expressions, collapsing trivial cases.
func AllOf(exprs ...Expr) Expr {
	var out And
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if nested, ok := e.(And); ok {
			out = append(out, nested...)
			continue
		}
		out = append(out, e)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Select is a single-table query. Limit < 0 means unbounded; Offset <= 0
// means none. Columns defaults to every column of From.
type Select struct {
	From     *Table
	Columns  []string
	Where    Expr
	OrderBy  []Order
	Limit    int
	Offset   int
	Distinct bool
}

// NewSelect returns an unbounded select over every column of t.
func NewSelect(t *Table) *Select {
	return &Select{From: t, Limit: -1}
}
