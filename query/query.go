// Package query is the logical predicate language callers use to filter the
// clinical model. Predicates name model properties by path; the persistence
// layer maps them onto physical columns.
package query

import (
	"fmt"
	"slices"
	"strings"
)

// Predicate is a logical filter over model properties. Only this package
// implements it.
type Predicate interface {
	predicate()
}

// Op is a comparison operator.
type Op string

const (
	Eq     Op = "="
	Ne     Op = "!="
	Lt     Op = "<"
	Le     Op = "<="
	Gt     Op = ">"
	Ge     Op = ">="
	Prefix Op = "starts-with"
)

// Compare is path <op> value.
type Compare struct {
	Path  string
	Op    Op
	Value any
}

// In matches when the property equals any of Values.
type In struct {
	Path   string
	Values []any
}

// Null matches an absent property, or a present one when negated.
type Null struct {
	Path   string
	Negate bool
}

// Has matches when the collection or subtype at Path has a member satisfying
// Where. Paths inside Where are relative to that member.
type Has struct {
	Path  string
	Where Predicate
}

// And is a conjunction.
type And []Predicate

// Or is a disjunction.
type Or []Predicate

// Not negates its operand.
type Not struct {
	Predicate Predicate
}

func (Compare) predicate() {}
func (In) predicate()      {}
func (Null) predicate()    {}
func (Has) predicate()     {}
func (And) predicate()     {}
func (Or) predicate()      {}
func (Not) predicate()     {}

// All conjoins the non-nil predicates.
func All(ps ...Predicate) Predicate {
	var out And
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
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

// Any disjoins the predicates.
func Any(ps ...Predicate) Predicate {
	if len(ps) == 1 {
		return ps[0]
	}
	return Or(ps)
}

// Order is one sort term over a model property.
type Order struct {
	Path string
	Desc bool
}

// Asc sorts by path ascending.
func Asc(path string) Order { return Order{Path: path} }

// Desc sorts by path descending.
func Desc(path string) Order { return Order{Path: path, Desc: true} }

// Paths returns every top-level property path p mentions, in first-seen order.
// A Has contributes its own path, not the member paths beneath it.
func Paths(p Predicate) []string {
	var out []string
	add := func(path string) {
		if !slices.Contains(out, path) {
			out = append(out, path)
		}
	}
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch x := p.(type) {
		case Compare:
			add(x.Path)
		case In:
			add(x.Path)
		case Null:
			add(x.Path)
		case Has:
			add(x.Path)
		case And:
			for _, c := range x {
				walk(c)
			}
		case Or:
			for _, c := range x {
				walk(c)
			}
		case Not:
			walk(x.Predicate)
		}
	}
	walk(p)
	return out
}

// Mentions reports whether p filters on path at the top level.
func Mentions(p Predicate, path string) bool {
	return slices.Contains(Paths(p), path)
}

// String renders a canonical textual form of p, used as the recorded shape
// of registered queries and in logs.
func String(p Predicate) string {
	var sb strings.Builder
	write(&sb, p)
	return sb.String()
}

func write(sb *strings.Builder, p Predicate) {
	switch x := p.(type) {
	case nil:
		sb.WriteString("true")
	case Compare:
		fmt.Fprintf(sb, "%s %s %v", x.Path, x.Op, x.Value)
	case In:
		fmt.Fprintf(sb, "%s in %v", x.Path, x.Values)
	case Null:
		if x.Negate {
			fmt.Fprintf(sb, "%s != null", x.Path)
		} else {
			fmt.Fprintf(sb, "%s = null", x.Path)
		}
	case Has:
		fmt.Fprintf(sb, "%s has (", x.Path)
		write(sb, x.Where)
		sb.WriteString(")")
	case And:
		junction(sb, []Predicate(x), " and ", "true")
	case Or:
		junction(sb, []Predicate(x), " or ", "false")
	case Not:
		sb.WriteString("not (")
		write(sb, x.Predicate)
		sb.WriteString(")")
	default:
		fmt.Fprintf(sb, "%T", p)
	}
}

func junction(sb *strings.Builder, ps []Predicate, sep, empty string) {
	if len(ps) == 0 {
		sb.WriteString(empty)
		return
	}
	sb.WriteString("(")
	for i, p := range ps {
		if i > 0 {
			sb.WriteString(sep)
		}
		write(sb, p)
	}
	sb.WriteString(")")
}
