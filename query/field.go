package query

// Field is a typed handle on a model property path. It keeps predicate
// values the same Go type as the property they filter.
type Field[V any] string

// Path returns the property path.
func (f Field[V]) Path() string { return string(f) }

func (f Field[V]) Eq(v V) Predicate { return Compare{Path: string(f), Op: Eq, Value: v} }
func (f Field[V]) Ne(v V) Predicate { return Compare{Path: string(f), Op: Ne, Value: v} }
func (f Field[V]) Lt(v V) Predicate { return Compare{Path: string(f), Op: Lt, Value: v} }
func (f Field[V]) Le(v V) Predicate { return Compare{Path: string(f), Op: Le, Value: v} }
func (f Field[V]) Gt(v V) Predicate { return Compare{Path: string(f), Op: Gt, Value: v} }
func (f Field[V]) Ge(v V) Predicate { return Compare{Path: string(f), Op: Ge, Value: v} }

// In matches any of vs.
func (f Field[V]) In(vs ...V) Predicate {
	values := make([]any, len(vs))
	for i, v := range vs {
		values[i] = v
	}
	return In{Path: string(f), Values: values}
}

// IsNull matches an absent value.
func (f Field[V]) IsNull() Predicate { return Null{Path: string(f)} }

// NotNull matches a present value.
func (f Field[V]) NotNull() Predicate { return Null{Path: string(f), Negate: true} }

// Asc sorts ascending on the field.
func (f Field[V]) Asc() Order { return Order{Path: string(f)} }

// Desc sorts descending on the field.
func (f Field[V]) Desc() Order { return Order{Path: string(f), Desc: true} }

// StartsWith matches string properties beginning with prefix.
func StartsWith(f Field[string], prefix string) Predicate {
	return Compare{Path: string(f), Op: Prefix, Value: prefix}
}

// Collection is a handle on a one-to-many property or subtype component.
type Collection string

// Has matches owners with at least one member satisfying where.
func (c Collection) Has(where Predicate) Predicate {
	return Has{Path: string(c), Where: where}
}
