package orm

import "slices"

// Table describes a physical table: its name, primary key column and the
// full column list in the order rows expose Values and Targets.
type Table struct {
	Name    string
	Key     string
	Columns []string

	keyIndex int
}

// NewTable builds a table descriptor. The key column must appear in columns.
func NewTable(name, key string, columns ...string) *Table {
	idx := slices.Index(columns, key)
	if idx < 0 {
		panic("orm: key column " + key + " not in columns of " + name)
	}
	return &Table{Name: name, Key: key, Columns: columns, keyIndex: idx}
}

// Col returns the table-qualified name of a column.
func (t *Table) Col(column string) string {
	return t.Name + "." + column
}

// KeyCol returns the qualified primary key column.
func (t *Table) KeyCol() string {
	return t.Col(t.Key)
}

// QualifiedColumns returns every column qualified by the table name.
func (t *Table) QualifiedColumns() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = t.Col(c)
	}
	return out
}

// Row is a physical row. Values and Targets follow Table().Columns order.
type Row interface {
	Table() *Table
	Values() []any
	Targets() []any
}

// KeyValue returns the row's primary key value.
func KeyValue(r Row) any {
	return r.Values()[r.Table().keyIndex]
}
