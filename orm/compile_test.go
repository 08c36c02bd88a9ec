package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	widgets = NewTable("widget", "widget_key", "widget_key", "name", "size")
	gadgets = NewTable("gadget", "gadget_key", "gadget_key", "widget_key")
)

func TestBuild_Select(t *testing.T) {
	s := NewSelect(widgets)
	s.Where = AllOf(Eq(widgets.Col("name"), "a"), Compare{Column: widgets.Col("size"), Op: OpGt, Value: 3})
	s.OrderBy = []Order{{Column: widgets.Col("name")}, {Column: widgets.KeyCol(), Desc: true}}
	s.Limit = 10
	s.Offset = 20

	query, args, err := s.Build(SQLite)
	require.NoError(t, err)
	assert.Equal(t, "SELECT widget.widget_key, widget.name, widget.size FROM widget WHERE (widget.name = ? AND widget.size > ?) ORDER BY widget.name, widget.widget_key DESC LIMIT 10 OFFSET 20", query)
	assert.Equal(t, []any{"a", 3}, args)

	query, _, err = s.Build(Postgres)
	require.NoError(t, err)
	assert.Contains(t, query, "widget.name = $1 AND widget.size > $2")
}

func TestBuild_CountDropsOrdering(t *testing.T) {
	s := NewSelect(widgets)
	s.Where = Eq(widgets.Col("name"), "a")
	s.OrderBy = []Order{{Column: widgets.Col("name")}}

	query, args, err := s.BuildCount(SQLite)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT widget.widget_key FROM widget WHERE widget.name = ?) AS counted", query)
	assert.Equal(t, []any{"a"}, args)
}

func TestBuild_Expressions(t *testing.T) {
	sub := NewSelect(gadgets)
	sub.Columns = []string{"1"}
	sub.Where = ColumnEq{Left: gadgets.Col("widget_key"), Right: widgets.KeyCol()}

	keys := NewSelect(gadgets)
	keys.Columns = []string{gadgets.Col("widget_key")}

	tests := []struct {
		name  string
		where Expr
		want  string
		args  []any
	}{
		{"nil is true", nil, "", nil},
		{"null compare", Eq(widgets.Col("name"), nil), " WHERE widget.name IS NULL", nil},
		{"not null compare", Compare{Column: widgets.Col("name"), Op: OpNe}, " WHERE widget.name IS NOT NULL", nil},
		{"empty in", In{Column: widgets.KeyCol()}, " WHERE 1 = 0", nil},
		{"empty not in", In{Column: widgets.KeyCol(), Negate: true}, " WHERE 1 = 1", nil},
		{"in list", In{Column: widgets.KeyCol(), Values: []any{"x", "y"}}, " WHERE widget.widget_key IN (?, ?)", []any{"x", "y"}},
		{"in select", InSelect{Column: widgets.KeyCol(), Select: keys}, " WHERE widget.widget_key IN (SELECT gadget.widget_key FROM gadget)", nil},
		{"exists", ExistsExpr{Select: sub}, " WHERE EXISTS (SELECT 1 FROM gadget WHERE gadget.widget_key = widget.widget_key)", nil},
		{"not exists", ExistsExpr{Select: sub, Negate: true}, " WHERE NOT EXISTS (SELECT 1 FROM gadget WHERE gadget.widget_key = widget.widget_key)", nil},
		{"or", Or{Eq(widgets.Col("size"), 1), Null{Column: widgets.Col("name")}}, " WHERE (widget.size = ? OR widget.name IS NULL)", []any{1}},
		{"empty or", Or{}, " WHERE 1 = 0", nil},
		{"not", Not{Expr: Eq(widgets.Col("size"), 1)}, " WHERE NOT (widget.size = ?)", []any{1}},
		{"like", Compare{Column: widgets.Col("name"), Op: OpLike, Value: "a%"}, " WHERE widget.name LIKE ? ESCAPE '\\'", []any{"a%"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelect(widgets)
			s.Columns = []string{widgets.KeyCol()}
			s.Where = tt.where
			query, args, err := s.Build(SQLite)
			require.NoError(t, err)
			assert.Equal(t, "SELECT widget.widget_key FROM widget"+tt.want, query)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestBuild_RejectsInvalid(t *testing.T) {
	s := NewSelect(widgets)
	s.Where = Compare{Column: widgets.Col("size"), Op: OpGt}
	_, _, err := s.Build(SQLite)
	assert.Error(t, err)

	_, _, err = (&Select{}).Build(SQLite)
	assert.Error(t, err)
}

func TestAllOf(t *testing.T) {
	assert.Nil(t, AllOf(nil, nil))

	single := Eq("a", 1)
	assert.Equal(t, single, AllOf(nil, single))

	flat := AllOf(And{Eq("a", 1), Eq("b", 2)}, Eq("c", 3))
	assert.Len(t, flat, 3)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now\\`, EscapeLike(`50% off_now\`))
}

func TestNewTable_PanicsWithoutKey(t *testing.T) {
	assert.Panics(t, func() { NewTable("t", "missing", "a", "b") })
}
