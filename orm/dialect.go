// Package orm is the storage abstraction under the persistence services: a
// unit-of-work over one pooled connection, typed rows described by explicit
// column lists, and a physical predicate IR compiled to parameterized SQL.
//
// It is deliberately small. Rows describe their own columns and scan targets,
// so nothing here reflects over struct tags; every value reaches the driver as
// a bind parameter.
package orm

import (
	"strconv"
	"strings"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
)

// Dialect captures the SQL differences between the supported backends.
type Dialect struct {
	Name     string
	numbered bool // $1, $2 ... instead of ?
}

var (
	SQLite   = Dialect{Name: am.DriverSQLite}
	Postgres = Dialect{Name: am.DriverPostgres, numbered: true}
)

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case am.DriverSQLite, "":
		return SQLite, nil
	case am.DriverPostgres:
		return Postgres, nil
	default:
		return Dialect{}, errors.Newf("unsupported dialect %q", driver)
	}
}

// Rebind rewrites ? placeholders into the dialect's bind syntax. Queries built
// by this package never carry literals, so every ? is a placeholder.
func (d Dialect) Rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// limitOffset renders the paging tail. limit < 0 means unbounded.
func (d Dialect) limitOffset(limit, offset int) string {
	switch {
	case limit < 0 && offset <= 0:
		return ""
	case limit < 0:
		if d.numbered {
			return " OFFSET " + strconv.Itoa(offset)
		}
		// sqlite requires LIMIT before OFFSET
		return " LIMIT -1 OFFSET " + strconv.Itoa(offset)
	case offset <= 0:
		return " LIMIT " + strconv.Itoa(limit)
	default:
		return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	}
}
