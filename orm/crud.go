package orm

import (
	"database/sql"
	"strings"

	"github.com/teranos/cdr/errors"
)

// Insert writes a new row.
func Insert(u *UnitOfWork, r Row) error {
	t := r.Table()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	query := "INSERT INTO " + t.Name + " (" + strings.Join(t.Columns, ", ") + ") VALUES (" + placeholders + ")"
	if _, err := u.Exec(query, r.Values()...); err != nil {
		return errors.Wrapf(err, "insert into %s", t.Name)
	}
	return nil
}

// Update rewrites every non-key column of the row identified by its key and
// returns the number of rows affected.
func Update(u *UnitOfWork, r Row) (int64, error) {
	t := r.Table()
	values := r.Values()

	sets := make([]string, 0, len(t.Columns)-1)
	args := make([]any, 0, len(t.Columns))
	for i, c := range t.Columns {
		if i == t.keyIndex {
			continue
		}
		sets = append(sets, c+" = ?")
		args = append(args, values[i])
	}
	args = append(args, values[t.keyIndex])

	query := "UPDATE " + t.Name + " SET " + strings.Join(sets, ", ") + " WHERE " + t.Key + " = ?"
	res, err := u.Exec(query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "update %s", t.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(err, "update %s", t.Name)
	}
	return n, nil
}

// Delete removes the row identified by its key.
func Delete(u *UnitOfWork, r Row) error {
	t := r.Table()
	if _, err := u.Exec("DELETE FROM "+t.Name+" WHERE "+t.Key+" = ?", KeyValue(r)); err != nil {
		return errors.Wrapf(err, "delete from %s", t.Name)
	}
	return nil
}

// DeleteWhere removes every row of t matching where and returns the count.
func DeleteWhere(u *UnitOfWork, t *Table, where Expr) (int64, error) {
	var qb queryBuilder
	qb.write("DELETE FROM ", t.Name, " WHERE ")
	if err := qb.expr(where, u.dialect); err != nil {
		return 0, err
	}
	res, err := u.Exec(qb.sb.String(), qb.args...)
	if err != nil {
		return 0, errors.Wrapf(err, "delete from %s", t.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(err, "delete from %s", t.Name)
	}
	return n, nil
}

// Fetch runs s and scans every row into a fresh value from newRow.
func Fetch[R Row](u *UnitOfWork, newRow func() R, s *Select) ([]R, error) {
	query, args, err := s.build(u.dialect)
	if err != nil {
		return nil, err
	}
	rows, err := u.Query(query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", s.From.Name)
	}
	defer rows.Close()

	var out []R
	for rows.Next() {
		r := newRow()
		if err := rows.Scan(r.Targets()...); err != nil {
			return nil, errors.Wrapf(err, "scan %s", s.From.Name)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate %s", s.From.Name)
	}
	return out, nil
}

// FetchOne returns the first row of s, if any.
func FetchOne[R Row](u *UnitOfWork, newRow func() R, s *Select) (R, bool, error) {
	limited := *s
	limited.Limit = 1
	rows, err := Fetch(u, newRow, &limited)
	if err != nil || len(rows) == 0 {
		var zero R
		return zero, false, err
	}
	return rows[0], true, nil
}

// Get loads the row of newRow's table whose primary key equals key.
func Get[R Row](u *UnitOfWork, newRow func() R, key any) (R, bool, error) {
	t := newRow().Table()
	s := NewSelect(t)
	s.Where = Eq(t.KeyCol(), key)
	return FetchOne(u, newRow, s)
}

// Count returns the number of rows s would produce.
func Count(u *UnitOfWork, s *Select) (int, error) {
	query, args, err := s.buildCount(u.dialect)
	if err != nil {
		return 0, err
	}
	var n int
	if err := u.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count %s", s.From.Name)
	}
	return n, nil
}

// Exists reports whether s produces at least one row.
func Exists(u *UnitOfWork, s *Select) (bool, error) {
	probe := *s
	probe.Columns = []string{s.From.KeyCol()}
	probe.OrderBy = nil
	probe.Limit = 1
	query, args, err := probe.build(u.dialect)
	if err != nil {
		return false, err
	}
	var discard any
	switch err := u.QueryRow(query, args...).Scan(&discard); {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, errors.Wrapf(err, "probe %s", s.From.Name)
	}
}

// Column runs a single-column select and scans the values as V.
func Column[V any](u *UnitOfWork, s *Select) ([]V, error) {
	if len(s.Columns) != 1 {
		return nil, errors.Newf("column select on %s needs exactly one column, got %d", s.From.Name, len(s.Columns))
	}
	query, args, err := s.build(u.dialect)
	if err != nil {
		return nil, err
	}
	rows, err := u.Query(query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", s.From.Name)
	}
	defer rows.Close()

	var out []V
	for rows.Next() {
		var v V
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrapf(err, "scan %s", s.From.Name)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate %s", s.From.Name)
	}
	return out, nil
}
