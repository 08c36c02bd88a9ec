package orm

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newMockProvider(t *testing.T, d Dialect) (*Provider, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewProvider(conn, d, zaptest.NewLogger(t).Sugar()), mock
}

func TestUnitOfWork_CommitRunsCallbacks(t *testing.T) {
	p, mock := newMockProvider(t, SQLite)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM widget WHERE widget_key = ?")).
		WithArgs("k1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := p.Open(context.Background(), false)
	require.NoError(t, err)
	defer u.Close()

	var fired int
	u.AfterCommit(func() { fired++ })

	require.NoError(t, u.Begin())
	assert.True(t, u.InTransaction())
	_, err = u.Exec("DELETE FROM widget WHERE widget_key = ?", "k1")
	require.NoError(t, err)
	require.NoError(t, u.Commit())

	assert.Equal(t, 1, fired)
	assert.False(t, u.InTransaction())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollbackDiscardsCallbacks(t *testing.T) {
	p, mock := newMockProvider(t, SQLite)
	mock.ExpectBegin()
	mock.ExpectRollback()

	u, err := p.Open(context.Background(), false)
	require.NoError(t, err)

	var fired bool
	u.AfterCommit(func() { fired = true })
	require.NoError(t, u.Begin())
	require.NoError(t, u.Close())
	require.NoError(t, u.Close(), "close is idempotent")

	assert.False(t, fired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_ReadOnlyRefusesBegin(t *testing.T) {
	p, _ := newMockProvider(t, SQLite)
	u, err := p.Open(context.Background(), true)
	require.NoError(t, err)
	defer u.Close()

	assert.True(t, u.ReadOnly())
	assert.Error(t, u.Begin())
	assert.Error(t, u.Commit())
}

func TestUnitOfWork_RebindsForPostgres(t *testing.T) {
	p, mock := newMockProvider(t, Postgres)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE widget SET name = $1, size = $2 WHERE widget_key = $3")).
		WithArgs("n", 2, "k").
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := p.Open(context.Background(), false)
	require.NoError(t, err)
	defer u.Close()

	n, err := Update(u, &widget{Key: "k", Name: "n", Size: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_Values(t *testing.T) {
	p, _ := newMockProvider(t, SQLite)
	u, err := p.Open(context.Background(), true)
	require.NoError(t, err)
	defer u.Close()

	_, ok := u.Value("provenance")
	assert.False(t, ok)
	u.Set("provenance", "p1")
	v, ok := u.Value("provenance")
	assert.True(t, ok)
	assert.Equal(t, "p1", v)
}

type widget struct {
	Key  string
	Name string
	Size int
}

func (w *widget) Table() *Table  { return widgets }
func (w *widget) Values() []any  { return []any{w.Key, w.Name, w.Size} }
func (w *widget) Targets() []any { return []any{&w.Key, &w.Name, &w.Size} }
