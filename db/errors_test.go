package db

import (
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cdr/errors"
)

func TestClassify_Postgres(t *testing.T) {
	tests := []struct {
		code string
		want ErrorCode
	}{
		{"23502", CodeNotNull},
		{"23503", CodeForeignKey},
		{"23505", CodeUnique},
		{"23514", CodeCheck},
		{"40001", CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := errors.Wrap(&pgconn.PgError{Code: tt.code, ConstraintName: "uq_act_version_seq"}, "insert act_version")
			got := Classify(err)
			assert.Equal(t, tt.want, got.Code)
			assert.Equal(t, "uq_act_version_seq", got.Constraint)
		})
	}
}

func TestClassify_PostgresNotNullFallsBackToColumn(t *testing.T) {
	got := Classify(&pgconn.PgError{Code: "23502", ColumnName: "mood_key"})
	assert.Equal(t, CodeNotNull, got.Code)
	assert.Equal(t, "mood_key", got.Constraint)
}

func TestClassify_NilAndForeign(t *testing.T) {
	assert.Equal(t, CodeNone, Classify(nil).Code)
	assert.Equal(t, CodeUnknown, Classify(errors.New("boom")).Code)
}

// Real sqlite failures exercise the extended result codes end to end.
func TestClassify_SQLite(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "classify.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE parent (id TEXT PRIMARY KEY);
		CREATE TABLE child (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL REFERENCES parent(id),
			label TEXT NOT NULL UNIQUE,
			amount INTEGER CONSTRAINT ck_amount CHECK (amount >= 0)
		);
		INSERT INTO parent (id) VALUES ('p1');
		INSERT INTO child (id, parent_id, label, amount) VALUES ('c1', 'p1', 'first', 1);
	`)
	require.NoError(t, err)

	tests := []struct {
		name       string
		stmt       string
		want       ErrorCode
		constraint string
	}{
		{"not null", "INSERT INTO child (id, parent_id, label) VALUES ('c2', 'p1', NULL)", CodeNotNull, "child.label"},
		{"foreign key", "INSERT INTO child (id, parent_id, label) VALUES ('c2', 'nope', 'x')", CodeForeignKey, ""},
		{"unique", "INSERT INTO child (id, parent_id, label) VALUES ('c2', 'p1', 'first')", CodeUnique, "child.label"},
		{"primary key", "INSERT INTO child (id, parent_id, label) VALUES ('c1', 'p1', 'other')", CodeUnique, "child.id"},
		{"check", "INSERT INTO child (id, parent_id, label, amount) VALUES ('c2', 'p1', 'y', -1)", CodeCheck, "ck_amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Exec(tt.stmt)
			require.Error(t, err)

			var liteErr sqlite3.Error
			require.True(t, errors.As(err, &liteErr))

			got := Classify(errors.Wrap(err, "exec"))
			assert.Equal(t, tt.want, got.Code, got.Message)
			if tt.constraint != "" {
				assert.Equal(t, tt.constraint, got.Constraint)
			}
		})
	}
}

func TestClassify_SQLiteNonConstraint(t *testing.T) {
	got := Classify(sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.Equal(t, CodeUnknown, got.Code)
}

func TestIsDatabaseClosed(t *testing.T) {
	assert.False(t, IsDatabaseClosed(nil))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "query")))
	assert.True(t, IsDatabaseClosed(errors.New("sql: database is closed")))
	assert.False(t, IsDatabaseClosed(errors.New("connection refused")))
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "unique", CodeUnique.String())
	assert.Equal(t, "unknown", ErrorCode(99).String())
}
