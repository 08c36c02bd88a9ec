package db

import (
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/teranos/cdr/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// The string fallback covers raw database/sql and driver errors that cannot be
// wrapped at the source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// ErrorCode is a vendor-neutral classification of a backing-store failure.
type ErrorCode int

const (
	// CodeNone means err was nil.
	CodeNone ErrorCode = iota
	// CodeUnknown means the error is not a recognized constraint failure.
	CodeUnknown
	CodeNotNull
	CodeForeignKey
	CodeUnique
	CodeCheck
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeNotNull:
		return "not_null"
	case CodeForeignKey:
		return "foreign_key"
	case CodeUnique:
		return "unique"
	case CodeCheck:
		return "check"
	default:
		return "unknown"
	}
}

// PostgreSQL SQLSTATE codes for integrity constraint violations.
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// StoreError is the classification of a driver error.
type StoreError struct {
	Code       ErrorCode
	Constraint string // constraint or column reported by the driver, if any
	Message    string
}

// Classify maps sqlite3 extended result codes and PostgreSQL SQLSTATEs onto
// ErrorCode. It looks through wrapping.
func Classify(err error) StoreError {
	if err == nil {
		return StoreError{Code: CodeNone}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		out := StoreError{Code: CodeUnknown, Constraint: pgErr.ConstraintName, Message: pgErr.Message}
		switch pgErr.Code {
		case pgNotNullViolation:
			out.Code = CodeNotNull
			if out.Constraint == "" {
				out.Constraint = pgErr.ColumnName
			}
		case pgForeignKeyViolation:
			out.Code = CodeForeignKey
		case pgUniqueViolation:
			out.Code = CodeUnique
		case pgCheckViolation:
			out.Code = CodeCheck
		}
		return out
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		out := StoreError{Code: CodeUnknown, Message: liteErr.Error()}
		if liteErr.Code != sqlite3.ErrConstraint {
			return out
		}
		out.Constraint = sqliteConstraintSubject(liteErr.Error())
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintNotNull:
			out.Code = CodeNotNull
		case sqlite3.ErrConstraintForeignKey:
			out.Code = CodeForeignKey
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			out.Code = CodeUnique
		case sqlite3.ErrConstraintCheck:
			out.Code = CodeCheck
		}
		return out
	}

	return StoreError{Code: CodeUnknown, Message: err.Error()}
}

// sqliteConstraintSubject extracts "act_version.act_key" from messages like
// "UNIQUE constraint failed: act_version.act_key".
func sqliteConstraintSubject(msg string) string {
	if i := strings.Index(msg, "failed: "); i >= 0 {
		return strings.TrimSpace(msg[i+len("failed: "):])
	}
	return ""
}
