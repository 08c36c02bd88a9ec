package orm

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
)

// Provider hands out units of work over a connection pool.
type Provider struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.SugaredLogger
}

// NewProvider wraps db for the given dialect.
func NewProvider(db *sql.DB, dialect Dialect, log *zap.SugaredLogger) *Provider {
	return &Provider{db: db, dialect: dialect, logger: logger.OrNop(log)}
}

// DB returns the underlying pool.
func (p *Provider) DB() *sql.DB { return p.db }

// Dialect returns the provider's SQL dialect.
func (p *Provider) Dialect() Dialect { return p.dialect }

// Open acquires a dedicated connection for a unit of work. The caller must
// Close it. Read-only units refuse to Begin a transaction.
func (p *Provider) Open(ctx context.Context, readOnly bool) (*UnitOfWork, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection")
	}
	return &UnitOfWork{
		ctx:      ctx,
		conn:     conn,
		dialect:  p.dialect,
		readOnly: readOnly,
		logger:   p.logger,
		values:   map[string]any{},
	}, nil
}

// UnitOfWork is one connection, at most one open transaction on it, and
// per-operation scratch values. It is not safe for concurrent use.
type UnitOfWork struct {
	ctx      context.Context
	conn     *sql.Conn
	tx       *sql.Tx
	dialect  Dialect
	readOnly bool
	logger   *zap.SugaredLogger
	values   map[string]any
	onCommit []func()
	closed   bool
}

// Context returns the context the unit of work was opened with.
func (u *UnitOfWork) Context() context.Context { return u.ctx }

// Dialect returns the SQL dialect of the underlying connection.
func (u *UnitOfWork) Dialect() Dialect { return u.dialect }

// ReadOnly reports whether the unit was opened for reads only.
func (u *UnitOfWork) ReadOnly() bool { return u.readOnly }

// InTransaction reports whether a transaction is open.
func (u *UnitOfWork) InTransaction() bool { return u.tx != nil }

// Set stores a per-unit value, such as the established provenance key.
func (u *UnitOfWork) Set(key string, v any) { u.values[key] = v }

// Value returns a per-unit value.
func (u *UnitOfWork) Value(key string) (any, bool) {
	v, ok := u.values[key]
	return v, ok
}

// AfterCommit registers fn to run once the transaction commits. Rolled back
// or abandoned units discard the callbacks.
func (u *UnitOfWork) AfterCommit(fn func()) {
	u.onCommit = append(u.onCommit, fn)
}

// Begin opens a transaction.
func (u *UnitOfWork) Begin() error {
	if u.readOnly {
		return errors.New("cannot begin a transaction on a read-only unit of work")
	}
	if u.tx != nil {
		return errors.New("transaction already open")
	}
	tx, err := u.conn.BeginTx(u.ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	u.tx = tx
	return nil
}

// Commit commits the open transaction and runs AfterCommit callbacks.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return errors.New("no transaction to commit")
	}
	err := u.tx.Commit()
	u.tx = nil
	if err != nil {
		u.onCommit = nil
		return errors.Wrap(err, "commit transaction")
	}
	callbacks := u.onCommit
	u.onCommit = nil
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// Rollback aborts the open transaction, if any.
func (u *UnitOfWork) Rollback() error {
	u.onCommit = nil
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback()
	u.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Wrap(err, "rollback transaction")
	}
	return nil
}

// Close rolls back any open transaction and releases the connection.
// Close is idempotent.
func (u *UnitOfWork) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	rbErr := u.Rollback()
	if err := u.conn.Close(); err != nil {
		return errors.Wrap(err, "release connection")
	}
	return rbErr
}

// Exec runs a statement written with ? placeholders.
func (u *UnitOfWork) Exec(query string, args ...any) (sql.Result, error) {
	query = u.dialect.Rebind(query)
	u.logger.Debugw("exec", logger.FieldQuery, query)
	if u.tx != nil {
		return u.tx.ExecContext(u.ctx, query, args...)
	}
	return u.conn.ExecContext(u.ctx, query, args...)
}

// Query runs a query written with ? placeholders.
func (u *UnitOfWork) Query(query string, args ...any) (*sql.Rows, error) {
	query = u.dialect.Rebind(query)
	u.logger.Debugw("query", logger.FieldQuery, query)
	if u.tx != nil {
		return u.tx.QueryContext(u.ctx, query, args...)
	}
	return u.conn.QueryContext(u.ctx, query, args...)
}

// QueryRow runs a single-row query written with ? placeholders.
func (u *UnitOfWork) QueryRow(query string, args ...any) *sql.Row {
	query = u.dialect.Rebind(query)
	u.logger.Debugw("query row", logger.FieldQuery, query)
	if u.tx != nil {
		return u.tx.QueryRowContext(u.ctx, query, args...)
	}
	return u.conn.QueryRowContext(u.ctx, query, args...)
}
