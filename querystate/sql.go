package querystate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/cdr/db"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/orm"
)

var (
	registrationTable = orm.NewTable("query_registration", "query_id",
		"query_id", "shape", "total_count", "created_time", "expires_time")
	registrationKeyTable = orm.NewTable("query_registration_key", "query_id",
		"query_id", "ordinal", "entity_key")
)

type registrationRow struct {
	QueryID     uuid.UUID
	Shape       string
	TotalCount  int
	CreatedTime time.Time
	ExpiresTime time.Time
}

func (r *registrationRow) Table() *orm.Table { return registrationTable }

func (r *registrationRow) Values() []any {
	return []any{r.QueryID, r.Shape, r.TotalCount, r.CreatedTime, r.ExpiresTime}
}

func (r *registrationRow) Targets() []any {
	return []any{&r.QueryID, &r.Shape, &r.TotalCount, &r.CreatedTime, &r.ExpiresTime}
}

// keyBatchSize bounds the rows per multi-row insert, keeping well under
// SQLite's bind parameter limit.
const keyBatchSize = 200

// SQLRegistry persists registrations in the query_registration tables so any
// process sharing the database can page through them.
type SQLRegistry struct {
	provider  *orm.Provider
	retention time.Duration
	logger    *zap.SugaredLogger
}

// NewSQLRegistry builds a registry over the provider's database.
func NewSQLRegistry(p *orm.Provider, retention time.Duration, log *zap.SugaredLogger) *SQLRegistry {
	return &SQLRegistry{provider: p, retention: retention, logger: logger.OrNop(log)}
}

// RegisterQuerySet purges expired registrations, then writes the new one in
// the same transaction.
func (r *SQLRegistry) RegisterQuerySet(ctx context.Context, id uuid.UUID, keys []uuid.UUID, shape string, totalCount int) error {
	if err := validateRegistration(id, totalCount); err != nil {
		return err
	}

	u, err := r.provider.Open(ctx, false)
	if err != nil {
		return err
	}
	defer u.Close()
	if err := u.Begin(); err != nil {
		return err
	}

	created := now()
	purged, err := orm.DeleteWhere(u, registrationTable,
		orm.Compare{Column: registrationTable.Col("expires_time"), Op: orm.OpLe, Value: created})
	if err != nil {
		return err
	}

	reg := &registrationRow{
		QueryID:     id,
		Shape:       shape,
		TotalCount:  totalCount,
		CreatedTime: created,
		ExpiresTime: created.Add(r.retention),
	}
	if err := orm.Insert(u, reg); err != nil {
		if db.Classify(err).Code == db.CodeUnique {
			return errors.NewConflictError("query %s is already registered", id)
		}
		return err
	}
	if err := insertKeys(u, id, keys); err != nil {
		return err
	}
	if err := u.Commit(); err != nil {
		return err
	}

	r.logger.Debugw("query registered",
		logger.FieldQueryID, id,
		logger.FieldCount, len(keys),
		logger.FieldTotalCount, totalCount,
		"purged", purged)
	return nil
}

func insertKeys(u *orm.UnitOfWork, id uuid.UUID, keys []uuid.UUID) error {
	cols := strings.Join(registrationKeyTable.Columns, ", ")
	for start := 0; start < len(keys); start += keyBatchSize {
		end := min(start+keyBatchSize, len(keys))
		batch := keys[start:end]

		args := make([]any, 0, len(batch)*3)
		tuples := make([]string, len(batch))
		for i, k := range batch {
			tuples[i] = "(?, ?, ?)"
			args = append(args, id, start+i, k)
		}
		query := "INSERT INTO " + registrationKeyTable.Name + " (" + cols + ") VALUES " + strings.Join(tuples, ", ")
		if _, err := u.Exec(query, args...); err != nil {
			return errors.Wrapf(err, "register keys of query %s", id)
		}
	}
	return nil
}

func (r *SQLRegistry) live(u *orm.UnitOfWork, id uuid.UUID) (*registrationRow, error) {
	s := orm.NewSelect(registrationTable)
	s.Where = orm.AllOf(
		orm.Eq(registrationTable.KeyCol(), id),
		orm.Compare{Column: registrationTable.Col("expires_time"), Op: orm.OpGt, Value: now()},
	)
	reg, ok, err := orm.FetchOne(u, func() *registrationRow { return &registrationRow{} }, s)
	if err != nil || !ok {
		return nil, err
	}
	return reg, nil
}

func (r *SQLRegistry) IsRegistered(ctx context.Context, id uuid.UUID) (bool, error) {
	u, err := r.provider.Open(ctx, true)
	if err != nil {
		return false, err
	}
	defer u.Close()
	reg, err := r.live(u, id)
	return reg != nil, err
}

func (r *SQLRegistry) GetResultPage(ctx context.Context, id uuid.UUID, offset, count int) ([]uuid.UUID, error) {
	u, err := r.provider.Open(ctx, true)
	if err != nil {
		return nil, err
	}
	defer u.Close()

	reg, err := r.live(u, id)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, notRegistered(id)
	}

	s := orm.NewSelect(registrationKeyTable)
	s.Columns = []string{registrationKeyTable.Col("entity_key")}
	s.Where = orm.Eq(registrationKeyTable.Col("query_id"), id)
	s.OrderBy = []orm.Order{{Column: registrationKeyTable.Col("ordinal")}}
	s.Offset = max(offset, 0)
	if count >= 0 {
		s.Limit = count
	}
	keys, err := orm.Column[uuid.UUID](u, s)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []uuid.UUID{}
	}
	return keys, nil
}

func (r *SQLRegistry) GetTotalCount(ctx context.Context, id uuid.UUID) (int, error) {
	u, err := r.provider.Open(ctx, true)
	if err != nil {
		return 0, err
	}
	defer u.Close()

	reg, err := r.live(u, id)
	if err != nil {
		return 0, err
	}
	if reg == nil {
		return 0, notRegistered(id)
	}
	return reg.TotalCount, nil
}

// PurgeExpired deletes expired registrations and their keys.
func (r *SQLRegistry) PurgeExpired(ctx context.Context) (int64, error) {
	u, err := r.provider.Open(ctx, false)
	if err != nil {
		return 0, err
	}
	defer u.Close()
	return orm.DeleteWhere(u, registrationTable,
		orm.Compare{Column: registrationTable.Col("expires_time"), Op: orm.OpLe, Value: now()})
}
