package persistence

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/orm"
)

var provenanceTable = orm.NewTable("security_provenance", "provenance_key",
	"provenance_key", "actor_name", "established_time")

type provenanceRow struct {
	Key             uuid.UUID
	ActorName       string
	EstablishedTime time.Time
}

func (r *provenanceRow) Table() *orm.Table { return provenanceTable }
func (r *provenanceRow) Values() []any     { return []any{r.Key, r.ActorName, r.EstablishedTime} }
func (r *provenanceRow) Targets() []any    { return []any{&r.Key, &r.ActorName, &r.EstablishedTime} }

const provenanceValue = "persistence.provenance"

type establishedProvenance struct {
	actor string
	key   uuid.UUID
}

// Provenance records who performed a write. Each unit of work establishes
// one provenance row per actor and reuses it for every row it stamps.
type Provenance struct {
	now    func() time.Time
	logger *zap.SugaredLogger
}

// NewProvenance builds a provenance source.
func NewProvenance(now func() time.Time, log *zap.SugaredLogger) *Provenance {
	if now == nil {
		now = utcNow
	}
	return &Provenance{now: now, logger: logger.OrNop(log)}
}

// Establish returns the provenance key for actor on u, inserting the
// provenance row the first time. u must have an open transaction.
func (p *Provenance) Establish(u *orm.UnitOfWork, actor string) (uuid.UUID, error) {
	if actor == "" {
		return uuid.Nil, errors.NewArgumentError("actor is required to establish provenance")
	}
	if v, ok := u.Value(provenanceValue); ok {
		if est := v.(establishedProvenance); est.actor == actor {
			return est.key, nil
		}
	}

	row := &provenanceRow{Key: uuid.New(), ActorName: actor, EstablishedTime: p.now()}
	if err := orm.Insert(u, row); err != nil {
		return uuid.Nil, errors.Wrapf(err, "establish provenance for %s", actor)
	}
	u.Set(provenanceValue, establishedProvenance{actor: actor, key: row.Key})
	p.logger.Debugw("provenance established", logger.FieldActor, actor, logger.FieldKey, row.Key)
	return row.Key, nil
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
