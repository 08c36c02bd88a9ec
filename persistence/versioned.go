package persistence

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/cache"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/query"
)

// actStore persists acts: one identity row per act, one act_version row per
// version, a subtype row per version for classified acts, and the
// associations scoped by version sequence.
type actStore struct {
	policy       am.PersistenceConfig
	classes      *ClassificationMap
	associations []associationBinding
	metrics      *Metrics
	now          func() time.Time
	logger       *zap.SugaredLogger
}

func newActStore(policy am.PersistenceConfig, classes *ClassificationMap, assocs []associationBinding,
	m *Metrics, now func() time.Time, log *zap.SugaredLogger) *actStore {
	return &actStore{
		policy:       policy,
		classes:      classes,
		associations: assocs,
		metrics:      m,
		now:          now,
		logger:       log,
	}
}

// mapper builds the predicate mapper for acts. When promoted is not nil its
// fields are addressable without Has.
func (s *actStore) mapper(promoted SubtypeHandler) *mapper {
	m := newMapper(actVersionTable, map[string]string{
		model.ActKey.Path():             "act_key",
		model.ActVersionKey.Path():      "version_key",
		model.ActVersionSequence.Path(): "version_seq",
		model.ActClass.Path():           "class_key",
		model.ActMood.Path():            "mood_key",
		model.ActStatus.Path():          "status_key",
		model.ActType.Path():            "type_key",
		model.ActReason.Path():          "reason_key",
		model.ActNegated.Path():         "negation_ind",
		model.ActTime.Path():            "act_time",
		model.ActStartTime.Path():       "start_time",
		model.ActStopTime.Path():        "stop_time",
		model.ActCreationTime.Path():    "created_time",
	})
	for _, as := range s.associations {
		m.addComponent(as.name(), as.component())
	}
	for _, h := range s.classes.Handlers() {
		m.addComponent(h.path(), h.component())
	}
	if promoted != nil {
		m.promote(promoted.path())
	}
	return m
}

func (s *actStore) exists(u *orm.UnitOfWork, key uuid.UUID) (bool, error) {
	q := orm.NewSelect(actTable)
	q.Where = orm.Eq(actTable.KeyCol(), key)
	return orm.Exists(u, q)
}

// current returns the version row of key that nothing has superseded.
func (s *actStore) current(u *orm.UnitOfWork, key uuid.UUID) (*actVersionRow, bool, error) {
	q := orm.NewSelect(actVersionTable)
	q.Where = orm.AllOf(
		orm.Eq(actVersionTable.Col("act_key"), key),
		orm.Null{Column: actVersionTable.Col("obsoletion_time")},
	)
	q.OrderBy = []orm.Order{{Column: actVersionTable.Col("version_seq"), Desc: true}}
	return orm.FetchOne(u, newActVersionRow, q)
}

func (s *actStore) nextSequence(u *orm.UnitOfWork, key uuid.UUID) (int64, error) {
	q := orm.NewSelect(actVersionTable)
	q.Columns = []string{"MAX(" + actVersionTable.Col("version_seq") + ")"}
	q.Where = orm.Eq(actVersionTable.Col("act_key"), key)
	seqs, err := orm.Column[*int64](u, q)
	if err != nil {
		return 0, err
	}
	if len(seqs) == 0 || seqs[0] == nil {
		return 0, nil
	}
	return *seqs[0] + 1, nil
}

func (s *actStore) get(u *orm.UnitOfWork, key uuid.UUID, version *uuid.UUID) (model.ActModel, bool, error) {
	var (
		row   *actVersionRow
		found bool
		err   error
	)
	if version == nil {
		row, found, err = s.current(u, key)
	} else {
		q := orm.NewSelect(actVersionTable)
		q.Where = orm.AllOf(
			orm.Eq(actVersionTable.KeyCol(), *version),
			orm.Eq(actVersionTable.Col("act_key"), key),
		)
		row, found, err = orm.FetchOne(u, newActVersionRow, q)
	}
	if err != nil || !found {
		return nil, false, err
	}
	models, err := s.load(u, []*actVersionRow{row}, version != nil)
	if err != nil {
		return nil, false, err
	}
	return models[0], true, nil
}

// load converts version rows into models. With asOf the associations are
// those in effect at each row's sequence, otherwise the current ones.
func (s *actStore) load(u *orm.UnitOfWork, rows []*actVersionRow, asOf bool) ([]model.ActModel, error) {
	acts := make([]*model.Act, len(rows))
	for i, r := range rows {
		acts[i] = actFromVersionRow(r)
	}

	for _, as := range s.associations {
		if !asOf {
			if err := as.loadCurrent(u, acts); err != nil {
				return nil, err
			}
			continue
		}
		for _, a := range acts {
			if err := as.loadAsOf(u, a); err != nil {
				return nil, err
			}
		}
	}

	byClass := map[model.ClassKey][]uuid.UUID{}
	for _, a := range acts {
		if _, ok := s.classes.Lookup(a.ClassKey); ok {
			byClass[a.ClassKey] = append(byClass[a.ClassKey], a.VersionKey)
		}
	}
	prefetched := map[uuid.UUID]any{}
	for class, keys := range byClass {
		h, _ := s.classes.Lookup(class)
		rows, err := h.prefetch(u, keys)
		if err != nil {
			return nil, err
		}
		for k, r := range rows {
			prefetched[k] = r
		}
	}

	out := make([]model.ActModel, len(acts))
	for i, a := range acts {
		h, ok := s.classes.Lookup(a.ClassKey)
		if !ok {
			out[i] = a
			continue
		}
		m, err := h.extend(u, a, prefetched, s.logger)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

func (s *actStore) insert(u *orm.UnitOfWork, m model.ActModel, prov uuid.UUID) (model.ActModel, error) {
	h, err := s.classes.resolve(m)
	if err != nil {
		return nil, err
	}
	base := m.Base()
	if h != nil {
		if _, plain := m.(*model.Act); plain {
			return nil, errors.NewArgumentError("class %s is inserted as %s, got a plain act", h.ClassKey(), h.TypeName())
		}
		base.ClassKey = h.ClassKey()
	} else if base.ClassKey == "" {
		base.ClassKey = model.ClassAct
	}

	if base.Key == uuid.Nil {
		base.Key = uuid.New()
	}
	if base.StatusKey == uuid.Nil {
		base.StatusKey = model.StatusActive
	}
	if base.MoodKey == uuid.Nil {
		base.MoodKey = model.MoodEventOccurrence
	}
	now := s.now()
	base.VersionKey = uuid.New()
	base.VersionSequence = 0
	base.ReplacesVersionKey = nil
	base.CreationTime, base.CreatedBy = now, prov
	base.ObsoletionTime, base.ObsoletedBy = nil, nil

	if err := orm.Insert(u, &actRow{Key: base.Key, ClassKey: string(base.ClassKey), CreatedTime: now}); err != nil {
		return nil, err
	}
	if err := orm.Insert(u, versionRowFromAct(base)); err != nil {
		return nil, err
	}
	if h != nil {
		if err := h.insert(u, m); err != nil {
			return nil, err
		}
	}
	if err := s.reconcile(u, base, 0); err != nil {
		return nil, err
	}
	return s.reload(u, base.Key)
}

func (s *actStore) update(u *orm.UnitOfWork, m model.ActModel, prov uuid.UUID) (model.ActModel, error) {
	base := m.Base()
	cur, found, err := s.current(u, base.Key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFoundError("act %s", base.Key)
	}
	if s.policy.OptimisticConcurrency && base.VersionKey != uuid.Nil && base.VersionKey != cur.VersionKey {
		return nil, errors.NewConflictError("act %s: version %s is no longer current (current is %s)",
			base.Key, base.VersionKey, cur.VersionKey)
	}

	if base.ClassKey == "" {
		base.ClassKey = model.ClassKey(cur.ClassKey)
	}
	if base.MoodKey == uuid.Nil {
		base.MoodKey = cur.MoodKey
	}
	if base.StatusKey == uuid.Nil {
		base.StatusKey = cur.StatusKey
	}
	h, err := s.classes.resolve(m)
	if err != nil {
		return nil, err
	}
	if h != nil {
		base.ClassKey = h.ClassKey()
	}
	if string(base.ClassKey) != cur.ClassKey {
		return nil, errors.NewArgumentError("act %s is %s and cannot become %s", base.Key, cur.ClassKey, base.ClassKey)
	}
	_, plain := m.(*model.Act)

	var seq int64
	if s.policy.FullVersioning {
		if seq, err = s.nextSequence(u, base.Key); err != nil {
			return nil, err
		}
		now := s.now()
		res, err := u.Exec("UPDATE "+actVersionTable.Name+" SET obsoletion_time = ?, obsoleted_by = ? "+
			"WHERE version_key = ? AND obsoletion_time IS NULL", now, prov, cur.VersionKey)
		if err != nil {
			return nil, errors.Wrap(err, "supersede current version")
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, errors.Wrap(err, "supersede current version")
		} else if n == 0 {
			return nil, errors.NewConflictError("act %s: version %s was superseded concurrently", base.Key, cur.VersionKey)
		}

		replaces := cur.VersionKey
		base.VersionKey = uuid.New()
		base.VersionSequence = seq
		base.ReplacesVersionKey = &replaces
		base.CreationTime, base.CreatedBy = now, prov
		base.ObsoletionTime, base.ObsoletedBy = nil, nil
		if err := orm.Insert(u, versionRowFromAct(base)); err != nil {
			return nil, err
		}
		if h != nil {
			if plain {
				err = h.copyForward(u, cur.VersionKey, base.VersionKey)
			} else {
				err = h.insert(u, m)
			}
			if err != nil {
				return nil, err
			}
		}
	} else {
		seq = cur.VersionSeq
		base.VersionKey = cur.VersionKey
		base.VersionSequence = cur.VersionSeq
		base.ReplacesVersionKey = cur.ReplacesVersionKey
		base.CreationTime, base.CreatedBy = cur.CreatedTime, cur.CreatedBy
		base.ObsoletionTime, base.ObsoletedBy = nil, nil
		if _, err := orm.Update(u, versionRowFromAct(base)); err != nil {
			return nil, err
		}
		if h != nil && !plain {
			if err := h.replace(u, m); err != nil {
				return nil, err
			}
		}
		if err := s.prune(u, base); err != nil {
			return nil, err
		}
	}

	if err := s.reconcile(u, base, seq); err != nil {
		return nil, err
	}
	return s.reload(u, base.Key)
}

// prune keeps the current row and the one it replaces.
func (s *actStore) prune(u *orm.UnitOfWork, base *model.Act) error {
	keep := []any{base.VersionKey}
	if base.ReplacesVersionKey != nil {
		keep = append(keep, *base.ReplacesVersionKey)
	}
	n, err := orm.DeleteWhere(u, actVersionTable, orm.AllOf(
		orm.Eq(actVersionTable.Col("act_key"), base.Key),
		orm.In{Column: actVersionTable.Col("version_key"), Values: keep, Negate: true},
	))
	if err != nil {
		return errors.Wrap(err, "prune versions")
	}
	if n > 0 {
		s.logger.Debugw("pruned versions", logger.FieldKey, base.Key, logger.FieldCount, n)
	}
	return nil
}

// obsolete retires key through the obsolete status concept or, without
// logical deletion, removes the act and everything hanging off it.
func (s *actStore) obsolete(u *orm.UnitOfWork, key uuid.UUID, prov uuid.UUID) (model.ActModel, error) {
	m, found, err := s.get(u, key, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFoundError("act %s", key)
	}
	if s.policy.LogicalDeletion {
		m.Base().StatusKey = model.StatusObsolete
		return s.update(u, m, prov)
	}
	if _, err := orm.DeleteWhere(u, actTable, orm.Eq(actTable.KeyCol(), key)); err != nil {
		return nil, errors.Wrap(err, "delete act")
	}
	return m, nil
}

func (s *actStore) reconcile(u *orm.UnitOfWork, base *model.Act, seq int64) error {
	for _, as := range s.associations {
		st, err := as.reconcile(u, base, seq, s.policy.AssociationVersioning)
		if err != nil {
			return err
		}
		s.metrics.associationChanges(as.name(), st)
	}
	return nil
}

// reload reads back what a write stored, inside the write's transaction.
func (s *actStore) reload(u *orm.UnitOfWork, key uuid.UUID) (model.ActModel, error) {
	m, found, err := s.get(u, key, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.AssertionFailedf("act %s missing after write", key)
	}
	return m, nil
}

// history returns every version of key, newest first, following the
// replaces chain from the current version.
func (s *actStore) history(u *orm.UnitOfWork, key uuid.UUID) ([]model.ActModel, error) {
	q := orm.NewSelect(actVersionTable)
	q.Where = orm.Eq(actVersionTable.Col("act_key"), key)
	q.OrderBy = []orm.Order{{Column: actVersionTable.Col("version_seq"), Desc: true}}
	rows, err := orm.Fetch(u, newActVersionRow, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NewNotFoundError("act %s", key)
	}

	byKey := make(map[uuid.UUID]*actVersionRow, len(rows))
	for _, r := range rows {
		byKey[r.VersionKey] = r
	}
	chain := make([]*actVersionRow, 0, len(rows))
	for r := rows[0]; r != nil; {
		chain = append(chain, r)
		if r.ReplacesVersionKey == nil || len(chain) == len(rows) {
			break
		}
		r = byKey[*r.ReplacesVersionKey]
	}
	return s.load(u, chain, true)
}

// acts adapts the act store to one model type: the base act service or a
// subtype service bound to a single handler.
type acts[T model.ActModel] struct {
	store   *actStore
	name    string
	handler SubtypeHandler
	paths   *mapper
}

func newActs[T model.ActModel](store *actStore, name string, h SubtypeHandler) *acts[T] {
	return &acts[T]{store: store, name: name, handler: h, paths: store.mapper(h)}
}

func (b *acts[T]) typeName() string   { return b.name }
func (b *acts[T]) cachesModels() bool { return true }
func (b *acts[T]) source() source[T]  { return b }

// cacheKeys covers the association entries too: a hard obsolete cascades
// the member rows away without reconciling them.
func (b *acts[T]) cacheKeys(key uuid.UUID) []string {
	keys := make([]string, 0, len(b.store.associations)+1)
	keys = append(keys, cache.ModelKey(key))
	for _, as := range b.store.associations {
		keys = append(keys, cache.AssociationKey(as.table().Name, key))
	}
	return keys
}

// cast narrows a stored act to T. Acts of another class do not exist for a
// subtype service.
func (b *acts[T]) cast(m model.ActModel) (T, bool) {
	t, ok := m.(T)
	return t, ok
}

func (b *acts[T]) get(u *orm.UnitOfWork, key uuid.UUID, version *uuid.UUID) (T, bool, error) {
	var zero T
	m, found, err := b.store.get(u, key, version)
	if err != nil || !found {
		return zero, false, err
	}
	t, ok := b.cast(m)
	return t, ok, nil
}

func (b *acts[T]) exists(u *orm.UnitOfWork, key uuid.UUID) (bool, error) {
	if b.handler == nil {
		return b.store.exists(u, key)
	}
	_, found, err := b.get(u, key, nil)
	return found, err
}

func (b *acts[T]) written(m model.ActModel, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	t, ok := b.cast(m)
	if !ok {
		return zero, errors.AssertionFailedf("%s write returned %T", b.name, m)
	}
	return t, nil
}

func (b *acts[T]) insert(u *orm.UnitOfWork, m T, prov uuid.UUID) (T, error) {
	return b.written(b.store.insert(u, m, prov))
}

func (b *acts[T]) update(u *orm.UnitOfWork, m T, prov uuid.UUID) (T, error) {
	return b.written(b.store.update(u, m, prov))
}

func (b *acts[T]) obsolete(u *orm.UnitOfWork, key uuid.UUID, prov uuid.UUID) (T, error) {
	var zero T
	if b.handler != nil {
		if _, found, err := b.get(u, key, nil); err != nil {
			return zero, err
		} else if !found {
			return zero, errors.NewNotFoundError("%s %s", b.name, key)
		}
	}
	return b.written(b.store.obsolete(u, key, prov))
}

func (b *acts[T]) history(u *orm.UnitOfWork, key uuid.UUID) ([]T, error) {
	versions, err := b.store.history(u, key)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(versions))
	for _, m := range versions {
		t, ok := b.cast(m)
		if !ok {
			return nil, errors.NewNotFoundError("%s %s", b.name, key)
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *acts[T]) table() *orm.Table { return actVersionTable }
func (b *acts[T]) keyColumn() string { return actVersionTable.Col("act_key") }

func (b *acts[T]) scope() orm.Expr {
	current := orm.Null{Column: actVersionTable.Col("obsoletion_time")}
	if b.handler == nil {
		return current
	}
	return orm.AllOf(current, orm.Eq(actVersionTable.Col("class_key"), string(b.handler.ClassKey())))
}

// filter hides obsolete acts unless the predicate asks about status.
func (b *acts[T]) filter(p query.Predicate) (orm.Expr, error) {
	where, err := b.paths.translate(p)
	if err != nil {
		return nil, err
	}
	var implicit orm.Expr
	if !query.Mentions(p, model.ActStatus.Path()) {
		implicit = orm.Compare{Column: actVersionTable.Col("status_key"), Op: orm.OpNe, Value: model.StatusObsolete}
	}
	return orm.AllOf(b.scope(), implicit, where), nil
}

func (b *acts[T]) orderColumn(path string) (string, error) {
	return b.paths.column(path)
}

func (b *acts[T]) load(u *orm.UnitOfWork, s *orm.Select) ([]T, error) {
	rows, err := orm.Fetch(u, newActVersionRow, s)
	if err != nil {
		return nil, err
	}
	models, err := b.store.load(u, rows, false)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(models))
	for _, m := range models {
		if t, ok := b.cast(m); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// VersionedService is the persistence service of an act type, with access
// to the version history.
type VersionedService[T model.ActModel] struct {
	*Service[T]
	acts *acts[T]
}

// History returns every version of key, newest first. Each version carries
// the associations that were in effect for it.
func (s *VersionedService[T]) History(ctx context.Context, key uuid.UUID) ([]T, error) {
	if key == uuid.Nil {
		return nil, errors.NewArgumentError("key is required")
	}
	u, err := s.provider.Open(ctx, true)
	if err != nil {
		return nil, translate(err, "open unit of work")
	}
	defer u.Close()
	versions, err := s.acts.history(u, key)
	if err != nil {
		return nil, translate(err, "history of "+s.Name())
	}
	return versions, nil
}

// Classes returns the classification map the service dispatches with.
func (s *VersionedService[T]) Classes() *ClassificationMap {
	return s.acts.store.classes
}

// classNames lists the registered classification keys.
func classNames(m *ClassificationMap) []string {
	out := make([]string, 0, len(m.handlers))
	for _, h := range m.handlers {
		out = append(out, string(h.ClassKey()))
	}
	slices.Sort(out)
	return out
}
