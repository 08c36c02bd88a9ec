package persistence

import (
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/cdr/cache"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
)

// inBatchSize bounds the bind parameters of one IN list.
const inBatchSize = 500

// ReconcileStats counts the rows written while reconciling one association.
type ReconcileStats struct {
	Inserted  int
	Updated   int
	Obsoleted int
	Deleted   int
}

// Changed reports whether any row was written.
func (s ReconcileStats) Changed() bool {
	return s.Inserted+s.Updated+s.Obsoleted+s.Deleted > 0
}

func (s *ReconcileStats) add(o ReconcileStats) {
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Obsoleted += o.Obsoleted
	s.Deleted += o.Deleted
}

// seqStamps scope a versioned association row to the owner's version
// sequence.
type seqStamps struct {
	Effective int64
	Obsolete  *int64
}

// assocRow is a physical association row.
type assocRow interface {
	orm.Row
	rowKey() uuid.UUID
	setRowKey(uuid.UUID)
	ownerKey() uuid.UUID
	// stamps is nil for simple associations.
	stamps() *seqStamps
}

// associationBinding is the type-erased view of an association the act store
// works with.
type associationBinding interface {
	name() string
	table() *orm.Table
	component() component
	reconcile(u *orm.UnitOfWork, act *model.Act, seq int64, versioning bool) (ReconcileStats, error)
	loadCurrent(u *orm.UnitOfWork, acts []*model.Act) error
	loadAsOf(u *orm.UnitOfWork, act *model.Act) error
}

// association reconciles one child collection of an act.
type association[A any, R assocRow] struct {
	path      string
	tbl       *orm.Table
	versioned bool
	fields    map[string]string // member path -> column

	newRow  func() R
	toRow   func(owner uuid.UUID, a A) R
	fromRow func(R) A
	keyOf   func(A) uuid.UUID
	same    func(a, b A) bool
	get     func(*model.Act) []A
	set     func(*model.Act, []A)
	// check validates references of a member about to be inserted.
	check func(u *orm.UnitOfWork, a A) error

	cache  cache.Service
	logger *zap.SugaredLogger
}

func (as *association[A, R]) name() string      { return as.path }
func (as *association[A, R]) table() *orm.Table { return as.tbl }

func (as *association[A, R]) ownerCol() string { return as.tbl.Col("act_key") }

// current selects an owner's rows that no version has superseded.
func (as *association[A, R]) current() orm.Expr {
	if !as.versioned {
		return nil
	}
	return orm.Null{Column: as.tbl.Col("obsolete_seq")}
}

// asOf selects rows in effect at sequence seq.
func (as *association[A, R]) asOf(seq int64) orm.Expr {
	if !as.versioned {
		return nil
	}
	return orm.AllOf(
		orm.Compare{Column: as.tbl.Col("effective_seq"), Op: orm.OpLe, Value: seq},
		orm.Or{
			orm.Null{Column: as.tbl.Col("obsolete_seq")},
			orm.Compare{Column: as.tbl.Col("obsolete_seq"), Op: orm.OpGt, Value: seq},
		},
	)
}

func (as *association[A, R]) component() component {
	cols := make(map[string]string, len(as.fields))
	for path, col := range as.fields {
		cols[path] = col
	}
	return component{
		table: as.tbl,
		link:  "act_key",
		owner: actVersionTable.Col("act_key"),
		scope: as.current(),
		paths: newMapper(as.tbl, cols),
	}
}

func (as *association[A, R]) fetch(u *orm.UnitOfWork, where orm.Expr) ([]R, error) {
	s := orm.NewSelect(as.tbl)
	s.Where = where
	s.OrderBy = []orm.Order{{Column: as.tbl.KeyCol()}}
	return orm.Fetch(u, as.newRow, s)
}

// reconcile makes the owner's current set equal act's desired members.
func (as *association[A, R]) reconcile(u *orm.UnitOfWork, act *model.Act, seq int64, versioning bool) (ReconcileStats, error) {
	var st ReconcileStats
	versioning = versioning && as.versioned

	existing, err := as.fetch(u, orm.AllOf(orm.Eq(as.ownerCol(), act.Key), as.current()))
	if err != nil {
		return st, err
	}
	byKey := make(map[uuid.UUID]R, len(existing))
	for _, r := range existing {
		byKey[r.rowKey()] = r
	}
	// the first desired member carrying an existing key claims that row
	desired := as.get(act)
	claims := make([]bool, len(desired))
	seen := make(map[uuid.UUID]bool, len(existing))
	for i, want := range desired {
		key := as.keyOf(want)
		if _, ok := byKey[key]; ok && !seen[key] {
			seen[key] = true
			claims[i] = true
		}
	}

	// removals first, so unique member columns are free for the inserts
	for _, cur := range existing {
		if seen[cur.rowKey()] {
			continue
		}
		if versioning {
			if err := as.obsoleteRow(u, cur, seq); err != nil {
				return st, err
			}
			st.Obsoleted++
			continue
		}
		if err := orm.Delete(u, cur); err != nil {
			return st, errors.Wrapf(err, "delete %s member %s", as.path, cur.rowKey())
		}
		st.Deleted++
	}

	for i, want := range desired {
		key := as.keyOf(want)
		if claims[i] {
			cur := byKey[key]
			if as.same(as.fromRow(cur), want) {
				continue
			}
			if as.check != nil {
				if err := as.check(u, want); err != nil {
					return st, err
				}
			}
			if versioning {
				if err := as.obsoleteRow(u, cur, seq); err != nil {
					return st, err
				}
				st.Obsoleted++
				if err := as.insertRow(u, act.Key, want, uuid.New(), seq); err != nil {
					return st, err
				}
				st.Inserted++
				continue
			}
			r := as.toRow(act.Key, want)
			r.setRowKey(key)
			if s := r.stamps(); s != nil {
				*s = *cur.stamps()
			}
			if _, err := orm.Update(u, r); err != nil {
				return st, errors.Wrapf(err, "update %s member %s", as.path, key)
			}
			st.Updated++
			continue
		}

		if key == uuid.Nil || seen[key] {
			key = uuid.New()
		} else {
			probe := orm.NewSelect(as.tbl)
			probe.Where = orm.Eq(as.tbl.KeyCol(), key)
			taken, err := orm.Exists(u, probe)
			if err != nil {
				return st, err
			}
			if taken {
				key = uuid.New()
			}
		}
		seen[key] = true
		if as.check != nil {
			if err := as.check(u, want); err != nil {
				return st, err
			}
		}
		if err := as.insertRow(u, act.Key, want, key, seq); err != nil {
			return st, err
		}
		st.Inserted++
	}

	if st.Changed() {
		cacheKey := cache.AssociationKey(as.tbl.Name, act.Key)
		u.AfterCommit(func() { cache.Evict(as.cache, cacheKey) })
		as.logger.Debugw("association reconciled",
			logger.FieldKey, act.Key,
			logger.FieldTable, as.tbl.Name,
			logger.FieldVersionSeq, seq,
			"inserted", st.Inserted,
			"updated", st.Updated,
			"obsoleted", st.Obsoleted,
			"deleted", st.Deleted)
	}
	return st, nil
}

func (as *association[A, R]) insertRow(u *orm.UnitOfWork, owner uuid.UUID, a A, key uuid.UUID, seq int64) error {
	r := as.toRow(owner, a)
	r.setRowKey(key)
	if s := r.stamps(); s != nil {
		*s = seqStamps{Effective: seq}
	}
	if err := orm.Insert(u, r); err != nil {
		return errors.Wrapf(err, "insert %s member", as.path)
	}
	return nil
}

func (as *association[A, R]) obsoleteRow(u *orm.UnitOfWork, r R, seq int64) error {
	r.stamps().Obsolete = &seq
	if _, err := orm.Update(u, r); err != nil {
		return errors.Wrapf(err, "obsolete %s member %s", as.path, r.rowKey())
	}
	return nil
}

// loadCurrent fills the current members of every act, reading cached sets
// where the cache holds associations.
func (as *association[A, R]) loadCurrent(u *orm.UnitOfWork, acts []*model.Act) error {
	var missing []any
	pending := make(map[uuid.UUID]bool, len(acts))
	// a transaction may have changed the sets, so it reads and fills nothing
	cached := !u.InTransaction()
	for _, a := range acts {
		if cached {
			if v, ok := cache.Lookup(as.cache, cache.CategoryAssociations, cache.AssociationKey(as.tbl.Name, a.Key)); ok {
				as.set(a, slices.Clone(v.([]A)))
				continue
			}
		}
		missing = append(missing, a.Key)
		pending[a.Key] = true
	}
	if len(missing) == 0 {
		return nil
	}

	byOwner := make(map[uuid.UUID][]A, len(missing))
	for chunk := range slices.Chunk(missing, inBatchSize) {
		rows, err := as.fetch(u, orm.AllOf(orm.In{Column: as.ownerCol(), Values: chunk}, as.current()))
		if err != nil {
			return err
		}
		for _, r := range rows {
			byOwner[r.ownerKey()] = append(byOwner[r.ownerKey()], as.fromRow(r))
		}
	}
	for _, a := range acts {
		if !pending[a.Key] {
			continue
		}
		members := byOwner[a.Key]
		as.set(a, members)
		if cached {
			cache.Store(as.cache, cache.CategoryAssociations, cache.AssociationKey(as.tbl.Name, a.Key), slices.Clone(members))
		}
	}
	return nil
}

// loadAsOf fills the members that were current at act's version.
func (as *association[A, R]) loadAsOf(u *orm.UnitOfWork, act *model.Act) error {
	rows, err := as.fetch(u, orm.AllOf(orm.Eq(as.ownerCol(), act.Key), as.asOf(act.VersionSequence)))
	if err != nil {
		return err
	}
	var members []A
	for _, r := range rows {
		members = append(members, as.fromRow(r))
	}
	as.set(act, members)
	return nil
}
