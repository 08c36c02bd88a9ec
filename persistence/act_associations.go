package persistence

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/cdr/cache"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
)

var (
	participationTable = orm.NewTable("act_participation", "participation_key",
		"participation_key", "act_key", "player_key", "role_key", "quantity", "effective_seq", "obsolete_seq")
	relationshipTable = orm.NewTable("act_relationship", "relationship_key",
		"relationship_key", "act_key", "target_key", "relationship_type_key", "effective_seq", "obsolete_seq")
	identifierTable = orm.NewTable("act_identifier", "identifier_key",
		"identifier_key", "act_key", "authority_key", "value", "effective_seq", "obsolete_seq")
	extensionTable = orm.NewTable("act_extension", "extension_key",
		"extension_key", "act_key", "extension_type_key", "value", "effective_seq", "obsolete_seq")
	tagTable = orm.NewTable("act_tag", "tag_key",
		"tag_key", "act_key", "tag_name", "tag_value")
)

type participationRow struct {
	Key       uuid.UUID
	ActKey    uuid.UUID
	PlayerKey uuid.UUID
	RoleKey   uuid.UUID
	Quantity  *int64
	seqStamps
}

func (r *participationRow) Table() *orm.Table { return participationTable }
func (r *participationRow) Values() []any {
	return []any{r.Key, r.ActKey, r.PlayerKey, r.RoleKey, r.Quantity, r.Effective, r.Obsolete}
}
func (r *participationRow) Targets() []any {
	return []any{&r.Key, &r.ActKey, &r.PlayerKey, &r.RoleKey, &r.Quantity, &r.Effective, &r.Obsolete}
}
func (r *participationRow) rowKey() uuid.UUID     { return r.Key }
func (r *participationRow) setRowKey(k uuid.UUID) { r.Key = k }
func (r *participationRow) ownerKey() uuid.UUID   { return r.ActKey }
func (r *participationRow) stamps() *seqStamps    { return &r.seqStamps }

type relationshipRow struct {
	Key       uuid.UUID
	ActKey    uuid.UUID
	TargetKey uuid.UUID
	TypeKey   uuid.UUID
	seqStamps
}

func (r *relationshipRow) Table() *orm.Table { return relationshipTable }
func (r *relationshipRow) Values() []any {
	return []any{r.Key, r.ActKey, r.TargetKey, r.TypeKey, r.Effective, r.Obsolete}
}
func (r *relationshipRow) Targets() []any {
	return []any{&r.Key, &r.ActKey, &r.TargetKey, &r.TypeKey, &r.Effective, &r.Obsolete}
}
func (r *relationshipRow) rowKey() uuid.UUID     { return r.Key }
func (r *relationshipRow) setRowKey(k uuid.UUID) { r.Key = k }
func (r *relationshipRow) ownerKey() uuid.UUID   { return r.ActKey }
func (r *relationshipRow) stamps() *seqStamps    { return &r.seqStamps }

type identifierRow struct {
	Key          uuid.UUID
	ActKey       uuid.UUID
	AuthorityKey uuid.UUID
	Value        string
	seqStamps
}

func (r *identifierRow) Table() *orm.Table { return identifierTable }
func (r *identifierRow) Values() []any {
	return []any{r.Key, r.ActKey, r.AuthorityKey, r.Value, r.Effective, r.Obsolete}
}
func (r *identifierRow) Targets() []any {
	return []any{&r.Key, &r.ActKey, &r.AuthorityKey, &r.Value, &r.Effective, &r.Obsolete}
}
func (r *identifierRow) rowKey() uuid.UUID     { return r.Key }
func (r *identifierRow) setRowKey(k uuid.UUID) { r.Key = k }
func (r *identifierRow) ownerKey() uuid.UUID   { return r.ActKey }
func (r *identifierRow) stamps() *seqStamps    { return &r.seqStamps }

type extensionRow struct {
	Key     uuid.UUID
	ActKey  uuid.UUID
	TypeKey uuid.UUID
	Value   []byte
	seqStamps
}

func (r *extensionRow) Table() *orm.Table { return extensionTable }
func (r *extensionRow) Values() []any {
	return []any{r.Key, r.ActKey, r.TypeKey, r.Value, r.Effective, r.Obsolete}
}
func (r *extensionRow) Targets() []any {
	return []any{&r.Key, &r.ActKey, &r.TypeKey, &r.Value, &r.Effective, &r.Obsolete}
}
func (r *extensionRow) rowKey() uuid.UUID     { return r.Key }
func (r *extensionRow) setRowKey(k uuid.UUID) { r.Key = k }
func (r *extensionRow) ownerKey() uuid.UUID   { return r.ActKey }
func (r *extensionRow) stamps() *seqStamps    { return &r.seqStamps }

type tagRow struct {
	Key    uuid.UUID
	ActKey uuid.UUID
	Name   string
	Value  string
}

func (r *tagRow) Table() *orm.Table     { return tagTable }
func (r *tagRow) Values() []any         { return []any{r.Key, r.ActKey, r.Name, r.Value} }
func (r *tagRow) Targets() []any        { return []any{&r.Key, &r.ActKey, &r.Name, &r.Value} }
func (r *tagRow) rowKey() uuid.UUID     { return r.Key }
func (r *tagRow) setRowKey(k uuid.UUID) { r.Key = k }
func (r *tagRow) ownerKey() uuid.UUID   { return r.ActKey }
func (r *tagRow) stamps() *seqStamps    { return nil }

func int64Ptr(p *int) *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}

func intPtr(p *int64) *int {
	if p == nil {
		return nil
	}
	v := int(*p)
	return &v
}

// referenceExists returns a not-found error naming what when no row of t has
// the given key.
func referenceExists(u *orm.UnitOfWork, t *orm.Table, key uuid.UUID, what string) error {
	s := orm.NewSelect(t)
	s.Where = orm.Eq(t.KeyCol(), key)
	ok, err := orm.Exists(u, s)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewNotFoundError("%s %s does not exist", what, key)
	}
	return nil
}

// actAssociations builds the bindings for every child collection of an act.
func actAssociations(c cache.Service, log *zap.SugaredLogger) []associationBinding {
	return []associationBinding{
		&association[model.ActParticipation, *participationRow]{
			path:      string(model.ActParticipations),
			tbl:       participationTable,
			versioned: true,
			fields: map[string]string{
				model.ParticipationPlayer.Path(): "player_key",
				model.ParticipationRole.Path():   "role_key",
			},
			newRow: func() *participationRow { return &participationRow{} },
			toRow: func(owner uuid.UUID, p model.ActParticipation) *participationRow {
				return &participationRow{
					Key: p.Key, ActKey: owner, PlayerKey: p.PlayerKey, RoleKey: p.RoleKey,
					Quantity: int64Ptr(p.Quantity),
				}
			},
			fromRow: func(r *participationRow) model.ActParticipation {
				return model.ActParticipation{
					Key: r.Key, PlayerKey: r.PlayerKey, RoleKey: r.RoleKey, Quantity: intPtr(r.Quantity),
					EffectiveSeq: r.Effective, ObsoleteSeq: r.Obsolete,
				}
			},
			keyOf:  func(p model.ActParticipation) uuid.UUID { return p.Key },
			same:   model.ActParticipation.SameAs,
			get:    func(a *model.Act) []model.ActParticipation { return a.Participations },
			set:    func(a *model.Act, v []model.ActParticipation) { a.Participations = v },
			cache:  c,
			logger: log,
		},
		&association[model.ActRelationship, *relationshipRow]{
			path:      string(model.ActRelationships),
			tbl:       relationshipTable,
			versioned: true,
			fields: map[string]string{
				model.RelationshipTarget.Path(): "target_key",
				model.RelationshipType.Path():   "relationship_type_key",
			},
			newRow: func() *relationshipRow { return &relationshipRow{} },
			toRow: func(owner uuid.UUID, r model.ActRelationship) *relationshipRow {
				return &relationshipRow{Key: r.Key, ActKey: owner, TargetKey: r.TargetKey, TypeKey: r.TypeKey}
			},
			fromRow: func(r *relationshipRow) model.ActRelationship {
				return model.ActRelationship{
					Key: r.Key, TargetKey: r.TargetKey, TypeKey: r.TypeKey,
					EffectiveSeq: r.Effective, ObsoleteSeq: r.Obsolete,
				}
			},
			keyOf: func(r model.ActRelationship) uuid.UUID { return r.Key },
			same:  model.ActRelationship.SameAs,
			get:   func(a *model.Act) []model.ActRelationship { return a.Relationships },
			set:   func(a *model.Act, v []model.ActRelationship) { a.Relationships = v },
			check: func(u *orm.UnitOfWork, r model.ActRelationship) error {
				return referenceExists(u, actTable, r.TargetKey, "relationship target act")
			},
			cache:  c,
			logger: log,
		},
		&association[model.ActIdentifier, *identifierRow]{
			path:      string(model.ActIdentifiers),
			tbl:       identifierTable,
			versioned: true,
			fields: map[string]string{
				model.IdentifierAuthority.Path(): "authority_key",
				model.IdentifierValue.Path():     "value",
			},
			newRow: func() *identifierRow { return &identifierRow{} },
			toRow: func(owner uuid.UUID, i model.ActIdentifier) *identifierRow {
				return &identifierRow{Key: i.Key, ActKey: owner, AuthorityKey: i.AuthorityKey, Value: i.Value}
			},
			fromRow: func(r *identifierRow) model.ActIdentifier {
				return model.ActIdentifier{
					Key: r.Key, AuthorityKey: r.AuthorityKey, Value: r.Value,
					EffectiveSeq: r.Effective, ObsoleteSeq: r.Obsolete,
				}
			},
			keyOf: func(i model.ActIdentifier) uuid.UUID { return i.Key },
			same:  model.ActIdentifier.SameAs,
			get:   func(a *model.Act) []model.ActIdentifier { return a.Identifiers },
			set:   func(a *model.Act, v []model.ActIdentifier) { a.Identifiers = v },
			check: func(u *orm.UnitOfWork, i model.ActIdentifier) error {
				return referenceExists(u, authorityTable, i.AuthorityKey, "assigning authority")
			},
			cache:  c,
			logger: log,
		},
		&association[model.ActExtension, *extensionRow]{
			path:      string(model.ActExtensions),
			tbl:       extensionTable,
			versioned: true,
			fields: map[string]string{
				model.ExtensionTypeKey.Path(): "extension_type_key",
			},
			newRow: func() *extensionRow { return &extensionRow{} },
			toRow: func(owner uuid.UUID, e model.ActExtension) *extensionRow {
				return &extensionRow{Key: e.Key, ActKey: owner, TypeKey: e.TypeKey, Value: e.Value}
			},
			fromRow: func(r *extensionRow) model.ActExtension {
				return model.ActExtension{
					Key: r.Key, TypeKey: r.TypeKey, Value: r.Value,
					EffectiveSeq: r.Effective, ObsoleteSeq: r.Obsolete,
				}
			},
			keyOf: func(e model.ActExtension) uuid.UUID { return e.Key },
			same:  model.ActExtension.SameAs,
			get:   func(a *model.Act) []model.ActExtension { return a.Extensions },
			set:   func(a *model.Act, v []model.ActExtension) { a.Extensions = v },
			check: func(u *orm.UnitOfWork, e model.ActExtension) error {
				return referenceExists(u, extensionTypeTable, e.TypeKey, "extension type")
			},
			cache:  c,
			logger: log,
		},
		&association[model.ActTag, *tagRow]{
			path: string(model.ActTags),
			tbl:  tagTable,
			fields: map[string]string{
				model.TagName.Path():  "tag_name",
				model.TagValue.Path(): "tag_value",
			},
			newRow: func() *tagRow { return &tagRow{} },
			toRow: func(owner uuid.UUID, t model.ActTag) *tagRow {
				return &tagRow{Key: t.Key, ActKey: owner, Name: t.Name, Value: t.Value}
			},
			fromRow: func(r *tagRow) model.ActTag {
				return model.ActTag{Key: r.Key, Name: r.Name, Value: r.Value}
			},
			keyOf:  func(t model.ActTag) uuid.UUID { return t.Key },
			same:   model.ActTag.SameAs,
			get:    func(a *model.Act) []model.ActTag { return a.Tags },
			set:    func(a *model.Act, v []model.ActTag) { a.Tags = v },
			cache:  c,
			logger: log,
		},
	}
}
