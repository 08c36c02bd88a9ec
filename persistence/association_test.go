package persistence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/model"
)

func (f *fixture) associationChanges(association, change string) float64 {
	return testutil.ToFloat64(f.metrics.associations.WithLabelValues(association, change))
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t)
	svc := quantityService(t, f)

	m := quantity(5)
	m.Tags = []model.ActTag{{Name: "source", Value: "lab"}}
	stored, err := svc.Insert(ctx, m, ModeCommit, actor)
	require.NoError(t, err)
	require.Equal(t, 1.0, f.associationChanges("participations", "inserted"))
	require.Equal(t, 1.0, f.associationChanges("tags", "inserted"))

	again, err := svc.Update(ctx, stored, ModeCommit, actor)
	require.NoError(t, err)

	assert.Equal(t, 1.0, f.associationChanges("participations", "inserted"))
	assert.Zero(t, f.associationChanges("participations", "obsoleted"))
	assert.Equal(t, 1.0, f.associationChanges("tags", "inserted"))
	require.Len(t, again.Participations, 1)
	assert.Equal(t, stored.Participations[0].Key, again.Participations[0].Key)
	assert.Equal(t, int64(0), again.Participations[0].EffectiveSeq)
	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM act_participation"))
}

func TestAssociations_AsOfVersion(t *testing.T) {
	f := newFixture(t)
	svc := quantityService(t, f)

	v0, err := svc.Insert(ctx, quantity(5), ModeCommit, actor)
	require.NoError(t, err)
	first := v0.Participations[0].PlayerKey

	second := uuid.New()
	edit := v0.Clone().(*model.QuantityObservation)
	edit.Participations = []model.ActParticipation{{PlayerKey: second, RoleKey: model.RoleRecordTarget}}
	v1, err := svc.Update(ctx, edit, ModeCommit, actor)
	require.NoError(t, err)
	require.Len(t, v1.Participations, 1)
	assert.Equal(t, second, v1.Participations[0].PlayerKey)
	assert.Equal(t, int64(1), v1.Participations[0].EffectiveSeq)
	assert.Equal(t, 1.0, f.associationChanges("participations", "obsoleted"))

	old, err := svc.Get(ctx, v0.Key, &v0.VersionKey)
	require.NoError(t, err)
	require.Len(t, old.Participations, 1)
	assert.Equal(t, first, old.Participations[0].PlayerKey)
	require.NotNil(t, old.Participations[0].ObsoleteSeq)
	assert.Equal(t, int64(1), *old.Participations[0].ObsoleteSeq)

	history, err := svc.History(ctx, v0.Key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0].Participations[0].PlayerKey)
	assert.Equal(t, first, history[1].Participations[0].PlayerKey)

	// rows are kept, scoped by sequence
	assert.Equal(t, 2, f.count(t, "SELECT COUNT(*) FROM act_participation"))
}

func TestReconcile_ChangedMemberGetsNewRow(t *testing.T) {
	f := newFixture(t)
	svc := quantityService(t, f)

	m := quantity(5)
	m.Participations[0].Quantity = ptr(1)
	v0, err := svc.Insert(ctx, m, ModeCommit, actor)
	require.NoError(t, err)

	edit := v0.Clone().(*model.QuantityObservation)
	edit.Participations[0].Quantity = ptr(2)
	v1, err := svc.Update(ctx, edit, ModeCommit, actor)
	require.NoError(t, err)

	require.Len(t, v1.Participations, 1)
	assert.NotEqual(t, v0.Participations[0].Key, v1.Participations[0].Key)
	require.NotNil(t, v1.Participations[0].Quantity)
	assert.Equal(t, 2, *v1.Participations[0].Quantity)
}

func TestReconcile_UnversionedChangesInPlace(t *testing.T) {
	f := newFixture(t, func(c *am.PersistenceConfig) { c.AssociationVersioning = false })
	svc := quantityService(t, f)

	m := quantity(5)
	m.Participations = append(m.Participations, model.ActParticipation{PlayerKey: uuid.New(), RoleKey: model.RoleAuthor})
	v0, err := svc.Insert(ctx, m, ModeCommit, actor)
	require.NoError(t, err)
	require.Len(t, v0.Participations, 2)

	edit := v0.Clone().(*model.QuantityObservation)
	kept := edit.Participations[0]
	kept.Quantity = ptr(4)
	edit.Participations = []model.ActParticipation{kept}
	v1, err := svc.Update(ctx, edit, ModeCommit, actor)
	require.NoError(t, err)

	require.Len(t, v1.Participations, 1)
	assert.Equal(t, kept.Key, v1.Participations[0].Key)
	require.NotNil(t, v1.Participations[0].Quantity)
	assert.Equal(t, 4, *v1.Participations[0].Quantity)
	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM act_participation"))
	assert.Equal(t, 1.0, f.associationChanges("participations", "deleted"))
	assert.Equal(t, 1.0, f.associationChanges("participations", "updated"))
}

func TestReconcile_TagValueReplaced(t *testing.T) {
	f := newFixture(t)
	svc := quantityService(t, f)

	m := quantity(5)
	m.Tags = []model.ActTag{{Name: "source", Value: "lab"}}
	v0, err := svc.Insert(ctx, m, ModeCommit, actor)
	require.NoError(t, err)

	edit := v0.Clone().(*model.QuantityObservation)
	edit.Tags = []model.ActTag{{Name: "source", Value: "device"}}
	v1, err := svc.Update(ctx, edit, ModeCommit, actor)
	require.NoError(t, err)

	require.Len(t, v1.Tags, 1)
	assert.Equal(t, "device", v1.Tags[0].Value)
	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM act_tag"))
}

func TestAssociations_ReferencesChecked(t *testing.T) {
	f := newFixture(t)

	withRelationship := &model.Act{Relationships: []model.ActRelationship{
		{TargetKey: uuid.New(), TypeKey: model.RelationshipHasComponent},
	}}
	_, err := f.repo.Acts.Insert(ctx, withRelationship, ModeCommit, actor)
	assert.True(t, errors.IsNotFoundError(err), "got %v", err)

	withIdentifier := &model.Act{Identifiers: []model.ActIdentifier{
		{AuthorityKey: uuid.New(), Value: "A-1"},
	}}
	_, err = f.repo.Acts.Insert(ctx, withIdentifier, ModeCommit, actor)
	assert.True(t, errors.IsNotFoundError(err), "got %v", err)

	withExtension := &model.Act{Extensions: []model.ActExtension{
		{TypeKey: uuid.New(), Value: []byte("{}")},
	}}
	_, err = f.repo.Acts.Insert(ctx, withExtension, ModeCommit, actor)
	assert.True(t, errors.IsNotFoundError(err), "got %v", err)

	// nothing of the failed writes remains
	assert.Zero(t, f.count(t, "SELECT COUNT(*) FROM act"))
}

func TestAssociations_ReferencesResolved(t *testing.T) {
	f := newFixture(t)

	authority, err := f.repo.Authorities.Insert(ctx, &model.AssigningAuthority{
		DomainName: "MRN",
		Name:       "Medical record number",
	}, ModeCommit, actor)
	require.NoError(t, err)

	panel, err := f.repo.Acts.Insert(ctx, &model.Act{}, ModeCommit, actor)
	require.NoError(t, err)

	stored, err := f.repo.Acts.Insert(ctx, &model.Act{
		Relationships: []model.ActRelationship{{TargetKey: panel.GetKey(), TypeKey: model.RelationshipHasComponent}},
		Identifiers:   []model.ActIdentifier{{AuthorityKey: authority.Key, Value: "A-1"}},
		Extensions:    []model.ActExtension{{TypeKey: model.ExtensionValidationIssues, Value: []byte("[]")}},
	}, ModeCommit, actor)
	require.NoError(t, err)

	got, err := f.repo.Acts.Get(ctx, stored.GetKey(), nil)
	require.NoError(t, err)
	base := got.Base()
	require.Len(t, base.Relationships, 1)
	assert.Equal(t, panel.GetKey(), base.Relationships[0].TargetKey)
	require.Len(t, base.Identifiers, 1)
	assert.Equal(t, "A-1", base.Identifiers[0].Value)
	require.Len(t, base.Extensions, 1)
	assert.Equal(t, []byte("[]"), base.Extensions[0].Value)
}
