package persistence

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/cache"
	"github.com/teranos/cdr/errors"
	cdrtest "github.com/teranos/cdr/internal/testing"
	"github.com/teranos/cdr/model"
)

func quantityService(t *testing.T, f *fixture) *VersionedService[*model.QuantityObservation] {
	t.Helper()
	svc, err := ActService[*model.QuantityObservation](f.repo)
	require.NoError(t, err)
	return svc
}

func TestVersioned_Chain(t *testing.T) {
	f := newFixture(t)
	svc := quantityService(t, f)

	v0, err := svc.Insert(ctx, quantity(5.4), ModeCommit, actor)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, v0.Key)
	assert.Equal(t, int64(0), v0.VersionSequence)
	assert.Nil(t, v0.ReplacesVersionKey)
	assert.Equal(t, model.ClassQuantityObservation, v0.ClassKey)
	assert.Equal(t, model.StatusActive, v0.StatusKey)
	assert.Equal(t, model.MoodEventOccurrence, v0.MoodKey)
	require.Len(t, v0.Participations, 1)

	edit := v0.Clone().(*model.QuantityObservation)
	edit.Value = 6.1
	v1, err := svc.Update(ctx, edit, ModeCommit, actor)
	require.NoError(t, err)

	edit = v1.Clone().(*model.QuantityObservation)
	edit.Value = 7.0
	v2, err := svc.Update(ctx, edit, ModeCommit, actor)
	require.NoError(t, err)

	assert.Equal(t, v0.Key, v2.Key)
	assert.Equal(t, int64(2), v2.VersionSequence)
	require.NotNil(t, v2.ReplacesVersionKey)
	assert.Equal(t, v1.VersionKey, *v2.ReplacesVersionKey)
	require.NotNil(t, v1.ReplacesVersionKey)
	assert.Equal(t, v0.VersionKey, *v1.ReplacesVersionKey)
	assert.True(t, v2.CreationTime.After(v0.CreationTime))

	current, err := svc.Get(ctx, v0.Key, nil)
	require.NoError(t, err)
	assert.Equal(t, v2.VersionKey, current.VersionKey)
	assert.Equal(t, 7.0, current.Value)
	assert.Nil(t, current.ObsoletionTime)

	pinned, err := svc.Get(ctx, v0.Key, &v0.VersionKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pinned.VersionSequence)
	assert.Equal(t, 5.4, pinned.Value)
	assert.NotNil(t, pinned.ObsoletionTime)
	assert.Len(t, pinned.Participations, 1)

	history, err := svc.History(ctx, v0.Key)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, want := range []int64{2, 1, 0} {
		assert.Equal(t, want, history[i].VersionSequence)
	}
	assert.Nil(t, history[0].ObsoletionTime)
	assert.NotNil(t, history[1].ObsoletionTime)
	assert.NotNil(t, history[2].ObsoletionTime)
	assert.Equal(t, 6.1, history[1].Value)

	assert.Equal(t, 1, f.count(t,
		"SELECT COUNT(*) FROM act_version WHERE act_key = ? AND obsoletion_time IS NULL", v0.Key))
}

func TestVersioned_GetMissing(t *testing.T) {
	f := newFixture(t)
	svc := quantityService(t, f)

	m, err := svc.Get(ctx, uuid.New(), nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	stored, err := svc.Insert(ctx, quantity(1), ModeCommit, actor)
	require.NoError(t, err)
	unknown := uuid.New()
	_, err = svc.Get(ctx, stored.Key, &unknown)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = svc.History(ctx, uuid.New())
	assert.True(t, errors.IsNotFoundError(err))
}

func TestVersioned_SingleVersionUpdatesInPlace(t *testing.T) {
	f := newFixture(t, func(c *am.PersistenceConfig) { c.FullVersioning = false })
	svc := quantityService(t, f)

	v0, err := svc.Insert(ctx, quantity(2.5), ModeCommit, actor)
	require.NoError(t, err)

	edit := v0.Clone().(*model.QuantityObservation)
	edit.Value = 3.5
	v1, err := svc.Update(ctx, edit, ModeCommit, "other-actor")
	require.NoError(t, err)

	assert.Equal(t, v0.VersionKey, v1.VersionKey)
	assert.Equal(t, int64(0), v1.VersionSequence)
	assert.Equal(t, 3.5, v1.Value)
	assert.True(t, v0.CreationTime.Equal(v1.CreationTime))
	assert.Equal(t, v0.CreatedBy, v1.CreatedBy)

	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM act_version WHERE act_key = ?", v0.Key))
	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM quantity_observation"))

	history, err := svc.History(ctx, v0.Key)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestVersioned_SingleVersionPrunes(t *testing.T) {
	f := newFixture(t)
	svc := quantityService(t, f)

	v0, err := svc.Insert(ctx, quantity(1), ModeCommit, actor)
	require.NoError(t, err)
	v1, err := svc.Update(ctx, v0, ModeCommit, actor)
	require.NoError(t, err)
	v2, err := svc.Update(ctx, v1, ModeCommit, actor)
	require.NoError(t, err)
	require.Equal(t, 3, f.count(t, "SELECT COUNT(*) FROM act_version WHERE act_key = ?", v0.Key))

	// the same data switched to single-version persistence
	single := am.PersistenceConfig{AssociationVersioning: true, LogicalDeletion: true}
	repo, err := New(single, f.provider, Options{Logger: f.log})
	require.NoError(t, err)
	singleSvc, err := ActService[*model.QuantityObservation](repo)
	require.NoError(t, err)

	_, err = singleSvc.Update(ctx, v2, ModeCommit, actor)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(t, "SELECT COUNT(*) FROM act_version WHERE act_key = ?", v0.Key))
	assert.Equal(t, 0, f.count(t, "SELECT COUNT(*) FROM act_version WHERE version_key = ?", v0.VersionKey))
}

func TestVersioned_LogicalObsolete(t *testing.T) {
	f := newFixture(t)
	svc := quantityService(t, f)

	stored, err := svc.Insert(ctx, quantity(4), ModeCommit, actor)
	require.NoError(t, err)

	obsoleted, err := svc.Obsolete(ctx, stored.Key, ModeCommit, actor)
	require.NoError(t, err)
	assert.Equal(t, model.StatusObsolete, obsoleted.StatusKey)
	assert.Equal(t, int64(1), obsoleted.VersionSequence)

	got, err := svc.Get(ctx, stored.Key, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsObsolete())

	n, err := svc.Query(nil, actor).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.Query(model.ActStatus.Eq(model.StatusObsolete), actor).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVersioned_HardObsolete(t *testing.T) {
	f := newFixture(t, func(c *am.PersistenceConfig) { c.LogicalDeletion = false })
	svc := quantityService(t, f)

	stored, err := svc.Insert(ctx, quantity(4), ModeCommit, actor)
	require.NoError(t, err)

	removed, err := svc.Obsolete(ctx, stored.Key, ModeCommit, actor)
	require.NoError(t, err)
	assert.Equal(t, stored.Key, removed.Key)
	assert.Equal(t, 4.0, removed.Value)

	got, err := svc.Get(ctx, stored.Key, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := svc.Exists(ctx, stored.Key)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Zero(t, f.count(t, "SELECT COUNT(*) FROM act_version"))
	assert.Zero(t, f.count(t, "SELECT COUNT(*) FROM quantity_observation"))
	assert.Zero(t, f.count(t, "SELECT COUNT(*) FROM act_participation"))

	_, err = svc.Obsolete(ctx, stored.Key, ModeCommit, actor)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestVersioned_HardObsoleteEvictsAssociations(t *testing.T) {
	f := newFixture(t, func(c *am.PersistenceConfig) { c.LogicalDeletion = false })
	svc := quantityService(t, f)

	stored, err := svc.Insert(ctx, quantity(4), ModeCommit, actor)
	require.NoError(t, err)

	// warm the model and association entries
	warm, err := svc.Get(ctx, stored.Key, nil)
	require.NoError(t, err)
	require.Len(t, warm.Participations, 1)

	_, err = svc.Obsolete(ctx, stored.Key, ModeCommit, actor)
	require.NoError(t, err)
	_, ok := f.cache.Get(cache.AssociationKey(participationTable.Name, stored.Key))
	assert.False(t, ok, "participations of a deleted act stay cached")

	again := quantity(5)
	again.Key = stored.Key
	again.Participations = nil
	_, err = svc.Insert(ctx, again, ModeCommit, actor)
	require.NoError(t, err)

	got, err := svc.Get(ctx, stored.Key, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5.0, got.Value)
	assert.Empty(t, got.Participations)
	assert.Zero(t, f.count(t, "SELECT COUNT(*) FROM act_participation"))
}

func TestVersioned_PlainUpdateCopiesSubtypeForward(t *testing.T) {
	f := newFixture(t)
	coded, err := ActService[*model.CodedObservation](f.repo)
	require.NoError(t, err)

	value := uuid.New()
	stored, err := coded.Insert(ctx, &model.CodedObservation{ValueKey: value}, ModeCommit, actor)
	require.NoError(t, err)

	_, err = f.repo.Acts.Update(ctx, &model.Act{Key: stored.Key, Negated: true}, ModeCommit, actor)
	require.NoError(t, err)

	got, err := coded.Get(ctx, stored.Key, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.VersionSequence)
	assert.Equal(t, value, got.ValueKey)
	assert.True(t, got.Negated)
	assert.Equal(t, model.StatusActive, got.StatusKey)

	base, err := f.repo.Acts.Get(ctx, stored.Key, nil)
	require.NoError(t, err)
	assert.IsType(t, &model.CodedObservation{}, base)
	assert.Equal(t, 2, f.count(t, "SELECT COUNT(*) FROM coded_observation"))
}

func TestVersioned_ClassChangeRejected(t *testing.T) {
	f := newFixture(t)
	coded, err := ActService[*model.CodedObservation](f.repo)
	require.NoError(t, err)

	stored, err := coded.Insert(ctx, &model.CodedObservation{ValueKey: uuid.New()}, ModeCommit, actor)
	require.NoError(t, err)

	_, err = f.repo.Acts.Update(ctx, &model.QuantityObservation{
		Act:     model.Act{Key: stored.Key},
		Value:   1,
		UnitKey: unitMillimolePerLitre,
	}, ModeCommit, actor)
	require.Error(t, err)
	assert.True(t, errors.IsArgumentError(err))

	history, err := coded.History(ctx, stored.Key)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestVersioned_ConcurrentUpdates(t *testing.T) {
	f := newFixtureOn(t, cdrtest.CreateFileTestDB(t))
	svc := quantityService(t, f)

	stored, err := svc.Insert(ctx, quantity(1), ModeCommit, actor)
	require.NoError(t, err)

	const writers = 16
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := quantity(float64(100 + i))
			m.Key = stored.Key
			_, errs[i] = svc.Update(ctx, m, ModeCommit, actor)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.IsConflict(err) || errors.IsConstraintViolation(err), "untyped failure: %v", err)
	}
	assert.Positive(t, succeeded)

	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM act_version WHERE act_key = ? AND obsoletion_time IS NULL", stored.Key))
	assert.Equal(t, succeeded+1, f.count(t, "SELECT COUNT(*) FROM act_version WHERE act_key = ?", stored.Key))

	got, err := svc.Get(ctx, stored.Key, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(succeeded), got.VersionSequence)
}

func TestVersioned_OptimisticConcurrency(t *testing.T) {
	f := newFixture(t, func(c *am.PersistenceConfig) { c.OptimisticConcurrency = true })
	svc := quantityService(t, f)

	v0, err := svc.Insert(ctx, quantity(1), ModeCommit, actor)
	require.NoError(t, err)
	_, err = svc.Update(ctx, v0, ModeCommit, actor)
	require.NoError(t, err)

	stale := v0.Clone().(*model.QuantityObservation)
	stale.Value = 99
	_, err = svc.Update(ctx, stale, ModeCommit, actor)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	current, err := svc.Get(ctx, v0.Key, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, current.Value)
	assert.Equal(t, int64(1), current.VersionSequence)
}

func TestVersioned_UpdateMissing(t *testing.T) {
	f := newFixture(t)
	svc := quantityService(t, f)

	m := quantity(1)
	m.Key = uuid.New()
	_, err := svc.Update(ctx, m, ModeCommit, actor)
	assert.True(t, errors.IsNotFoundError(err))
}
