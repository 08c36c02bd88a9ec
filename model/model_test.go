package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cdr/errors"
)

func TestClone_IsDeep(t *testing.T) {
	now := time.Now()
	qty := 2
	obs := &QuantityObservation{
		Act: Act{
			Key:            uuid.New(),
			ClassKey:       ClassQuantityObservation,
			ActTime:        &now,
			Participations: []ActParticipation{{Key: uuid.New(), RoleKey: RoleAuthor, Quantity: &qty}},
			Extensions:     []ActExtension{{TypeKey: uuid.New(), Value: []byte("x")}},
		},
		Value:   7.5,
		UnitKey: uuid.New(),
	}

	c, ok := obs.Clone().(*QuantityObservation)
	require.True(t, ok)
	assert.Equal(t, obs, c)

	*c.ActTime = now.Add(time.Hour)
	*c.Participations[0].Quantity = 9
	c.Extensions[0].Value[0] = 'y'
	c.Value = 1

	assert.Equal(t, now, *obs.ActTime)
	assert.Equal(t, 2, *obs.Participations[0].Quantity)
	assert.Equal(t, []byte("x"), obs.Extensions[0].Value)
	assert.Equal(t, 7.5, obs.Value)
}

func TestBase_ReturnsEmbeddedAct(t *testing.T) {
	enc := &PatientEncounter{Act: Act{Key: uuid.New()}}
	var m ActModel = enc
	m.Base().StatusKey = StatusActive
	assert.Equal(t, StatusActive, enc.StatusKey)
	assert.Equal(t, enc.Key, m.GetKey())
}

func TestAttachIssues(t *testing.T) {
	other := ActExtension{TypeKey: uuid.New(), Value: []byte("keep")}
	act := &Act{Extensions: []ActExtension{other}}
	issues := []errors.Issue{{Priority: errors.PriorityWarning, Type: errors.IssueBusinessRule, Text: "dose unusually high"}}

	require.NoError(t, act.AttachIssues(issues))
	require.Len(t, act.Extensions, 2)
	got, err := act.Issues()
	require.NoError(t, err)
	assert.Equal(t, issues, got)

	t.Run("unchanged issues keep the extension", func(t *testing.T) {
		act.Extensions[1].Key = uuid.New()
		key := act.Extensions[1].Key
		require.NoError(t, act.AttachIssues(issues))
		require.Len(t, act.Extensions, 2)
		assert.Equal(t, key, act.Extensions[1].Key)
	})

	t.Run("changed issues replace the extension", func(t *testing.T) {
		changed := append(issues, errors.Issue{Priority: errors.PriorityInformation, Type: errors.IssueOther, Text: "note"})
		require.NoError(t, act.AttachIssues(changed))
		require.Len(t, act.Extensions, 2)
		assert.Equal(t, uuid.Nil, act.Extensions[1].Key)
	})

	t.Run("no issues removes the extension", func(t *testing.T) {
		require.NoError(t, act.AttachIssues(nil))
		assert.Equal(t, []ActExtension{other}, act.Extensions)
		got, err := act.Issues()
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestAssociation_SameAs(t *testing.T) {
	one, two := 1, 1
	a := ActParticipation{Key: uuid.New(), PlayerKey: uuid.New(), RoleKey: RoleAuthor, Quantity: &one, EffectiveSeq: 0}
	b := a
	b.Key = uuid.New()
	b.Quantity = &two
	b.EffectiveSeq = 3
	assert.True(t, a.SameAs(b))

	b.RoleKey = RolePerformer
	assert.False(t, a.SameAs(b))

	assert.True(t, ActTag{Name: "n", Value: "v"}.SameAs(ActTag{Key: uuid.New(), Name: "n", Value: "v"}))
	assert.False(t, ActExtension{Value: []byte("a")}.SameAs(ActExtension{Value: []byte("b")}))
}
