package model

import (
	"bytes"

	"github.com/google/uuid"
)

// Versioned associations carry the owning act's version sequence at which
// they took effect and, once superseded, the sequence at which they stopped.
// An association is current for sequence n when EffectiveSeq <= n and
// ObsoleteSeq is nil or greater than n.

// ActParticipation links an act to an entity playing a role in it.
type ActParticipation struct {
	Key          uuid.UUID
	PlayerKey    uuid.UUID
	RoleKey      uuid.UUID
	Quantity     *int
	EffectiveSeq int64
	ObsoleteSeq  *int64
}

// SameAs reports semantic equality, ignoring key and version stamps.
func (p ActParticipation) SameAs(o ActParticipation) bool {
	return p.PlayerKey == o.PlayerKey && p.RoleKey == o.RoleKey && equalPtr(p.Quantity, o.Quantity)
}

// ActRelationship links an act to another act.
type ActRelationship struct {
	Key          uuid.UUID
	TargetKey    uuid.UUID
	TypeKey      uuid.UUID
	EffectiveSeq int64
	ObsoleteSeq  *int64
}

func (r ActRelationship) SameAs(o ActRelationship) bool {
	return r.TargetKey == o.TargetKey && r.TypeKey == o.TypeKey
}

// ActIdentifier is an alternate identifier issued by an assigning authority.
type ActIdentifier struct {
	Key          uuid.UUID
	AuthorityKey uuid.UUID
	Value        string
	EffectiveSeq int64
	ObsoleteSeq  *int64
}

func (i ActIdentifier) SameAs(o ActIdentifier) bool {
	return i.AuthorityKey == o.AuthorityKey && i.Value == o.Value
}

// ActExtension is an opaque typed payload attached to an act.
type ActExtension struct {
	Key          uuid.UUID
	TypeKey      uuid.UUID
	Value        []byte
	EffectiveSeq int64
	ObsoleteSeq  *int64
}

func (e ActExtension) SameAs(o ActExtension) bool {
	return e.TypeKey == o.TypeKey && bytes.Equal(e.Value, o.Value)
}

// ActTag is an unversioned name/value label.
type ActTag struct {
	Key   uuid.UUID
	Name  string
	Value string
}

func (t ActTag) SameAs(o ActTag) bool {
	return t.Name == o.Name && t.Value == o.Value
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
