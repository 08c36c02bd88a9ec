package model

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/cdr/errors"
)

// Act is the versioned base of every clinical record.
type Act struct {
	Key                uuid.UUID
	VersionKey         uuid.UUID
	VersionSequence    int64
	ReplacesVersionKey *uuid.UUID

	ClassKey  ClassKey
	MoodKey   uuid.UUID
	StatusKey uuid.UUID
	TypeKey   *uuid.UUID
	ReasonKey *uuid.UUID
	Negated   bool

	ActTime   *time.Time
	StartTime *time.Time
	StopTime  *time.Time

	CreationTime   time.Time
	CreatedBy      uuid.UUID
	ObsoletionTime *time.Time
	ObsoletedBy    *uuid.UUID

	Participations []ActParticipation
	Relationships  []ActRelationship
	Identifiers    []ActIdentifier
	Extensions     []ActExtension
	Tags           []ActTag
}

func (a *Act) GetKey() uuid.UUID    { return a.Key }
func (a *Act) SetKey(key uuid.UUID) { a.Key = key }
func (a *Act) Base() *Act           { return a }
func (a *Act) Clone() Model         { return a.cloneAct() }
func (a *Act) IsCurrent() bool      { return a.ObsoletionTime == nil }
func (a *Act) IsObsolete() bool     { return a.StatusKey == StatusObsolete }

func (a *Act) cloneAct() *Act {
	if a == nil {
		return nil
	}
	c := *a
	c.ReplacesVersionKey = clonePtr(a.ReplacesVersionKey)
	c.TypeKey = clonePtr(a.TypeKey)
	c.ReasonKey = clonePtr(a.ReasonKey)
	c.ActTime = clonePtr(a.ActTime)
	c.StartTime = clonePtr(a.StartTime)
	c.StopTime = clonePtr(a.StopTime)
	c.ObsoletionTime = clonePtr(a.ObsoletionTime)
	c.ObsoletedBy = clonePtr(a.ObsoletedBy)

	c.Participations = slices.Clone(a.Participations)
	for i := range c.Participations {
		c.Participations[i].Quantity = clonePtr(a.Participations[i].Quantity)
		c.Participations[i].ObsoleteSeq = clonePtr(a.Participations[i].ObsoleteSeq)
	}
	c.Relationships = slices.Clone(a.Relationships)
	for i := range c.Relationships {
		c.Relationships[i].ObsoleteSeq = clonePtr(a.Relationships[i].ObsoleteSeq)
	}
	c.Identifiers = slices.Clone(a.Identifiers)
	for i := range c.Identifiers {
		c.Identifiers[i].ObsoleteSeq = clonePtr(a.Identifiers[i].ObsoleteSeq)
	}
	c.Extensions = slices.Clone(a.Extensions)
	for i := range c.Extensions {
		c.Extensions[i].Value = bytes.Clone(a.Extensions[i].Value)
		c.Extensions[i].ObsoleteSeq = clonePtr(a.Extensions[i].ObsoleteSeq)
	}
	c.Tags = slices.Clone(a.Tags)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// AttachIssues records non-fatal validation findings as the act's
// validation-issues extension, replacing any earlier one. An empty set
// removes the extension. An unchanged set keeps the existing extension.
func (a *Act) AttachIssues(issues []errors.Issue) error {
	var payload []byte
	if len(issues) > 0 {
		var err error
		if payload, err = json.Marshal(issues); err != nil {
			return errors.Wrap(err, "encode validation issues")
		}
	}

	var kept []ActExtension
	found := false
	for _, e := range a.Extensions {
		if e.TypeKey == ExtensionValidationIssues {
			if !found && payload != nil && bytes.Equal(e.Value, payload) {
				found = true
				kept = append(kept, e)
			}
			continue
		}
		kept = append(kept, e)
	}
	if payload != nil && !found {
		kept = append(kept, ActExtension{TypeKey: ExtensionValidationIssues, Value: payload})
	}
	a.Extensions = kept
	return nil
}

// Issues decodes the validation-issues extension, if any.
func (a *Act) Issues() ([]errors.Issue, error) {
	for _, e := range a.Extensions {
		if e.TypeKey != ExtensionValidationIssues {
			continue
		}
		var issues []errors.Issue
		if err := json.Unmarshal(e.Value, &issues); err != nil {
			return nil, errors.Wrap(err, "decode validation issues")
		}
		return issues, nil
	}
	return nil, nil
}

// PatientEncounter is an encounter between a patient and care providers.
type PatientEncounter struct {
	Act
	AdmissionSourceKey      *uuid.UUID
	DischargeDispositionKey *uuid.UUID
}

func (e *PatientEncounter) Clone() Model {
	c := *e
	c.Act = *e.Act.cloneAct()
	c.AdmissionSourceKey = clonePtr(e.AdmissionSourceKey)
	c.DischargeDispositionKey = clonePtr(e.DischargeDispositionKey)
	return &c
}

// QuantityObservation is an observation with a measured value and unit.
type QuantityObservation struct {
	Act
	InterpretationKey *uuid.UUID
	Value             float64
	UnitKey           uuid.UUID
}

func (o *QuantityObservation) Clone() Model {
	c := *o
	c.Act = *o.Act.cloneAct()
	c.InterpretationKey = clonePtr(o.InterpretationKey)
	return &c
}

// TextObservation is an observation with a free-text value.
type TextObservation struct {
	Act
	InterpretationKey *uuid.UUID
	Value             string
}

func (o *TextObservation) Clone() Model {
	c := *o
	c.Act = *o.Act.cloneAct()
	c.InterpretationKey = clonePtr(o.InterpretationKey)
	return &c
}

// CodedObservation is an observation whose value is a concept.
type CodedObservation struct {
	Act
	InterpretationKey *uuid.UUID
	ValueKey          uuid.UUID
}

func (o *CodedObservation) Clone() Model {
	c := *o
	c.Act = *o.Act.cloneAct()
	c.InterpretationKey = clonePtr(o.InterpretationKey)
	return &c
}

// SubstanceAdministration records a dose given or intended.
type SubstanceAdministration struct {
	Act
	RouteKey     *uuid.UUID
	SiteKey      *uuid.UUID
	DoseQuantity float64
	DoseUnitKey  *uuid.UUID
	SequenceID   *int
}

func (s *SubstanceAdministration) Clone() Model {
	c := *s
	c.Act = *s.Act.cloneAct()
	c.RouteKey = clonePtr(s.RouteKey)
	c.SiteKey = clonePtr(s.SiteKey)
	c.DoseUnitKey = clonePtr(s.DoseUnitKey)
	c.SequenceID = clonePtr(s.SequenceID)
	return &c
}

// Procedure is an act whose outcome is an alteration of the subject.
type Procedure struct {
	Act
	MethodKey       *uuid.UUID
	ApproachSiteKey *uuid.UUID
	TargetSiteKey   *uuid.UUID
}

func (p *Procedure) Clone() Model {
	c := *p
	c.Act = *p.Act.cloneAct()
	c.MethodKey = clonePtr(p.MethodKey)
	c.ApproachSiteKey = clonePtr(p.ApproachSiteKey)
	c.TargetSiteKey = clonePtr(p.TargetSiteKey)
	return &c
}
