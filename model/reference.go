package model

import (
	"time"

	"github.com/google/uuid"
)

// ExtensionValidationIssues is the seeded extension type under which
// non-fatal validation findings are stored.
var ExtensionValidationIssues = uuid.MustParse("6f2b9a4e-3c1d-4e8a-9b7f-2d5c8e1a0f34")

// ExtensionType registers the URI of an act extension payload. It has no
// lifecycle beyond existence.
type ExtensionType struct {
	Key  uuid.UUID
	URI  string
	Name string
}

func (e *ExtensionType) GetKey() uuid.UUID    { return e.Key }
func (e *ExtensionType) SetKey(key uuid.UUID) { e.Key = key }

func (e *ExtensionType) Clone() Model {
	c := *e
	return &c
}

// AssigningAuthority issues identifiers in a domain. Obsoleted authorities
// keep their row and come back when updated.
type AssigningAuthority struct {
	Key        uuid.UUID
	DomainName string
	Name       string
	URL        *string

	CreationTime   time.Time
	CreatedBy      uuid.UUID
	UpdatedTime    *time.Time
	UpdatedBy      *uuid.UUID
	ObsoletionTime *time.Time
	ObsoletedBy    *uuid.UUID
}

func (a *AssigningAuthority) GetKey() uuid.UUID    { return a.Key }
func (a *AssigningAuthority) SetKey(key uuid.UUID) { a.Key = key }

func (a *AssigningAuthority) Clone() Model {
	c := *a
	c.URL = clonePtr(a.URL)
	c.UpdatedTime = clonePtr(a.UpdatedTime)
	c.UpdatedBy = clonePtr(a.UpdatedBy)
	c.ObsoletionTime = clonePtr(a.ObsoletionTime)
	c.ObsoletedBy = clonePtr(a.ObsoletedBy)
	return &c
}
