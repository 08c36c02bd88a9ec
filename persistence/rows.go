package persistence

import (
	"time"

	"github.com/google/uuid"

	"github.com/teranos/cdr/orm"
)

// Physical rows. Column order in each table descriptor matches Values and
// Targets.

var (
	actTable = orm.NewTable("act", "act_key", "act_key", "class_key", "created_time")

	actVersionTable = orm.NewTable("act_version", "version_key",
		"version_key", "act_key", "version_seq", "replaces_version_key",
		"class_key", "mood_key", "status_key", "type_key", "reason_key", "negation_ind",
		"act_time", "start_time", "stop_time",
		"created_time", "created_by", "obsoletion_time", "obsoleted_by")

	extensionTypeTable = orm.NewTable("extension_type", "extension_type_key",
		"extension_type_key", "uri", "name")

	authorityTable = orm.NewTable("assigning_authority", "authority_key",
		"authority_key", "domain_name", "name", "url",
		"created_time", "created_by", "updated_time", "updated_by", "obsoletion_time", "obsoleted_by")
)

type actRow struct {
	Key         uuid.UUID
	ClassKey    string
	CreatedTime time.Time
}

func (r *actRow) Table() *orm.Table { return actTable }
func (r *actRow) Values() []any     { return []any{r.Key, r.ClassKey, r.CreatedTime} }
func (r *actRow) Targets() []any    { return []any{&r.Key, &r.ClassKey, &r.CreatedTime} }

type actVersionRow struct {
	VersionKey         uuid.UUID
	ActKey             uuid.UUID
	VersionSeq         int64
	ReplacesVersionKey *uuid.UUID
	ClassKey           string
	MoodKey            uuid.UUID
	StatusKey          uuid.UUID
	TypeKey            *uuid.UUID
	ReasonKey          *uuid.UUID
	Negated            bool
	ActTime            *time.Time
	StartTime          *time.Time
	StopTime           *time.Time
	CreatedTime        time.Time
	CreatedBy          uuid.UUID
	ObsoletionTime     *time.Time
	ObsoletedBy        *uuid.UUID
}

func newActVersionRow() *actVersionRow { return &actVersionRow{} }

func (r *actVersionRow) Table() *orm.Table { return actVersionTable }

func (r *actVersionRow) Values() []any {
	return []any{
		r.VersionKey, r.ActKey, r.VersionSeq, r.ReplacesVersionKey,
		r.ClassKey, r.MoodKey, r.StatusKey, r.TypeKey, r.ReasonKey, r.Negated,
		r.ActTime, r.StartTime, r.StopTime,
		r.CreatedTime, r.CreatedBy, r.ObsoletionTime, r.ObsoletedBy,
	}
}

func (r *actVersionRow) Targets() []any {
	return []any{
		&r.VersionKey, &r.ActKey, &r.VersionSeq, &r.ReplacesVersionKey,
		&r.ClassKey, &r.MoodKey, &r.StatusKey, &r.TypeKey, &r.ReasonKey, &r.Negated,
		&r.ActTime, &r.StartTime, &r.StopTime,
		&r.CreatedTime, &r.CreatedBy, &r.ObsoletionTime, &r.ObsoletedBy,
	}
}

type extensionTypeRow struct {
	Key  uuid.UUID
	URI  string
	Name string
}

func newExtensionTypeRow() *extensionTypeRow { return &extensionTypeRow{} }

func (r *extensionTypeRow) Table() *orm.Table { return extensionTypeTable }
func (r *extensionTypeRow) Values() []any     { return []any{r.Key, r.URI, r.Name} }
func (r *extensionTypeRow) Targets() []any    { return []any{&r.Key, &r.URI, &r.Name} }

type authorityRow struct {
	Key            uuid.UUID
	DomainName     string
	Name           string
	URL            *string
	CreatedTime    time.Time
	CreatedBy      uuid.UUID
	UpdatedTime    *time.Time
	UpdatedBy      *uuid.UUID
	ObsoletionTime *time.Time
	ObsoletedBy    *uuid.UUID
}

func newAuthorityRow() *authorityRow { return &authorityRow{} }

func (r *authorityRow) Table() *orm.Table { return authorityTable }

func (r *authorityRow) Values() []any {
	return []any{
		r.Key, r.DomainName, r.Name, r.URL,
		r.CreatedTime, r.CreatedBy, r.UpdatedTime, r.UpdatedBy, r.ObsoletionTime, r.ObsoletedBy,
	}
}

func (r *authorityRow) Targets() []any {
	return []any{
		&r.Key, &r.DomainName, &r.Name, &r.URL,
		&r.CreatedTime, &r.CreatedBy, &r.UpdatedTime, &r.UpdatedBy, &r.ObsoletionTime, &r.ObsoletedBy,
	}
}

func (r *authorityRow) stampCreated(at time.Time, by uuid.UUID) {
	r.CreatedTime, r.CreatedBy = at, by
}

func (r *authorityRow) stampUpdated(at time.Time, by uuid.UUID) {
	r.UpdatedTime, r.UpdatedBy = &at, &by
}

func (r *authorityRow) stampObsoleted(at time.Time, by uuid.UUID) {
	r.ObsoletionTime, r.ObsoletedBy = &at, &by
}

func (r *authorityRow) carryCreation(from *authorityRow) {
	r.CreatedTime, r.CreatedBy = from.CreatedTime, from.CreatedBy
}

func (r *authorityRow) obsolete() bool { return r.ObsoletionTime != nil }

func (r *authorityRow) reactivate() {
	r.ObsoletionTime, r.ObsoletedBy = nil, nil
}
