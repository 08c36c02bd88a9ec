package persistence

import (
	"github.com/teranos/cdr/model"
)

// Row conversion between the logical model and physical rows. Subtype and
// association rows convert in their own bindings.

func versionRowFromAct(a *model.Act) *actVersionRow {
	return &actVersionRow{
		VersionKey:         a.VersionKey,
		ActKey:             a.Key,
		VersionSeq:         a.VersionSequence,
		ReplacesVersionKey: a.ReplacesVersionKey,
		ClassKey:           string(a.ClassKey),
		MoodKey:            a.MoodKey,
		StatusKey:          a.StatusKey,
		TypeKey:            a.TypeKey,
		ReasonKey:          a.ReasonKey,
		Negated:            a.Negated,
		ActTime:            a.ActTime,
		StartTime:          a.StartTime,
		StopTime:           a.StopTime,
		CreatedTime:        a.CreationTime,
		CreatedBy:          a.CreatedBy,
		ObsoletionTime:     a.ObsoletionTime,
		ObsoletedBy:        a.ObsoletedBy,
	}
}

func actFromVersionRow(r *actVersionRow) *model.Act {
	return &model.Act{
		Key:                r.ActKey,
		VersionKey:         r.VersionKey,
		VersionSequence:    r.VersionSeq,
		ReplacesVersionKey: r.ReplacesVersionKey,
		ClassKey:           model.ClassKey(r.ClassKey),
		MoodKey:            r.MoodKey,
		StatusKey:          r.StatusKey,
		TypeKey:            r.TypeKey,
		ReasonKey:          r.ReasonKey,
		Negated:            r.Negated,
		ActTime:            r.ActTime,
		StartTime:          r.StartTime,
		StopTime:           r.StopTime,
		CreationTime:       r.CreatedTime,
		CreatedBy:          r.CreatedBy,
		ObsoletionTime:     r.ObsoletionTime,
		ObsoletedBy:        r.ObsoletedBy,
	}
}

func extensionTypeToRow(e *model.ExtensionType) *extensionTypeRow {
	return &extensionTypeRow{Key: e.Key, URI: e.URI, Name: e.Name}
}

func extensionTypeFromRow(r *extensionTypeRow) *model.ExtensionType {
	return &model.ExtensionType{Key: r.Key, URI: r.URI, Name: r.Name}
}

func authorityToRow(a *model.AssigningAuthority) *authorityRow {
	return &authorityRow{
		Key:            a.Key,
		DomainName:     a.DomainName,
		Name:           a.Name,
		URL:            a.URL,
		CreatedTime:    a.CreationTime,
		CreatedBy:      a.CreatedBy,
		UpdatedTime:    a.UpdatedTime,
		UpdatedBy:      a.UpdatedBy,
		ObsoletionTime: a.ObsoletionTime,
		ObsoletedBy:    a.ObsoletedBy,
	}
}

func authorityFromRow(r *authorityRow) *model.AssigningAuthority {
	return &model.AssigningAuthority{
		Key:            r.Key,
		DomainName:     r.DomainName,
		Name:           r.Name,
		URL:            r.URL,
		CreationTime:   r.CreatedTime,
		CreatedBy:      r.CreatedBy,
		UpdatedTime:    r.UpdatedTime,
		UpdatedBy:      r.UpdatedBy,
		ObsoletionTime: r.ObsoletionTime,
		ObsoletedBy:    r.ObsoletedBy,
	}
}
