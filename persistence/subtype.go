package persistence

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/query"
)

// SubtypeHandler persists the table-per-subtype row of one concrete act
// type. Handlers are built by the constructors in this package.
type SubtypeHandler interface {
	ClassKey() model.ClassKey
	TypeName() string
	subtypeHandler
}

type subtypeHandler interface {
	// path names the component in predicates, as in model.AsProcedure.
	path() string
	table() *orm.Table
	component() component
	owns(m model.ActModel) bool
	wrap(a *model.Act) model.ActModel
	insert(u *orm.UnitOfWork, m model.ActModel) error
	replace(u *orm.UnitOfWork, m model.ActModel) error
	copyForward(u *orm.UnitOfWork, from, to uuid.UUID) error
	prefetch(u *orm.UnitOfWork, versionKeys []uuid.UUID) (map[uuid.UUID]any, error)
	extend(u *orm.UnitOfWork, a *model.Act, prefetched map[uuid.UUID]any, log *zap.SugaredLogger) (model.ActModel, error)
}

// subtypeRow is keyed by the act version it extends.
type subtypeRow interface {
	orm.Row
	setVersionKey(uuid.UUID)
}

type subtypeBinding[M model.ActModel, R subtypeRow] struct {
	class      model.ClassKey
	collection query.Collection
	tbl        *orm.Table
	fields     map[string]string

	wrapAct func(*model.Act) M
	newRow  func() R
	toRow   func(M) R
	merge   func(M, R)
}

func (b *subtypeBinding[M, R]) ClassKey() model.ClassKey { return b.class }
func (b *subtypeBinding[M, R]) TypeName() string {
	var m M
	return fmt.Sprintf("%T", m)
}
func (b *subtypeBinding[M, R]) path() string      { return string(b.collection) }
func (b *subtypeBinding[M, R]) table() *orm.Table { return b.tbl }

func (b *subtypeBinding[M, R]) component() component {
	return component{
		table: b.tbl,
		link:  "version_key",
		owner: actVersionTable.Col("version_key"),
		paths: newMapper(b.tbl, b.fields),
	}
}

func (b *subtypeBinding[M, R]) owns(m model.ActModel) bool {
	_, ok := m.(M)
	return ok
}

func (b *subtypeBinding[M, R]) wrap(a *model.Act) model.ActModel { return b.wrapAct(a) }

func (b *subtypeBinding[M, R]) insert(u *orm.UnitOfWork, m model.ActModel) error {
	typed, ok := m.(M)
	if !ok {
		return errors.NewArgumentError("class %s is persisted as %s, got %T", b.class, b.TypeName(), m)
	}
	r := b.toRow(typed)
	r.setVersionKey(m.Base().VersionKey)
	if err := orm.Insert(u, r); err != nil {
		return errors.Wrapf(err, "insert %s row", b.tbl.Name)
	}
	return nil
}

func (b *subtypeBinding[M, R]) replace(u *orm.UnitOfWork, m model.ActModel) error {
	if _, err := orm.DeleteWhere(u, b.tbl, orm.Eq(b.tbl.KeyCol(), m.Base().VersionKey)); err != nil {
		return err
	}
	return b.insert(u, m)
}

// copyForward duplicates the row of version from under version to.
func (b *subtypeBinding[M, R]) copyForward(u *orm.UnitOfWork, from, to uuid.UUID) error {
	r, found, err := orm.Get(u, b.newRow, from)
	if err != nil {
		return err
	}
	if !found {
		return errors.NewNotFoundError("%s row for version %s", b.tbl.Name, from)
	}
	r.setVersionKey(to)
	if err := orm.Insert(u, r); err != nil {
		return errors.Wrapf(err, "copy %s row forward", b.tbl.Name)
	}
	return nil
}

func (b *subtypeBinding[M, R]) prefetch(u *orm.UnitOfWork, versionKeys []uuid.UUID) (map[uuid.UUID]any, error) {
	out := make(map[uuid.UUID]any, len(versionKeys))
	for chunk := range slices.Chunk(versionKeys, inBatchSize) {
		values := make([]any, len(chunk))
		for i, k := range chunk {
			values[i] = k
		}
		s := orm.NewSelect(b.tbl)
		s.Where = orm.In{Column: b.tbl.KeyCol(), Values: values}
		rows, err := orm.Fetch(u, b.newRow, s)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[orm.KeyValue(r).(uuid.UUID)] = r
		}
	}
	return out, nil
}

// extend merges the subtype row onto a converted base act, fetching it when
// it was not prefetched.
func (b *subtypeBinding[M, R]) extend(u *orm.UnitOfWork, a *model.Act, prefetched map[uuid.UUID]any, log *zap.SugaredLogger) (model.ActModel, error) {
	m := b.wrapAct(a)
	if v, ok := prefetched[a.VersionKey]; ok {
		b.merge(m, v.(R))
		return m, nil
	}
	log.Warnw("subtype row not prefetched, fetching",
		logger.FieldKey, a.Key,
		logger.FieldVersionKey, a.VersionKey,
		logger.FieldClassKey, b.class,
		logger.FieldTable, b.tbl.Name)
	r, found, err := orm.Get(u, b.newRow, a.VersionKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFoundError("%s row for version %s", b.tbl.Name, a.VersionKey)
	}
	b.merge(m, r)
	return m, nil
}

// ClassificationMap resolves classification keys to subtype handlers. It is
// built once and read-only afterwards.
type ClassificationMap struct {
	byClass  map[model.ClassKey]SubtypeHandler
	handlers []SubtypeHandler
}

// NewClassificationMap indexes handlers by class key. Two handlers claiming
// the same key is an error.
func NewClassificationMap(handlers ...SubtypeHandler) (*ClassificationMap, error) {
	m := &ClassificationMap{byClass: make(map[model.ClassKey]SubtypeHandler, len(handlers))}
	for _, h := range handlers {
		class := h.ClassKey()
		if class == "" || class == model.ClassAct {
			return nil, errors.Newf("%s cannot claim classification key %q", h.TypeName(), class)
		}
		if prev, dup := m.byClass[class]; dup {
			return nil, errors.Newf("classification key %s claimed by both %s and %s", class, prev.TypeName(), h.TypeName())
		}
		m.byClass[class] = h
		m.handlers = append(m.handlers, h)
	}
	return m, nil
}

// DefaultClassificationMap holds every subtype of the clinical model.
func DefaultClassificationMap() *ClassificationMap {
	m, err := NewClassificationMap(
		EncounterHandler(),
		QuantityObservationHandler(),
		TextObservationHandler(),
		CodedObservationHandler(),
		SubstanceAdministrationHandler(),
		ProcedureHandler(),
	)
	if err != nil {
		panic(err)
	}
	return m
}

// Lookup returns the handler registered for class.
func (m *ClassificationMap) Lookup(class model.ClassKey) (SubtypeHandler, bool) {
	h, ok := m.byClass[class]
	return h, ok
}

// Handlers returns the handlers in registration order.
func (m *ClassificationMap) Handlers() []SubtypeHandler {
	return slices.Clone(m.handlers)
}

// resolve finds the handler for a model about to be written. A nil handler
// with a nil error means the model is a plain act.
func (m *ClassificationMap) resolve(x model.ActModel) (SubtypeHandler, error) {
	var class model.ClassKey
	switch x.(type) {
	case *model.PatientEncounter:
		class = model.ClassEncounter
	case *model.QuantityObservation:
		class = model.ClassQuantityObservation
	case *model.TextObservation:
		class = model.ClassTextObservation
	case *model.CodedObservation:
		class = model.ClassCodedObservation
	case *model.SubstanceAdministration:
		class = model.ClassSubstanceAdministration
	case *model.Procedure:
		class = model.ClassProcedure
	default:
		class = x.Base().ClassKey
	}
	if class == "" || class == model.ClassAct {
		return nil, nil
	}
	h, ok := m.byClass[class]
	if !ok {
		return nil, errors.NewArgumentError("no subtype handler for class %s (%T)", class, x)
	}
	if _, plain := x.(*model.Act); !plain && !h.owns(x) {
		return nil, errors.NewArgumentError("class %s is persisted as %s, got %T", class, h.TypeName(), x)
	}
	return h, nil
}

// Subtype tables and rows.

var (
	encounterTable = orm.NewTable("patient_encounter", "version_key",
		"version_key", "admission_source_key", "discharge_disposition_key")
	quantityObservationTable = orm.NewTable("quantity_observation", "version_key",
		"version_key", "interpretation_key", "value", "unit_key")
	textObservationTable = orm.NewTable("text_observation", "version_key",
		"version_key", "interpretation_key", "value")
	codedObservationTable = orm.NewTable("coded_observation", "version_key",
		"version_key", "interpretation_key", "value_key")
	administrationTable = orm.NewTable("substance_administration", "version_key",
		"version_key", "route_key", "site_key", "dose_quantity", "dose_unit_key", "sequence_id")
	procedureTable = orm.NewTable("procedure_act", "version_key",
		"version_key", "method_key", "approach_site_key", "target_site_key")
)

type encounterRow struct {
	VersionKey              uuid.UUID
	AdmissionSourceKey      *uuid.UUID
	DischargeDispositionKey *uuid.UUID
}

func (r *encounterRow) Table() *orm.Table { return encounterTable }
func (r *encounterRow) Values() []any {
	return []any{r.VersionKey, r.AdmissionSourceKey, r.DischargeDispositionKey}
}
func (r *encounterRow) Targets() []any {
	return []any{&r.VersionKey, &r.AdmissionSourceKey, &r.DischargeDispositionKey}
}
func (r *encounterRow) setVersionKey(k uuid.UUID) { r.VersionKey = k }

// EncounterHandler persists model.PatientEncounter.
func EncounterHandler() SubtypeHandler {
	return &subtypeBinding[*model.PatientEncounter, *encounterRow]{
		class:      model.ClassEncounter,
		collection: model.AsPatientEncounter,
		tbl:        encounterTable,
		fields: map[string]string{
			model.EncounterAdmissionSource.Path():      "admission_source_key",
			model.EncounterDischargeDisposition.Path(): "discharge_disposition_key",
		},
		wrapAct: func(a *model.Act) *model.PatientEncounter { return &model.PatientEncounter{Act: *a} },
		newRow:  func() *encounterRow { return &encounterRow{} },
		toRow: func(e *model.PatientEncounter) *encounterRow {
			return &encounterRow{AdmissionSourceKey: e.AdmissionSourceKey, DischargeDispositionKey: e.DischargeDispositionKey}
		},
		merge: func(e *model.PatientEncounter, r *encounterRow) {
			e.AdmissionSourceKey, e.DischargeDispositionKey = r.AdmissionSourceKey, r.DischargeDispositionKey
		},
	}
}

type quantityObservationRow struct {
	VersionKey        uuid.UUID
	InterpretationKey *uuid.UUID
	Value             float64
	UnitKey           uuid.UUID
}

func (r *quantityObservationRow) Table() *orm.Table { return quantityObservationTable }
func (r *quantityObservationRow) Values() []any {
	return []any{r.VersionKey, r.InterpretationKey, r.Value, r.UnitKey}
}
func (r *quantityObservationRow) Targets() []any {
	return []any{&r.VersionKey, &r.InterpretationKey, &r.Value, &r.UnitKey}
}
func (r *quantityObservationRow) setVersionKey(k uuid.UUID) { r.VersionKey = k }

// QuantityObservationHandler persists model.QuantityObservation.
func QuantityObservationHandler() SubtypeHandler {
	return &subtypeBinding[*model.QuantityObservation, *quantityObservationRow]{
		class:      model.ClassQuantityObservation,
		collection: model.AsQuantityObservation,
		tbl:        quantityObservationTable,
		fields: map[string]string{
			model.ObservationInterpretation.Path(): "interpretation_key",
			model.QuantityValue.Path():             "value",
			model.QuantityUnit.Path():              "unit_key",
		},
		wrapAct: func(a *model.Act) *model.QuantityObservation { return &model.QuantityObservation{Act: *a} },
		newRow:  func() *quantityObservationRow { return &quantityObservationRow{} },
		toRow: func(o *model.QuantityObservation) *quantityObservationRow {
			return &quantityObservationRow{InterpretationKey: o.InterpretationKey, Value: o.Value, UnitKey: o.UnitKey}
		},
		merge: func(o *model.QuantityObservation, r *quantityObservationRow) {
			o.InterpretationKey, o.Value, o.UnitKey = r.InterpretationKey, r.Value, r.UnitKey
		},
	}
}

type textObservationRow struct {
	VersionKey        uuid.UUID
	InterpretationKey *uuid.UUID
	Value             string
}

func (r *textObservationRow) Table() *orm.Table { return textObservationTable }
func (r *textObservationRow) Values() []any {
	return []any{r.VersionKey, r.InterpretationKey, r.Value}
}
func (r *textObservationRow) Targets() []any {
	return []any{&r.VersionKey, &r.InterpretationKey, &r.Value}
}
func (r *textObservationRow) setVersionKey(k uuid.UUID) { r.VersionKey = k }

// TextObservationHandler persists model.TextObservation.
func TextObservationHandler() SubtypeHandler {
	return &subtypeBinding[*model.TextObservation, *textObservationRow]{
		class:      model.ClassTextObservation,
		collection: model.AsTextObservation,
		tbl:        textObservationTable,
		fields: map[string]string{
			model.ObservationInterpretation.Path(): "interpretation_key",
			model.TextValue.Path():                 "value",
		},
		wrapAct: func(a *model.Act) *model.TextObservation { return &model.TextObservation{Act: *a} },
		newRow:  func() *textObservationRow { return &textObservationRow{} },
		toRow: func(o *model.TextObservation) *textObservationRow {
			return &textObservationRow{InterpretationKey: o.InterpretationKey, Value: o.Value}
		},
		merge: func(o *model.TextObservation, r *textObservationRow) {
			o.InterpretationKey, o.Value = r.InterpretationKey, r.Value
		},
	}
}

type codedObservationRow struct {
	VersionKey        uuid.UUID
	InterpretationKey *uuid.UUID
	ValueKey          uuid.UUID
}

func (r *codedObservationRow) Table() *orm.Table { return codedObservationTable }
func (r *codedObservationRow) Values() []any {
	return []any{r.VersionKey, r.InterpretationKey, r.ValueKey}
}
func (r *codedObservationRow) Targets() []any {
	return []any{&r.VersionKey, &r.InterpretationKey, &r.ValueKey}
}
func (r *codedObservationRow) setVersionKey(k uuid.UUID) { r.VersionKey = k }

// CodedObservationHandler persists model.CodedObservation.
func CodedObservationHandler() SubtypeHandler {
	return &subtypeBinding[*model.CodedObservation, *codedObservationRow]{
		class:      model.ClassCodedObservation,
		collection: model.AsCodedObservation,
		tbl:        codedObservationTable,
		fields: map[string]string{
			model.ObservationInterpretation.Path(): "interpretation_key",
			model.CodedValue.Path():                "value_key",
		},
		wrapAct: func(a *model.Act) *model.CodedObservation { return &model.CodedObservation{Act: *a} },
		newRow:  func() *codedObservationRow { return &codedObservationRow{} },
		toRow: func(o *model.CodedObservation) *codedObservationRow {
			return &codedObservationRow{InterpretationKey: o.InterpretationKey, ValueKey: o.ValueKey}
		},
		merge: func(o *model.CodedObservation, r *codedObservationRow) {
			o.InterpretationKey, o.ValueKey = r.InterpretationKey, r.ValueKey
		},
	}
}

type administrationRow struct {
	VersionKey   uuid.UUID
	RouteKey     *uuid.UUID
	SiteKey      *uuid.UUID
	DoseQuantity float64
	DoseUnitKey  *uuid.UUID
	SequenceID   *int64
}

func (r *administrationRow) Table() *orm.Table { return administrationTable }
func (r *administrationRow) Values() []any {
	return []any{r.VersionKey, r.RouteKey, r.SiteKey, r.DoseQuantity, r.DoseUnitKey, r.SequenceID}
}
func (r *administrationRow) Targets() []any {
	return []any{&r.VersionKey, &r.RouteKey, &r.SiteKey, &r.DoseQuantity, &r.DoseUnitKey, &r.SequenceID}
}
func (r *administrationRow) setVersionKey(k uuid.UUID) { r.VersionKey = k }

// SubstanceAdministrationHandler persists model.SubstanceAdministration.
func SubstanceAdministrationHandler() SubtypeHandler {
	return &subtypeBinding[*model.SubstanceAdministration, *administrationRow]{
		class:      model.ClassSubstanceAdministration,
		collection: model.AsSubstanceAdministration,
		tbl:        administrationTable,
		fields: map[string]string{
			model.AdministrationRoute.Path():        "route_key",
			model.AdministrationSite.Path():         "site_key",
			model.AdministrationDoseQuantity.Path(): "dose_quantity",
			model.AdministrationDoseUnit.Path():     "dose_unit_key",
			model.AdministrationSequence.Path():     "sequence_id",
		},
		wrapAct: func(a *model.Act) *model.SubstanceAdministration {
			return &model.SubstanceAdministration{Act: *a}
		},
		newRow: func() *administrationRow { return &administrationRow{} },
		toRow: func(s *model.SubstanceAdministration) *administrationRow {
			return &administrationRow{
				RouteKey:     s.RouteKey,
				SiteKey:      s.SiteKey,
				DoseQuantity: s.DoseQuantity,
				DoseUnitKey:  s.DoseUnitKey,
				SequenceID:   int64Ptr(s.SequenceID),
			}
		},
		merge: func(s *model.SubstanceAdministration, r *administrationRow) {
			s.RouteKey, s.SiteKey, s.DoseUnitKey = r.RouteKey, r.SiteKey, r.DoseUnitKey
			s.DoseQuantity = r.DoseQuantity
			s.SequenceID = intPtr(r.SequenceID)
		},
	}
}

type procedureRow struct {
	VersionKey      uuid.UUID
	MethodKey       *uuid.UUID
	ApproachSiteKey *uuid.UUID
	TargetSiteKey   *uuid.UUID
}

func (r *procedureRow) Table() *orm.Table { return procedureTable }
func (r *procedureRow) Values() []any {
	return []any{r.VersionKey, r.MethodKey, r.ApproachSiteKey, r.TargetSiteKey}
}
func (r *procedureRow) Targets() []any {
	return []any{&r.VersionKey, &r.MethodKey, &r.ApproachSiteKey, &r.TargetSiteKey}
}
func (r *procedureRow) setVersionKey(k uuid.UUID) { r.VersionKey = k }

// ProcedureHandler persists model.Procedure.
func ProcedureHandler() SubtypeHandler {
	return &subtypeBinding[*model.Procedure, *procedureRow]{
		class:      model.ClassProcedure,
		collection: model.AsProcedure,
		tbl:        procedureTable,
		fields: map[string]string{
			model.ProcedureMethod.Path():       "method_key",
			model.ProcedureApproachSite.Path(): "approach_site_key",
			model.ProcedureTargetSite.Path():   "target_site_key",
		},
		wrapAct: func(a *model.Act) *model.Procedure { return &model.Procedure{Act: *a} },
		newRow:  func() *procedureRow { return &procedureRow{} },
		toRow: func(p *model.Procedure) *procedureRow {
			return &procedureRow{MethodKey: p.MethodKey, ApproachSiteKey: p.ApproachSiteKey, TargetSiteKey: p.TargetSiteKey}
		},
		merge: func(p *model.Procedure, r *procedureRow) {
			p.MethodKey, p.ApproachSiteKey, p.TargetSiteKey = r.MethodKey, r.ApproachSiteKey, r.TargetSiteKey
		},
	}
}
