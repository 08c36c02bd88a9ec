package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/teranos/cdr/query"
)

// Act properties.
var (
	ActKey             = query.Field[uuid.UUID]("key")
	ActVersionKey      = query.Field[uuid.UUID]("versionKey")
	ActVersionSequence = query.Field[int64]("versionSequence")
	ActClass           = query.Field[ClassKey]("classKey")
	ActMood            = query.Field[uuid.UUID]("moodKey")
	ActStatus          = query.Field[uuid.UUID]("statusKey")
	ActType            = query.Field[uuid.UUID]("typeKey")
	ActReason          = query.Field[uuid.UUID]("reasonKey")
	ActNegated         = query.Field[bool]("negated")
	ActTime            = query.Field[time.Time]("actTime")
	ActStartTime       = query.Field[time.Time]("startTime")
	ActStopTime        = query.Field[time.Time]("stopTime")
	ActCreationTime    = query.Field[time.Time]("creationTime")

	ActParticipations = query.Collection("participations")
	ActRelationships  = query.Collection("relationships")
	ActIdentifiers    = query.Collection("identifiers")
	ActExtensions     = query.Collection("extensions")
	ActTags           = query.Collection("tags")
)

// Association member properties, relative to their collection.
var (
	ParticipationPlayer = query.Field[uuid.UUID]("playerKey")
	ParticipationRole   = query.Field[uuid.UUID]("roleKey")
	RelationshipTarget  = query.Field[uuid.UUID]("targetKey")
	RelationshipType    = query.Field[uuid.UUID]("typeKey")
	IdentifierAuthority = query.Field[uuid.UUID]("authorityKey")
	IdentifierValue     = query.Field[string]("value")
	ExtensionTypeKey    = query.Field[uuid.UUID]("typeKey")
	TagName             = query.Field[string]("name")
	TagValue            = query.Field[string]("value")
)

// Subtype components. Through the base act service they are reached with
// Has; a subtype's own service also accepts its fields at the top level.
var (
	AsPatientEncounter        = query.Collection("patientEncounter")
	AsQuantityObservation     = query.Collection("quantityObservation")
	AsTextObservation         = query.Collection("textObservation")
	AsCodedObservation        = query.Collection("codedObservation")
	AsSubstanceAdministration = query.Collection("substanceAdministration")
	AsProcedure               = query.Collection("procedure")
)

var (
	EncounterAdmissionSource      = query.Field[uuid.UUID]("admissionSourceKey")
	EncounterDischargeDisposition = query.Field[uuid.UUID]("dischargeDispositionKey")

	ObservationInterpretation = query.Field[uuid.UUID]("interpretationKey")
	QuantityValue             = query.Field[float64]("value")
	QuantityUnit              = query.Field[uuid.UUID]("unitKey")
	TextValue                 = query.Field[string]("value")
	CodedValue                = query.Field[uuid.UUID]("valueKey")

	AdministrationRoute        = query.Field[uuid.UUID]("routeKey")
	AdministrationSite         = query.Field[uuid.UUID]("siteKey")
	AdministrationDoseQuantity = query.Field[float64]("doseQuantity")
	AdministrationDoseUnit     = query.Field[uuid.UUID]("doseUnitKey")
	AdministrationSequence     = query.Field[int]("sequenceId")

	ProcedureMethod       = query.Field[uuid.UUID]("methodKey")
	ProcedureApproachSite = query.Field[uuid.UUID]("approachSiteKey")
	ProcedureTargetSite   = query.Field[uuid.UUID]("targetSiteKey")
)

// Reference entity properties.
var (
	AuthorityDomain         = query.Field[string]("domainName")
	AuthorityName           = query.Field[string]("name")
	AuthorityURL            = query.Field[string]("url")
	AuthorityObsoletionTime = query.Field[time.Time]("obsoletionTime")

	ExtensionTypeURI  = query.Field[string]("uri")
	ExtensionTypeName = query.Field[string]("name")
)
