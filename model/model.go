// Package model is the logical clinical model: acts and their concrete
// subtypes, the associations hanging off them, and the reference entities
// they point at.
package model

import "github.com/google/uuid"

// Model is anything the persistence services store.
type Model interface {
	GetKey() uuid.UUID
	SetKey(uuid.UUID)
	// Clone returns a deep copy of the same concrete type.
	Clone() Model
}

// ActModel is an Act or one of its subtypes.
type ActModel interface {
	Model
	Base() *Act
}

// ClassKey discriminates the concrete act subtype. Values are HL7 act class
// codes.
type ClassKey string

const (
	ClassAct                     ClassKey = "ACT"
	ClassEncounter               ClassKey = "ENC"
	ClassQuantityObservation     ClassKey = "OBS.QTY"
	ClassTextObservation         ClassKey = "OBS.TXT"
	ClassCodedObservation        ClassKey = "OBS.CD"
	ClassSubstanceAdministration ClassKey = "SBADM"
	ClassProcedure               ClassKey = "PROC"
)

// Status concepts.
var (
	StatusNew       = uuid.MustParse("c8064cbd-fa06-4530-b430-1a52f1530c27")
	StatusActive    = uuid.MustParse("c8064cbd-fa06-4530-b430-1a52f1530c28")
	StatusCompleted = uuid.MustParse("afc33800-8225-4061-b168-bacc09cdbae3")
	StatusCancelled = uuid.MustParse("3efd3b6e-02d5-4cc9-9088-ef8f31e321c8")
	StatusNullified = uuid.MustParse("cd4aa3c4-02d5-4cc9-9088-ef8f31e321c5")
	// StatusObsolete is terminal. Acts in this status are hidden from queries
	// that do not filter on status.
	StatusObsolete = uuid.MustParse("bdef5f90-5497-4f26-956c-8f818cce2bd2")
)

// Mood concepts.
var (
	MoodEventOccurrence = uuid.MustParse("ec74541f-87c4-4327-a4b9-97f325501747")
	MoodIntent          = uuid.MustParse("099bcc5e-8e2f-4d50-b509-9f9d5bbeb58e")
	MoodRequest         = uuid.MustParse("e658ca72-3b6a-4099-ab6e-7cf6861a5b61")
	MoodProposal        = uuid.MustParse("acf7baf2-221f-4bc2-8116-ceb5165be079")
)

// Participation role concepts.
var (
	RoleAuthor       = uuid.MustParse("f0cb3faf-435d-4704-9217-b884f757bc14")
	RoleRecordTarget = uuid.MustParse("3f92dbee-a65e-434f-98ce-841feeb02e3f")
	RolePerformer    = uuid.MustParse("fa5e70a4-a46e-4665-8a20-94d4d7b86fc8")
	RoleLocation     = uuid.MustParse("61848557-d78d-40e5-954f-0b9c97307a04")
	RoleConsumable   = uuid.MustParse("a5cac7f7-e3b7-4dd8-872c-db0e7fcc2d84")
	RoleDirectTarget = uuid.MustParse("d9f63423-ba9b-48d9-ba38-c404b784b670")
)

// Relationship type concepts.
var (
	RelationshipHasComponent = uuid.MustParse("78b9540f-438b-4b6f-8d83-aaf4979dbc64")
	RelationshipHasSubject   = uuid.MustParse("9871c3bc-b57a-479d-a031-7b56cea8f0d1")
	RelationshipReplaces     = uuid.MustParse("d1578637-e1cb-415e-b319-4011da033813")
)
