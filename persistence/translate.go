package persistence

import (
	"github.com/teranos/cdr/db"
	"github.com/teranos/cdr/errors"
)

// translate turns a backing-store failure into the error taxonomy. Errors
// that already belong to it pass through unchanged.
func translate(err error, context string) error {
	if err == nil || errors.IsTaxonomyError(err) {
		return err
	}

	se := db.Classify(err)
	switch se.Code {
	case db.CodeNotNull:
		return errors.NewConstraintViolation(errors.Issue{
			Priority: errors.PriorityError,
			Type:     errors.IssueInvalidData,
			Text:     "required value missing: " + se.Constraint,
		}, se.Constraint, err)
	case db.CodeForeignKey:
		return errors.NewConstraintViolation(errors.Issue{
			Priority: errors.PriorityError,
			Type:     errors.IssueFormalConstraint,
			Text:     "referenced record does not exist",
		}, se.Constraint, err)
	case db.CodeUnique:
		return errors.NewConstraintViolation(errors.Issue{
			Priority: errors.PriorityError,
			Type:     errors.IssueAlreadyDone,
			Text:     "record already exists: " + se.Constraint,
		}, se.Constraint, err)
	case db.CodeCheck:
		cv := errors.NewConstraintViolation(errors.Issue{
			Priority: errors.PriorityError,
			Type:     errors.IssueFormalConstraint,
			Text:     "value rejected by check constraint " + se.Constraint,
		}, se.Constraint, err)
		return errors.WithHintf(cv, "the stored value breaks a rule of the schema (%s); correct the offending field and retry", se.Message)
	default:
		return errors.NewGeneralPersistenceError(err, context)
	}
}
