package errors

import (
	"fmt"
	"strings"
)

// IssuePriority ranks a detected issue.
type IssuePriority int

const (
	PriorityInformation IssuePriority = iota
	PriorityWarning
	PriorityError
)

func (p IssuePriority) String() string {
	switch p {
	case PriorityError:
		return "error"
	case PriorityWarning:
		return "warning"
	default:
		return "information"
	}
}

// MarshalText renders the priority by name so serialized issues stay readable.
func (p IssuePriority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a priority name.
func (p *IssuePriority) UnmarshalText(b []byte) error {
	switch string(b) {
	case "error":
		*p = PriorityError
	case "warning":
		*p = PriorityWarning
	case "information", "":
		*p = PriorityInformation
	default:
		return Newf("unknown issue priority %q", string(b))
	}
	return nil
}

// IssueType classifies the cause of an issue.
type IssueType string

const (
	IssueInvalidData       IssueType = "invalid-data"
	IssueFormalConstraint  IssueType = "formal-constraint"
	IssueAlreadyDone       IssueType = "already-done"
	IssueBusinessRule      IssueType = "business-rule"
	IssueSecurityViolation IssueType = "security"
	IssueOther             IssueType = "other"
)

// Issue is a single finding from validation or from the backing store.
type Issue struct {
	Priority IssuePriority `json:"priority"`
	Type     IssueType     `json:"type"`
	Text     string        `json:"text"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s/%s] %s", i.Priority, i.Type, i.Text)
}

// Fatal reports whether any issue is at error priority.
func Fatal(issues []Issue) bool {
	for _, i := range issues {
		if i.Priority == PriorityError {
			return true
		}
	}
	return false
}

// ValidationError carries the fatal business-rule findings that aborted a write.
type ValidationError struct {
	Issues []Issue
}

// NewValidationError builds a validation error from a set of issues.
func NewValidationError(issues []Issue) error {
	return WithStack(&ValidationError{Issues: issues})
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, i := range e.Issues {
		if i.Priority == PriorityError {
			msgs = append(msgs, i.Text)
		}
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsValidationError checks if an error is or wraps a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return err != nil && As(err, &ve)
}

// ConstraintViolation is a backing-store rejection translated into an issue.
type ConstraintViolation struct {
	Issue      Issue
	Constraint string
	cause      error
}

// NewConstraintViolation builds a violation wrapping the raw store error.
func NewConstraintViolation(issue Issue, constraint string, cause error) error {
	return WithStack(&ConstraintViolation{Issue: issue, Constraint: constraint, cause: cause})
}

func (e *ConstraintViolation) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("constraint violation (%s) on %s: %s", e.Issue.Type, e.Constraint, e.Issue.Text)
	}
	return fmt.Sprintf("constraint violation (%s): %s", e.Issue.Type, e.Issue.Text)
}

func (e *ConstraintViolation) Unwrap() error { return e.cause }

// Is lets errors.Is(err, ErrConstraint) match.
func (e *ConstraintViolation) Is(target error) bool {
	return target == ErrConstraint
}

// IsConstraintViolation checks if an error is or wraps a ConstraintViolation
func IsConstraintViolation(err error) bool {
	var cv *ConstraintViolation
	return err != nil && As(err, &cv)
}

// ViolationType returns the issue type of the first constraint violation in
// the chain, or "" when there is none.
func ViolationType(err error) IssueType {
	var cv *ConstraintViolation
	if As(err, &cv) {
		return cv.Issue.Type
	}
	return ""
}
