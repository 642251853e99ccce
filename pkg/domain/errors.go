package domain

import "fmt"

// NotFoundError is returned when a record does not exist, is soft deleted, or
// falls outside the caller's visible scope. Scope violations deliberately use
// this error so callers cannot distinguish hidden records from absent ones.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// VersionConflictError is returned when a mutation carries a stale expected
// version. The caller should re-read the record and retry.
type VersionConflictError struct {
	Entity   EntityType
	ID       string
	Expected int
	Actual   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %s version conflict: expected %d, have %d", e.Entity, e.ID, e.Expected, e.Actual)
}

// InvalidTransitionError is returned when a lifecycle transition is not
// permitted from the record's current status.
type InvalidTransitionError struct {
	Entity EntityType
	ID     string
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("%s %s cannot transition %s -> %s", e.Entity, e.ID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IncompleteEntityError is returned when an operation requires data the record
// does not yet carry, such as finishing an extraction without an outcome.
type IncompleteEntityError struct {
	Entity EntityType
	ID     string
	Field  string
	Reason string
}

func (e *IncompleteEntityError) Error() string {
	return fmt.Sprintf("%s %s incomplete: %s %s", e.Entity, e.ID, e.Field, e.Reason)
}

// SequenceUnavailableError is returned when a per-unit case number could not
// be allocated.
type SequenceUnavailableError struct {
	Unit string
	Year int
	Err  error
}

func (e *SequenceUnavailableError) Error() string {
	return fmt.Sprintf("sequence unavailable for unit %s year %d: %v", e.Unit, e.Year, e.Err)
}

func (e *SequenceUnavailableError) Unwrap() error {
	return e.Err
}
