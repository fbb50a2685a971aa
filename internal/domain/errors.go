package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic checks with errors.Is.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDecision indicates a decision value outside ACCEPT/REJECT.
	ErrInvalidDecision = errors.New("invalid decision")
)

// SchemaMismatchError reports a raw row missing (or failing to parse) a
// field the field map declares required. Fatal for that row only, never
// for the batch.
type SchemaMismatchError struct {
	Source Source
	Row    int
	Field  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: %s row %d field %q: %s", e.Source, e.Row, e.Field, e.Reason)
}

// PreconditionError reports a contract violation by the caller, e.g.
// remediation requested for a pair below the severity threshold. It
// should abort the cycle.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violated in %s: %s", e.Op, e.Reason)
}

// DuplicateEntryError reports a knowledge base append with an entry ID
// that already exists. Recoverable: the caller regenerates the ID.
type DuplicateEntryError struct {
	EntryID string
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("knowledge entry %s already exists", e.EntryID)
}

// AlreadyDecidedError reports a second decision on a discrepancy that
// has one. Recoverable no-op: state is left unchanged.
type AlreadyDecidedError struct {
	DiscrepancyRef string
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("discrepancy %s already decided", e.DiscrepancyRef)
}

// PersistenceError reports a durable write failure. The atomic-apply
// guarantee means the enclosing transaction was rolled back as a whole.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
