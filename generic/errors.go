/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these (or wrap them) so the HTTP layer can map
  them to status codes without knowing about every package.

ERROR CATEGORIES:
  1. Validation errors  - malformed or missing identifiers, raised before any I/O
  2. Not found          - NOT an error: read paths return nil / empty slices
  3. Schema drift       - unknown table/column; caught inside the engine and turned
                          into a capability flip + fallback, never surfaced
  4. Store errors       - any other I/O failure; carries statement and parameters

USAGE:
    if errors.Is(err, generic.ErrInvalidArgument) { ... 400 ... }
    if generic.IsSchemaDrift(err) { ... fall back ... }

SEE ALSO:
  - store/sqldb/db.go: builds StoreError and classifies driver errors
  - schema/resolver.go: SchemaDriftError for unresolved names
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidArgument is returned when a required identifier is missing or
	// malformed (non-positive id, missing composite key part, month out of range).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSchemaDrift is returned when the store does not have a table or column
	// the engine expected. Engine code handles it; callers should never see it.
	ErrSchemaDrift = errors.New("schema drift")

	// ErrNoConflictTarget is returned when the store has no unique constraint
	// matching an upsert's natural key.
	ErrNoConflictTarget = errors.New("no unique constraint for conflict target")

	// ErrDuplicateKey is returned when a unique constraint rejects a write.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStore is the base for every other store failure.
	ErrStore = errors.New("store error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which input was rejected and why.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// ErrorKind classifies a driver error.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindSchemaDrift
	KindNoConflictTarget
	KindDuplicateKey
)

// StoreError wraps a driver failure with the statement that caused it.
// The original driver error stays reachable through errors.As / errors.Unwrap.
type StoreError struct {
	Statement string
	Params    []any
	Kind      ErrorKind
	Code      string // driver specific code (SQLSTATE, sqlite extended code)
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %v", e.Err)
}

func (e *StoreError) Unwrap() []error {
	var kind error
	switch e.Kind {
	case KindSchemaDrift:
		kind = ErrSchemaDrift
	case KindNoConflictTarget:
		kind = ErrNoConflictTarget
	case KindDuplicateKey:
		kind = ErrDuplicateKey
	default:
		kind = ErrStore
	}
	return []error{kind, e.Err}
}

// SchemaDriftError is returned by the schema resolver when a logical table or
// column cannot be matched to anything stored.
type SchemaDriftError struct {
	Object string // "table" or "column"
	Table  string
	Name   string
}

func (e *SchemaDriftError) Error() string {
	if e.Object == "column" {
		return fmt.Sprintf("column %q not found in table %q", e.Name, e.Table)
	}
	return fmt.Sprintf("table %q not found", e.Name)
}

func (e *SchemaDriftError) Unwrap() error {
	return ErrSchemaDrift
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsSchemaDrift returns true for unknown-table / unknown-column conditions.
func IsSchemaDrift(err error) bool {
	return errors.Is(err, ErrSchemaDrift)
}

// IsNoConflictTarget returns true when an ON CONFLICT upsert is not supported
// by the table's constraints.
func IsNoConflictTarget(err error) bool {
	return errors.Is(err, ErrNoConflictTarget)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrDuplicateKey)
}

// RequirePositive validates a surrogate id.
func RequirePositive(field string, id int64) error {
	if id <= 0 {
		return NewValidationError(field, "must be a positive number")
	}
	return nil
}
