package model

import (
	"fmt"
	"strings"
)

// FieldError describes a single field-level validation failure.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// ValidationErrors collects every field error found during validation of one
// record. Validators append to it rather than stopping at the first failure.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// OrNil returns the collected errors as an error, or nil when empty.
func (e ValidationErrors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Addf appends a formatted field error.
func (e *ValidationErrors) Addf(field, format string, args ...any) {
	*e = append(*e, FieldError{Field: field, Msg: fmt.Sprintf(format, args...)})
}

// GuardError is returned when a precondition gate blocks an operation. Unmet
// lists every unmet condition so callers can react without re-deriving state.
type GuardError struct {
	Op    string   `json:"op"`
	Unmet []string `json:"unmet"`
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s blocked: %s", e.Op, strings.Join(e.Unmet, "; "))
}

// NewGuardError builds a guard error for the named operation.
func NewGuardError(op string, unmet ...string) *GuardError {
	return &GuardError{Op: op, Unmet: unmet}
}

// CorruptionError indicates that stored data failed to deserialize. It is
// distinct from validation errors: it signals store damage, not bad input.
// The documented recovery path is rollback to a checkpoint.
type CorruptionError struct {
	Err    error
	Table  string
	RowID  string
	Column string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt data in %s.%s (row %s): %v", e.Table, e.Column, e.RowID, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// SchemaVersionError is returned when a store's recorded schema version is
// newer than this build supports. Opening such a store is fatal.
type SchemaVersionError struct {
	Found     int
	Supported int
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("store schema version %d is newer than supported version %d", e.Found, e.Supported)
}
