// Package apperrors defines sentinel errors for the control-plane data
// access layer. Component-local error kinds (fingerprint.ParseFailure,
// lineagedoc.SchemaViolationError, graph.ErrConflict, ...) wrap these
// or stand alone; they never need to import apperrors themselves.
package apperrors

import "errors"

var (
	// ErrNotFound is returned when a row lookup by key finds nothing.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique-key insert races another writer.
	ErrConflict = errors.New("conflict")

	// ErrInvalidStateTransition is returned when a caller requests an
	// SqlPattern.llm_status transition outside PENDING -> IN_PROGRESS ->
	// {COMPLETED_SUCCESS, COMPLETED_NO_LINEAGE, FAILED_PARSE, FAILED_LLM},
	// or a FAILED_* -> PENDING reset not issued by an explicit operator
	// action.
	ErrInvalidStateTransition = errors.New("invalid sql_pattern state transition")

	// ErrGraphLoadNotEligible is returned when the lineage graph builder is
	// asked to load a pattern whose llm_status is not COMPLETED_SUCCESS.
	ErrGraphLoadNotEligible = errors.New("pattern is not eligible for graph load")
)
