package models

import (
	"time"

	"github.com/google/uuid"
)

// FunctionType distinguishes ordinary functions from stored procedures,
// mirroring what the catalog collector reports from pg_proc.
type FunctionType string

const (
	FunctionTypeFunction  FunctionType = "FUNCTION"
	FunctionTypeProcedure FunctionType = "PROCEDURE"
)

// FunctionMetadata is a catalog-collected row describing a function or
// procedure. Keyed by (source_id, database, schema, name, function_type,
// parameter_type_list).
type FunctionMetadata struct {
	ID uuid.UUID

	SourceID     uuid.UUID
	Database     string
	Schema       string
	Name         string
	FunctionType FunctionType

	// ParameterTypeList is part of the identity key: Postgres allows
	// function overloading by parameter types, so the name alone is
	// not unique.
	ParameterTypeList string
	ReturnType        string

	// Body is the function source SQL when the language exposes one
	// (plpgsql, sql). Nil for opaque/compiled languages (c, internal).
	// Per the function-body-lineage supplement, a non-nil Body makes
	// this function an eligible Context Assembler input identical to a
	// view definition.
	Body     *string
	Language string

	Description *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FQN returns the fully-qualified name used as the graph node key:
// {schema_fqn}.{fn_name}({param_type_list}).
func (f *FunctionMetadata) FQN(schemaFQN string) string {
	return schemaFQN + "." + f.Name + "(" + f.ParameterTypeList + ")"
}
