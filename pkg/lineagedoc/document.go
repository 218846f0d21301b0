// Package lineagedoc defines the structured output the LLM Extractor
// produces for one SqlPattern, and the validation that stands between
// an untrusted model response and the Lineage Graph Builder.
package lineagedoc

import (
	"encoding/json"

	"github.com/darkcatc/pglumilineage/pkg/jsonutil"
)

// ObjectType enumerates the kinds a referenced or target object can
// carry in a lineage document. TEMP_TABLE marks a statement-local
// object that never appears in catalog metadata.
type ObjectType string

const (
	ObjectTypeTable     ObjectType = "TABLE"
	ObjectTypeView      ObjectType = "VIEW"
	ObjectTypeTempTable ObjectType = "TEMP_TABLE"
)

// AccessMode describes how a pattern touches a referenced object.
type AccessMode string

const (
	AccessModeRead  AccessMode = "READ"
	AccessModeWrite AccessMode = "WRITE"
)

// DerivationType classifies how a target column's value was produced
// from its sources.
type DerivationType string

const (
	DerivationDirectMapping    DerivationType = "DIRECT_MAPPING"
	DerivationFunctionCall     DerivationType = "FUNCTION_CALL"
	DerivationAggregation      DerivationType = "AGGREGATION"
	DerivationUnionMerge       DerivationType = "UNION_MERGE"
	DerivationConditionalLogic DerivationType = "CONDITIONAL_LOGIC"
	DerivationLiteralAssign    DerivationType = "LITERAL_ASSIGNMENT"
	DerivationExpression       DerivationType = "EXPRESSION"
)

// ObjectRef identifies a schema-qualified catalog object.
type ObjectRef struct {
	Schema string     `json:"schema"`
	Name   string     `json:"name"`
	Type   ObjectType `json:"type"`
}

// ReferencedObject is one entry of LineageDocument.ReferencedObjects.
type ReferencedObject struct {
	Schema     string     `json:"schema"`
	Name       string     `json:"name"`
	Type       ObjectType `json:"type"`
	AccessMode AccessMode `json:"access_mode"`
}

// ColumnSource is one contributor to a ColumnLineage entry.
// SourceColumn is nil for the literal/expression case: a target column
// derived from a constant or an expression with no column input.
type ColumnSource struct {
	SourceObject        ObjectRef `json:"source_object"`
	SourceColumn        *string   `json:"source_column"`
	TransformationLogic string    `json:"transformation_logic"`
}

// UnmarshalJSON tolerates a model emitting transformation_logic as a
// bare number or boolean instead of a string, e.g. for a literal
// assignment like `SET flag = true`.
func (s *ColumnSource) UnmarshalJSON(data []byte) error {
	var raw struct {
		SourceObject         ObjectRef       `json:"source_object"`
		SourceColumn         *string         `json:"source_column"`
		TransformationLogic json.RawMessage `json:"transformation_logic"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.SourceObject = raw.SourceObject
	s.SourceColumn = raw.SourceColumn
	s.TransformationLogic = jsonutil.FlexibleStringValue(raw.TransformationLogic)
	return nil
}

// ColumnLineage describes how one target column's value was derived.
type ColumnLineage struct {
	TargetColumn       string         `json:"target_column"`
	TargetObjectName   string         `json:"target_object_name"`
	TargetObjectSchema string         `json:"target_object_schema"`
	Sources            []ColumnSource `json:"sources"`
	DerivationType     DerivationType `json:"derivation_type"`
}

// LineageDocument is the LLM Extractor's structured output for one
// SqlPattern: the object written (if any), the column-level derivation
// graph, every object the statement touches, and the model's own
// confidence in the extraction.
type LineageDocument struct {
	SQLPatternHash     string             `json:"sql_pattern_hash"`
	SourceDatabaseName string             `json:"source_database_name"`
	TargetObject       *ObjectRef         `json:"target_object"`
	ColumnLevelLineage []ColumnLineage    `json:"column_level_lineage"`
	ReferencedObjects  []ReferencedObject `json:"referenced_objects"`
	ParsingConfidence  float64            `json:"parsing_confidence"`
}

// IsWriteStatement reports whether this document describes a statement
// that wrote to a target object, as opposed to a pure SELECT.
func (d *LineageDocument) IsWriteStatement() bool {
	return d.TargetObject != nil
}

// HasNoLineage reports whether the document should be classified
// COMPLETED_NO_LINEAGE rather than loaded into the graph: either the
// model reported very low confidence, or it found no column lineage
// for a statement that wrote somewhere.
func (d *LineageDocument) HasNoLineage() bool {
	if d.ParsingConfidence < 0.2 {
		return true
	}
	return d.IsWriteStatement() && len(d.ColumnLevelLineage) == 0
}
