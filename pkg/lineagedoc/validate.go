package lineagedoc

import "fmt"

// SchemaViolationError reports a LineageDocument that failed
// validation against the enumerated schema. Field names the JSON path
// of the offending value so it can be echoed back to the model in a
// re-prompt.
type SchemaViolationError struct {
	Field   string
	Message string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsRetryable reports false: a schema violation is resolved by
// re-prompting with the error, not by retrying the same request.
func (e *SchemaViolationError) IsRetryable() bool { return false }

func violation(field, format string, args ...any) *SchemaViolationError {
	return &SchemaViolationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks a LineageDocument against the enumerated schema:
// required fields are present, every enum field holds a known value,
// and sql_pattern_hash matches the hash the caller expects (the model
// is an unreliable oracle and must not be trusted to echo it back
// correctly). Unknown JSON keys are silently ignored by
// encoding/json's default unmarshalling and never reach this check.
func (d *LineageDocument) Validate(expectedHash string) error {
	if d.SQLPatternHash == "" {
		return violation("sql_pattern_hash", "must not be empty")
	}
	if d.SQLPatternHash != expectedHash {
		return violation("sql_pattern_hash", "got %q, expected %q", d.SQLPatternHash, expectedHash)
	}
	if d.SourceDatabaseName == "" {
		return violation("source_database_name", "must not be empty")
	}
	if d.ParsingConfidence < 0 || d.ParsingConfidence > 1 {
		return violation("parsing_confidence", "must be within [0,1], got %v", d.ParsingConfidence)
	}

	if d.TargetObject != nil {
		if err := validateObjectRef("target_object", *d.TargetObject); err != nil {
			return err
		}
	}

	for i, cl := range d.ColumnLevelLineage {
		field := fmt.Sprintf("column_level_lineage[%d]", i)
		if cl.TargetColumn == "" {
			return violation(field+".target_column", "must not be empty")
		}
		if cl.TargetObjectName == "" {
			return violation(field+".target_object_name", "must not be empty")
		}
		if !validDerivationType(cl.DerivationType) {
			return violation(field+".derivation_type", "unknown value %q", cl.DerivationType)
		}
		for j, src := range cl.Sources {
			srcField := fmt.Sprintf("%s.sources[%d]", field, j)
			if err := validateObjectRef(srcField+".source_object", src.SourceObject); err != nil {
				return err
			}
		}
	}

	for i, ref := range d.ReferencedObjects {
		field := fmt.Sprintf("referenced_objects[%d]", i)
		if err := validateObjectRef(field, ObjectRef{Schema: ref.Schema, Name: ref.Name, Type: ref.Type}); err != nil {
			return err
		}
		if !validAccessMode(ref.AccessMode) {
			return violation(field+".access_mode", "unknown value %q", ref.AccessMode)
		}
	}

	return nil
}

func validateObjectRef(field string, ref ObjectRef) error {
	if ref.Name == "" {
		return violation(field+".name", "must not be empty")
	}
	if !validObjectType(ref.Type) {
		return violation(field+".type", "unknown value %q", ref.Type)
	}
	return nil
}

func validObjectType(t ObjectType) bool {
	switch t {
	case ObjectTypeTable, ObjectTypeView, ObjectTypeTempTable:
		return true
	default:
		return false
	}
}

func validAccessMode(m AccessMode) bool {
	switch m {
	case AccessModeRead, AccessModeWrite:
		return true
	default:
		return false
	}
}

func validDerivationType(t DerivationType) bool {
	switch t {
	case DerivationDirectMapping, DerivationFunctionCall, DerivationAggregation,
		DerivationUnionMerge, DerivationConditionalLogic, DerivationLiteralAssign, DerivationExpression:
		return true
	default:
		return false
	}
}
