package lineagedoc

import "testing"

func validDoc(hash string) *LineageDocument {
	col := "amount"
	return &LineageDocument{
		SQLPatternHash:     hash,
		SourceDatabaseName: "analytics",
		TargetObject:       &ObjectRef{Schema: "public", Name: "daily_revenue", Type: ObjectTypeTable},
		ColumnLevelLineage: []ColumnLineage{
			{
				TargetColumn:       "revenue",
				TargetObjectName:   "daily_revenue",
				TargetObjectSchema: "public",
				Sources: []ColumnSource{
					{
						SourceObject:        ObjectRef{Schema: "public", Name: "orders", Type: ObjectTypeTable},
						SourceColumn:        &col,
						TransformationLogic: "SUM(amount)",
					},
				},
				DerivationType: DerivationAggregation,
			},
		},
		ReferencedObjects: []ReferencedObject{
			{Schema: "public", Name: "orders", Type: ObjectTypeTable, AccessMode: AccessModeRead},
			{Schema: "public", Name: "daily_revenue", Type: ObjectTypeTable, AccessMode: AccessModeWrite},
		},
		ParsingConfidence: 0.9,
	}
}

func TestValidate_AcceptsWellFormedDocument(t *testing.T) {
	doc := validDoc("abc123")
	if err := doc.Validate("abc123"); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}
}

func TestValidate_RejectsHashMismatch(t *testing.T) {
	doc := validDoc("abc123")
	err := doc.Validate("different")
	if err == nil {
		t.Fatal("expected hash mismatch to be rejected")
	}
}

func TestValidate_RejectsUnknownDerivationType(t *testing.T) {
	doc := validDoc("abc123")
	doc.ColumnLevelLineage[0].DerivationType = "NOT_A_REAL_TYPE"
	err := doc.Validate("abc123")
	if err == nil {
		t.Fatal("expected unknown derivation_type to be rejected")
	}
}

func TestValidate_RejectsUnknownAccessMode(t *testing.T) {
	doc := validDoc("abc123")
	doc.ReferencedObjects[0].AccessMode = "DELETE"
	err := doc.Validate("abc123")
	if err == nil {
		t.Fatal("expected unknown access_mode to be rejected")
	}
}

func TestValidate_RejectsUnknownObjectType(t *testing.T) {
	doc := validDoc("abc123")
	doc.TargetObject.Type = "MATERIALIZED_VIEW"
	err := doc.Validate("abc123")
	if err == nil {
		t.Fatal("expected unknown target_object.type to be rejected")
	}
}

func TestValidate_RejectsConfidenceOutOfRange(t *testing.T) {
	doc := validDoc("abc123")
	doc.ParsingConfidence = 1.5
	if err := doc.Validate("abc123"); err == nil {
		t.Fatal("expected out-of-range parsing_confidence to be rejected")
	}
}

func TestValidate_AllowsNilTargetObjectForPureSelect(t *testing.T) {
	doc := validDoc("abc123")
	doc.TargetObject = nil
	doc.ColumnLevelLineage = nil
	doc.ReferencedObjects = []ReferencedObject{
		{Schema: "public", Name: "orders", Type: ObjectTypeTable, AccessMode: AccessModeRead},
	}
	if err := doc.Validate("abc123"); err != nil {
		t.Fatalf("expected pure SELECT document to validate, got %v", err)
	}
}

func TestValidate_AllowsNilSourceColumnForLiteralSource(t *testing.T) {
	doc := validDoc("abc123")
	doc.ColumnLevelLineage[0].Sources[0].SourceColumn = nil
	doc.ColumnLevelLineage[0].DerivationType = DerivationLiteralAssign
	if err := doc.Validate("abc123"); err != nil {
		t.Fatalf("expected literal source with nil source_column to validate, got %v", err)
	}
}

func TestHasNoLineage_LowConfidence(t *testing.T) {
	doc := validDoc("abc123")
	doc.ParsingConfidence = 0.1
	if !doc.HasNoLineage() {
		t.Fatal("expected low-confidence document to report HasNoLineage")
	}
}

func TestHasNoLineage_EmptyColumnsOnWriteStatement(t *testing.T) {
	doc := validDoc("abc123")
	doc.ColumnLevelLineage = nil
	if !doc.HasNoLineage() {
		t.Fatal("expected a write statement with no column lineage to report HasNoLineage")
	}
}

func TestHasNoLineage_FalseForPureSelectWithNoTarget(t *testing.T) {
	doc := validDoc("abc123")
	doc.TargetObject = nil
	doc.ColumnLevelLineage = nil
	if doc.HasNoLineage() {
		t.Fatal("expected a pure SELECT with no write target to not be HasNoLineage purely for lacking column lineage")
	}
}
