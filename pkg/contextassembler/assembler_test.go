package contextassembler

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/darkcatc/pglumilineage/pkg/apperrors"
	"github.com/darkcatc/pglumilineage/pkg/models"
)

type fakeObjects struct {
	byKey map[string]*models.ObjectMetadata
}

func (f *fakeObjects) FindBySourceAndName(_ context.Context, sourceID uuid.UUID, database, schema, name string) (*models.ObjectMetadata, error) {
	obj, ok := f.byKey[schema+"."+name]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return obj, nil
}

type fakeColumns struct {
	byObject map[uuid.UUID][]*models.ColumnMetadata
}

func (f *fakeColumns) ListByObject(_ context.Context, objectID uuid.UUID) ([]*models.ColumnMetadata, error) {
	return f.byObject[objectID], nil
}

type fakeFunctions struct{}

func (fakeFunctions) ListBySourceAndName(_ context.Context, sourceID uuid.UUID, database, schema, name string) ([]*models.FunctionMetadata, error) {
	return nil, nil
}

type fakeSources struct {
	source *models.DataSource
}

func (f fakeSources) FindByName(_ context.Context, name string) (*models.DataSource, error) {
	return f.source, nil
}

func newTestAssembler(objects map[string]*models.ObjectMetadata, columns map[uuid.UUID][]*models.ColumnMetadata) *Assembler {
	src := &models.DataSource{ID: uuid.New(), Name: "analytics"}
	a := New(&fakeObjects{byKey: objects}, &fakeColumns{byObject: columns}, fakeFunctions{}, fakeSources{source: src})
	return a
}

func TestAssemble_ResolvesFromClauseObject(t *testing.T) {
	ordersID := uuid.New()
	objects := map[string]*models.ObjectMetadata{
		"public.orders": {ID: ordersID, Database: "analytics", Schema: "public", Name: "orders", ObjectType: models.ObjectTypeTable},
	}
	columns := map[uuid.UUID][]*models.ColumnMetadata{
		ordersID: {{ColumnName: "id", DataType: "uuid", Ordinal: 1}, {ColumnName: "total", DataType: "numeric", Ordinal: 2}},
	}
	a := newTestAssembler(objects, columns)

	pattern := &models.SqlPattern{SampleSQL: "SELECT total FROM orders WHERE id = 1", SourceDatabaseName: "analytics"}
	ctx, err := a.Assemble(context.Background(), pattern)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(ctx.Objects) != 1 {
		t.Fatalf("expected 1 resolved object, got %d", len(ctx.Objects))
	}
	if ctx.Objects[0].Name != "orders" {
		t.Fatalf("expected orders, got %s", ctx.Objects[0].Name)
	}
	if len(ctx.Objects[0].Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(ctx.Objects[0].Columns))
	}
}

func TestAssemble_UnresolvedReferenceIsReported(t *testing.T) {
	a := newTestAssembler(map[string]*models.ObjectMetadata{}, map[uuid.UUID][]*models.ColumnMetadata{})
	pattern := &models.SqlPattern{SampleSQL: "SELECT * FROM missing_table", SourceDatabaseName: "analytics"}

	ctx, err := a.Assemble(context.Background(), pattern)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(ctx.Objects) != 0 {
		t.Fatalf("expected no resolved objects, got %d", len(ctx.Objects))
	}
	if len(ctx.UnresolvedReferences) != 1 || ctx.UnresolvedReferences[0] != "missing_table" {
		t.Fatalf("expected missing_table unresolved, got %v", ctx.UnresolvedReferences)
	}
}

func TestAssemble_SearchPathTriesSchemasInOrder(t *testing.T) {
	reportsID := uuid.New()
	objects := map[string]*models.ObjectMetadata{
		"reporting.summary": {ID: reportsID, Database: "analytics", Schema: "reporting", Name: "summary", ObjectType: models.ObjectTypeView},
	}
	a := newTestAssembler(objects, map[uuid.UUID][]*models.ColumnMetadata{})
	a.SearchPath = []string{"public", "reporting"}

	pattern := &models.SqlPattern{SampleSQL: "SELECT * FROM summary", SourceDatabaseName: "analytics"}
	ctx, err := a.Assemble(context.Background(), pattern)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(ctx.Objects) != 1 || ctx.Objects[0].Schema != "reporting" {
		t.Fatalf("expected summary resolved via reporting schema, got %+v", ctx.Objects)
	}
}

func TestAssemble_TrimsLeastRelevantObjectsToFitBudget(t *testing.T) {
	aID, bID := uuid.New(), uuid.New()
	objects := map[string]*models.ObjectMetadata{
		"public.a": {ID: aID, Database: "analytics", Schema: "public", Name: "a", ObjectType: models.ObjectTypeTable},
		"public.b": {ID: bID, Database: "analytics", Schema: "public", Name: "b", ObjectType: models.ObjectTypeTable},
	}
	a := newTestAssembler(objects, map[uuid.UUID][]*models.ColumnMetadata{})
	// The sample SQL alone estimates to 10 tokens and each object's FQN
	// adds 5, so a budget of 15 fits the SQL plus one object but not both.
	a.TokenBudget = 15

	pattern := &models.SqlPattern{SampleSQL: "SELECT a.x FROM a JOIN b ON a.id = b.id", SourceDatabaseName: "analytics"}
	ctx, err := a.Assemble(context.Background(), pattern)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !ctx.Truncated {
		t.Fatalf("expected context to be marked truncated")
	}
	if len(ctx.Objects) >= 2 {
		t.Fatalf("expected trimming to drop at least one object, got %d", len(ctx.Objects))
	}
}

func TestAssemble_ContextTooLargeWhenSampleAloneExceedsBudget(t *testing.T) {
	a := newTestAssembler(map[string]*models.ObjectMetadata{}, map[uuid.UUID][]*models.ColumnMetadata{})
	a.TokenBudget = 1

	pattern := &models.SqlPattern{SampleSQL: "SELECT * FROM a_very_long_table_name_that_blows_the_budget", SourceDatabaseName: "analytics"}
	_, err := a.Assemble(context.Background(), pattern)
	if err == nil {
		t.Fatalf("expected ErrContextTooLarge")
	}
}
