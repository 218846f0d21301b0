package repositories_test

import (
	"context"
	"testing"

	"github.com/darkcatc/pglumilineage/pkg/models"
	"github.com/darkcatc/pglumilineage/pkg/repositories"
	"github.com/darkcatc/pglumilineage/pkg/testhelpers"
)

func TestFunctionMetadataRepository_OverloadsDisambiguatedByParameterTypeList(t *testing.T) {
	db := testhelpers.GetPipelineDB(t)
	repo := repositories.NewFunctionMetadataRepository(db.DB)
	ctx := context.Background()

	source := seedDataSourceForCatalog(t, ctx, db.DB)

	body := "BEGIN RETURN a + b; END;"
	if err := repo.Upsert(ctx, &models.FunctionMetadata{
		SourceID: source.ID, Database: "analytics", Schema: "public", Name: "add",
		FunctionType: models.FunctionTypeFunction, ParameterTypeList: "integer,integer",
		ReturnType: "integer", Body: &body, Language: "plpgsql",
	}); err != nil {
		t.Fatalf("upsert int overload: %v", err)
	}
	if err := repo.Upsert(ctx, &models.FunctionMetadata{
		SourceID: source.ID, Database: "analytics", Schema: "public", Name: "add",
		FunctionType: models.FunctionTypeFunction, ParameterTypeList: "numeric,numeric",
		ReturnType: "numeric", Language: "plpgsql",
	}); err != nil {
		t.Fatalf("upsert numeric overload: %v", err)
	}

	matches, err := repo.ListBySourceAndName(ctx, source.ID, "analytics", "public", "add")
	if err != nil {
		t.Fatalf("list by source and name: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected both overloads to be distinct rows, got %d", len(matches))
	}

	all, err := repo.ListBySource(ctx, source.ID)
	if err != nil {
		t.Fatalf("list by source: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 functions for source, got %d", len(all))
	}
}
