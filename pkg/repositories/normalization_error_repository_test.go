package repositories_test

import (
	"context"
	"testing"

	"github.com/darkcatc/pglumilineage/pkg/repositories"
	"github.com/darkcatc/pglumilineage/pkg/testhelpers"
)

func TestNormalizationErrorRepository_RecordAndList(t *testing.T) {
	db := testhelpers.GetPipelineDB(t)
	repo := repositories.NewNormalizationErrorRepository(db.DB)
	ctx := context.Background()

	logID := seedCapturedLog(t, ctx, db.DB, "analytics", "SET search_path = foo")

	if err := repo.Record(ctx, logID, "SET search_path = foo", "non_data_flow:SET"); err != nil {
		t.Fatalf("record: %v", err)
	}

	errs, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var found bool
	for _, e := range errs {
		if e.CapturedLogID == logID {
			found = true
			if e.Reason != "non_data_flow:SET" {
				t.Fatalf("expected reason non_data_flow:SET, got %s", e.Reason)
			}
		}
	}
	if !found {
		t.Fatalf("expected recorded normalization error to appear in List")
	}
}
