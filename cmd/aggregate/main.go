// aggregate drains captured_logs rows the fingerprint stage has already
// normalised, folding each observation into its SqlPattern row via
// SqlPatternRepository.UpsertObservation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/models"
	"github.com/darkcatc/pglumilineage/pkg/pipeline"
	"github.com/darkcatc/pglumilineage/pkg/repositories"
)

func main() {
	migrationsPath := flag.String("migrations", "migrations", "path to the migrations directory")
	reanalyze := flag.Bool("reanalyze", false, "reopen FAILED_PARSE/FAILED_LLM patterns to PENDING on this observation")
	flag.Parse()

	ctx := context.Background()
	boot, err := pipeline.Start(ctx, *migrationsPath)
	if err != nil {
		log.Fatalf("aggregate: %v", err)
	}
	defer boot.Close()
	logger := boot.Logger.Named("aggregate")

	stats, err := run(ctx, boot, *reanalyze)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
	logger.Info("aggregate run complete",
		zap.Int("claimed", stats.Claimed), zap.Int("succeeded", stats.Succeeded))
}

func run(ctx context.Context, boot *pipeline.Bootstrap, allowReanalysis bool) (pipeline.Stats, error) {
	batchSize := boot.Config.Pipeline.ClaimBatchSize

	return pipeline.RunTxBatch(ctx, boot.DB.Pool, batchSize,
		func(ctx context.Context, tx pgx.Tx, limit int) ([]*models.CapturedLog, error) {
			return repositories.NewCapturedLogRepository(tx).ClaimFingerprintedBatch(ctx, limit)
		},
		func(ctx context.Context, tx pgx.Tx, row *models.CapturedLog) error {
			return processRow(ctx, tx, row, allowReanalysis)
		},
	)
}

func processRow(ctx context.Context, tx pgx.Tx, row *models.CapturedLog, allowReanalysis bool) error {
	if row.NormalizedSQL == nil || row.NormalizedSQLHash == nil {
		return fmt.Errorf("captured log %s claimed for aggregation with no normalized SQL", row.ID)
	}

	patterns := repositories.NewSqlPatternRepository(tx)
	if err := patterns.UpsertObservation(ctx, *row.NormalizedSQLHash, row.RawSQLText, *row.NormalizedSQL,
		row.SourceDatabaseName, row.LogTime, row.DurationMs, allowReanalysis); err != nil {
		return err
	}

	return repositories.NewCapturedLogRepository(tx).MarkAggregated(ctx, row.ID)
}
