// fingerprint drains captured_logs rows that have not yet been
// normalised, parsing each with pkg/fingerprint and recording either
// the canonical SQL and its hash or a NormalizationError for a row
// that carries no usable lineage.
package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/fingerprint"
	"github.com/darkcatc/pglumilineage/pkg/logging"
	"github.com/darkcatc/pglumilineage/pkg/models"
	"github.com/darkcatc/pglumilineage/pkg/pipeline"
	"github.com/darkcatc/pglumilineage/pkg/repositories"
)

func main() {
	migrationsPath := flag.String("migrations", "migrations", "path to the migrations directory")
	flag.Parse()

	ctx := context.Background()
	boot, err := pipeline.Start(ctx, *migrationsPath)
	if err != nil {
		log.Fatalf("fingerprint: %v", err)
	}
	defer boot.Close()
	logger := boot.Logger.Named("fingerprint")

	stats, err := run(ctx, boot)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
	logger.Info("fingerprint run complete",
		zap.Int("claimed", stats.Claimed), zap.Int("succeeded", stats.Succeeded))
}

func run(ctx context.Context, boot *pipeline.Bootstrap) (pipeline.Stats, error) {
	logger := boot.Logger.Named("fingerprint")
	batchSize := boot.Config.Pipeline.ClaimBatchSize

	return pipeline.RunTxBatch(ctx, boot.DB.Pool, batchSize,
		func(ctx context.Context, tx pgx.Tx, limit int) ([]*models.CapturedLog, error) {
			return repositories.NewCapturedLogRepository(tx).ClaimUnfingerprintedBatch(ctx, limit)
		},
		func(ctx context.Context, tx pgx.Tx, row *models.CapturedLog) error {
			return processRow(ctx, tx, row, logger)
		},
	)
}

func processRow(ctx context.Context, tx pgx.Tx, row *models.CapturedLog, logger *zap.Logger) error {
	logs := repositories.NewCapturedLogRepository(tx)

	result, err := fingerprint.Fingerprint(row.RawSQLText)
	if err != nil {
		var failure *fingerprint.ParseFailure
		if !errors.As(err, &failure) {
			return err
		}
		logger.Debug("rejected statement",
			zap.String("reason", string(failure.Reason)),
			zap.String("sql", logging.SanitizeQuery(row.RawSQLText)))
		if recErr := repositories.NewNormalizationErrorRepository(tx).Record(ctx, row.ID, row.RawSQLText, string(failure.Reason)); recErr != nil {
			return recErr
		}
		return logs.MarkFingerprinted(ctx, row.ID, nil, nil)
	}

	return logs.MarkFingerprinted(ctx, row.ID, &result.NormalizedSQL, &result.SQLHash)
}
