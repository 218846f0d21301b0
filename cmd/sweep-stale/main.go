// sweep-stale resets sql_patterns rows stuck IN_PROGRESS because their
// extract worker died mid-call, back to PENDING. It is meant to run at
// start-up before each extract deployment and on its own schedule as a
// backstop.
package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/pipeline"
	"github.com/darkcatc/pglumilineage/pkg/repositories"
)

func main() {
	migrationsPath := flag.String("migrations", "migrations", "path to the migrations directory")
	flag.Parse()

	ctx := context.Background()
	boot, err := pipeline.Start(ctx, *migrationsPath)
	if err != nil {
		log.Fatalf("sweep-stale: %v", err)
	}
	defer boot.Close()
	logger := boot.Logger.Named("sweep-stale")

	patterns := repositories.NewSqlPatternRepository(boot.DB.Pool)
	if err := pipeline.SweepStartup(ctx, logger, patterns, boot.Config.Pipeline.InProgressGraceInterval); err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}
}
