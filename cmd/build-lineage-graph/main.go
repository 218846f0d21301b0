// build-lineage-graph drains COMPLETED_SUCCESS sql_patterns rows not
// yet loaded to the graph, applying each pattern's LineageDocument as a
// SqlPattern node plus its DATA_FLOW and READS_FROM/WRITES_TO/
// GENERATES_FLOW edges.
package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/lineagegraph"
	"github.com/darkcatc/pglumilineage/pkg/pipeline"
)

func main() {
	migrationsPath := flag.String("migrations", "migrations", "path to the migrations directory")
	batchSize := flag.Int("batch-size", 0, "patterns to load per run (0 uses pipeline.claim_batch_size)")
	flag.Parse()

	ctx := context.Background()
	boot, err := pipeline.Start(ctx, *migrationsPath)
	if err != nil {
		log.Fatalf("build-lineage-graph: %v", err)
	}
	defer boot.Close()
	logger := boot.Logger.Named("build-lineage-graph")

	limit := *batchSize
	if limit <= 0 {
		limit = boot.Config.Pipeline.ClaimBatchSize
	}

	builder := lineagegraph.New(boot.DB.Pool, boot.Config.Graph.Name, logger)
	result, err := builder.Build(ctx, limit)
	if err != nil {
		logger.Fatal("build failed", zap.Error(err))
	}

	logger.Info("lineage graph build complete",
		zap.Int("patterns_loaded", result.PatternsLoaded),
		zap.Int("patterns_failed", result.PatternsFailed))
}
