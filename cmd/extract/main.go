// extract drains sql_patterns rows in PENDING status, assembling catalog
// context for each and calling the configured LLM to produce a
// LineageDocument. It is the only stage driver that talks to an LLM, so
// it is also the one wrapped in a circuit breaker and rate limiter.
package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/config"
	"github.com/darkcatc/pglumilineage/pkg/contextassembler"
	"github.com/darkcatc/pglumilineage/pkg/lineagedoc"
	"github.com/darkcatc/pglumilineage/pkg/llm"
	"github.com/darkcatc/pglumilineage/pkg/models"
	"github.com/darkcatc/pglumilineage/pkg/pipeline"
	"github.com/darkcatc/pglumilineage/pkg/repositories"
)

func main() {
	migrationsPath := flag.String("migrations", "migrations", "path to the migrations directory")
	reanalyze := flag.Bool("reanalyze", false, "reset FAILED_PARSE/FAILED_LLM patterns to PENDING before claiming")
	flag.Parse()

	ctx := context.Background()
	boot, err := pipeline.Start(ctx, *migrationsPath)
	if err != nil {
		log.Fatalf("extract: %v", err)
	}
	defer boot.Close()
	logger := boot.Logger.Named("extract")

	patterns := repositories.NewSqlPatternRepository(boot.DB.Pool)

	if *reanalyze {
		n, err := patterns.ResetAllFailed(ctx)
		if err != nil {
			logger.Fatal("reanalyze reset failed", zap.Error(err))
		}
		logger.Info("reopened failed patterns for reanalysis", zap.Int64("count", n))
	}

	extractor, err := buildExtractor(boot.Config, logger)
	if err != nil {
		logger.Fatal("build extractor", zap.Error(err))
	}

	assembler := contextassembler.New(
		repositories.NewObjectMetadataRepository(boot.DB.Pool),
		repositories.NewColumnMetadataRepository(boot.DB.Pool),
		repositories.NewFunctionMetadataRepository(boot.DB.Pool),
		repositories.NewDataSourceRepository(boot.DB.Pool),
	)
	assembler.TokenBudget = boot.Config.Pipeline.ContextTokenBudget

	pool := llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: boot.Config.LLM.MaxConcurrent}, logger)

	stats, err := run(ctx, boot, patterns, assembler, extractor, pool, logger)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
	logger.Info("extract run complete",
		zap.Int("claimed", stats.Claimed), zap.Int("succeeded", stats.Succeeded), zap.Int("failed", stats.Failed))
}

func buildExtractor(cfg *config.Config, logger *zap.Logger) (*lineagedoc.Extractor, error) {
	var client llm.LLMClient
	var err error
	switch cfg.LLM.Provider {
	case "anthropic":
		client, err = llm.NewAnthropicClient(&llm.AnthropicConfig{Model: cfg.LLM.Model, APIKey: cfg.LLM.APIKey}, logger)
	default:
		client, err = llm.NewClient(&llm.Config{Endpoint: cfg.LLM.Endpoint, Model: cfg.LLM.Model, APIKey: cfg.LLM.APIKey}, logger)
	}
	if err != nil {
		return nil, err
	}

	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
		Threshold:  cfg.LLM.CircuitBreakerThreshold,
		ResetAfter: cfg.LLM.CircuitBreakerResetAfter,
	})
	limiter := llm.NewRateLimiter(llm.RateLimiterConfig{
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		TokensPerMinute:   cfg.LLM.TokensPerMinute,
	})
	resilient := llm.NewResilientClient(client, breaker, limiter)

	return lineagedoc.NewExtractor(resilient, cfg.LLM.MaxSchemaRetries, cfg.LLM.Temperature, logger), nil
}

func run(
	ctx context.Context,
	boot *pipeline.Bootstrap,
	patterns *repositories.SqlPatternRepository,
	assembler *contextassembler.Assembler,
	extractor *lineagedoc.Extractor,
	pool *llm.WorkerPool,
	logger *zap.Logger,
) (pipeline.Stats, error) {
	batchSize := boot.Config.Pipeline.ClaimBatchSize

	return pipeline.Run(ctx, logger, pool, batchSize,
		patterns.ClaimPendingBatch,
		func(p *models.SqlPattern) string { return p.SqlHash },
		func(ctx context.Context, p *models.SqlPattern) error {
			return processPattern(ctx, p, patterns, assembler, extractor)
		},
	)
}

func processPattern(
	ctx context.Context,
	pattern *models.SqlPattern,
	patterns *repositories.SqlPatternRepository,
	assembler *contextassembler.Assembler,
	extractor *lineagedoc.Extractor,
) error {
	promptCtx, err := assembler.Assemble(ctx, pattern)
	if err != nil {
		if markErr := patterns.MarkExtracted(ctx, pattern.ID, models.LLMStatusFailedParse, nil); markErr != nil {
			return markErr
		}
		return err
	}

	result := extractor.Extract(ctx, pattern, promptCtx)

	status := models.LLMStatus(result.Outcome)
	if markErr := patterns.MarkExtracted(ctx, pattern.ID, status, result.RawJSON); markErr != nil {
		return markErr
	}
	return result.Err
}
