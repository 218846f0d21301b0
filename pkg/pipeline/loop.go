// Package pipeline holds the claim-drain-process loops the cmd/* stage
// drivers use: claim a batch, process its items, and repeat until a
// claim returns fewer rows than requested. Run processes each item with
// bounded concurrency via the worker pool already built for the LLM
// client; RunTxBatch processes a batch sequentially inside one
// transaction.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/llm"
)

// Stats totals the outcome of one Run call across every batch it drained.
type Stats struct {
	Claimed   int
	Succeeded int
	Failed    int
}

// Add folds one batch's outcome into the running total.
func (s *Stats) Add(claimed, succeeded, failed int) {
	s.Claimed += claimed
	s.Succeeded += succeeded
	s.Failed += failed
}

// ClaimFunc claims up to limit rows of type T and returns them; an empty
// slice with a nil error means the queue is drained.
type ClaimFunc[T any] func(ctx context.Context, limit int) ([]T, error)

// ProcessFunc applies the driver's per-item work to one claimed row.
type ProcessFunc[T any] func(ctx context.Context, item T) error

// IDFunc extracts a stable identifier from an item for logging.
type IDFunc[T any] func(item T) string

// Run claims successive batches of up to batchSize items via claim and
// applies process to each with pool's concurrency bound, stopping once a
// claim returns fewer items than requested (the queue is drained for
// this invocation; a future call may find more work if producers are
// still running concurrently). A single claim or pool error aborts the
// run immediately; a single item's process error is logged and counted
// in Stats.Failed without aborting its batch or the run.
func Run[T any](ctx context.Context, logger *zap.Logger, pool *llm.WorkerPool, batchSize int, claim ClaimFunc[T], id IDFunc[T], process ProcessFunc[T]) (Stats, error) {
	var stats Stats
	for {
		batch, err := claim(ctx, batchSize)
		if err != nil {
			return stats, fmt.Errorf("claim batch: %w", err)
		}
		if len(batch) == 0 {
			return stats, nil
		}

		items := make([]llm.WorkItem[struct{}], len(batch))
		for i, row := range batch {
			row := row
			items[i] = llm.WorkItem[struct{}]{
				ID: id(row),
				Execute: func(ctx context.Context) (struct{}, error) {
					return struct{}{}, process(ctx, row)
				},
			}
		}

		results := llm.Process(ctx, pool, items, nil)
		succeeded, failed := 0, 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				logger.Warn("pipeline item failed", zap.String("id", r.ID), zap.Error(r.Err))
			} else {
				succeeded++
			}
		}
		stats.Add(len(batch), succeeded, failed)

		if len(batch) < batchSize {
			return stats, nil
		}
	}
}
