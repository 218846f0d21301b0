package pipeline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxClaimFunc claims up to limit rows inside tx. An empty slice with a
// nil error means the checkpoint is drained for this call.
type TxClaimFunc[T any] func(ctx context.Context, tx pgx.Tx, limit int) ([]T, error)

// TxProcessFunc applies one item's work inside the same tx that claimed
// it, including whatever write marks the item as handled. Items run
// sequentially: pgx.Tx is not safe for concurrent use, and the claim's
// row lock is only released at commit, so there is nothing to gain from
// parallelising work inside one batch transaction.
type TxProcessFunc[T any] func(ctx context.Context, tx pgx.Tx, item T) error

// RunTxBatch repeatedly begins one transaction, claims up to batchSize
// items, applies process to each, and commits, stopping once a claim
// returns fewer than batchSize items. This is the shape every
// checkpoint that does not flip its own claimed-state column atomically
// at claim time must use: the row lock FOR UPDATE SKIP LOCKED takes has
// to survive until the item's mark-as-handled write, and that is only
// guaranteed within one transaction. A single item's process error
// aborts and rolls back its whole batch, since a partially-applied
// batch would otherwise commit some marks without the writes they
// depend on.
func RunTxBatch[T any](ctx context.Context, pool *pgxpool.Pool, batchSize int, claim TxClaimFunc[T], process TxProcessFunc[T]) (Stats, error) {
	var stats Stats
	for {
		claimed, err := runOneTxBatch(ctx, pool, batchSize, claim, process)
		if err != nil {
			return stats, err
		}
		stats.Add(claimed, claimed, 0)
		if claimed < batchSize {
			return stats, nil
		}
	}
}

func runOneTxBatch[T any](ctx context.Context, pool *pgxpool.Pool, batchSize int, claim TxClaimFunc[T], process TxProcessFunc[T]) (int, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch, err := claim(ctx, tx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim batch: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	for _, item := range batch {
		if err := process(ctx, tx, item); err != nil {
			return 0, fmt.Errorf("process item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return len(batch), nil
}
