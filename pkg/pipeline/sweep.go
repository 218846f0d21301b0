package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StaleSweeper is the one method every IN_PROGRESS-claiming repository
// exposes for the start-up sweep (SqlPatternRepository today; any future
// claimed-row table that gains its own IN_PROGRESS-like status can reuse
// this helper by implementing the same method).
type StaleSweeper interface {
	SweepStaleInProgress(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SweepStartup resets rows a prior process left stuck IN_PROGRESS,
// logging how many it found. cmd/sweep-stale calls it, run by the
// scheduler before each cmd/extract pass, so a process killed
// mid-extraction does not strand a row past graceInterval.
func SweepStartup(ctx context.Context, logger *zap.Logger, sweeper StaleSweeper, graceInterval time.Duration) error {
	reset, err := sweeper.SweepStaleInProgress(ctx, graceInterval)
	if err != nil {
		return fmt.Errorf("sweep stale in-progress rows: %w", err)
	}
	if reset > 0 {
		logger.Info("reset stale in-progress rows", zap.Int64("count", reset))
	}
	return nil
}
