package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/darkcatc/pglumilineage/pkg/models"
)

// CapturedLogRepository drains the log collector's captured_logs table
// across two checkpoints: the Fingerprinter claims rows with no
// normalized_sql_hash yet, and the Pattern Aggregator separately claims
// rows the Fingerprinter has already normalized but not yet folded into
// a SqlPattern. Splitting the claim this way lets the two stages run as
// independently scheduled binaries against the same table without
// stepping on each other's SKIP LOCKED batches.
type CapturedLogRepository struct {
	db Querier
}

func NewCapturedLogRepository(db Querier) *CapturedLogRepository {
	return &CapturedLogRepository{db: db}
}

const capturedLogColumns = `
	id, log_time, source_database_name, username, raw_sql_text, duration_ms,
	normalized_sql, normalized_sql_hash, is_processed_for_analysis
`

// ClaimUnfingerprintedBatch selects up to limit rows the Fingerprinter
// has not yet normalized, row-locked with FOR UPDATE SKIP LOCKED so
// concurrent fingerprint workers never double-process a row. Callers
// must call MarkFingerprinted for every returned row before the
// claiming transaction commits, releasing the lock.
func (r *CapturedLogRepository) ClaimUnfingerprintedBatch(ctx context.Context, limit int) ([]*models.CapturedLog, error) {
	const query = `
SELECT ` + capturedLogColumns + `
FROM captured_logs
WHERE normalized_sql_hash IS NULL AND is_processed_for_analysis = false
ORDER BY log_time ASC
LIMIT $1
FOR UPDATE SKIP LOCKED
`
	return r.queryLogs(ctx, query, limit)
}

// MarkFingerprinted records the Fingerprinter's outcome for one row.
// normalizedSQL and sqlHash are both nil for a ParseFailure; in that
// case the row is also marked processed, since a non-data-flow or
// unparseable statement will never produce a SqlPattern and must not
// be reclaimed by either checkpoint again.
func (r *CapturedLogRepository) MarkFingerprinted(ctx context.Context, id uuid.UUID, normalizedSQL, sqlHash *string) error {
	const query = `
UPDATE captured_logs
SET normalized_sql = $2, normalized_sql_hash = $3, is_processed_for_analysis = ($3 IS NULL)
WHERE id = $1
`
	_, err := r.db.Exec(ctx, query, id, normalizedSQL, sqlHash)
	return mapPgError(err)
}

// ClaimFingerprintedBatch selects up to limit rows the Fingerprinter
// has normalized but the Pattern Aggregator has not yet folded into a
// SqlPattern, row-locked the same way as the fingerprint checkpoint.
func (r *CapturedLogRepository) ClaimFingerprintedBatch(ctx context.Context, limit int) ([]*models.CapturedLog, error) {
	const query = `
SELECT ` + capturedLogColumns + `
FROM captured_logs
WHERE normalized_sql_hash IS NOT NULL AND is_processed_for_analysis = false
ORDER BY log_time ASC
LIMIT $1
FOR UPDATE SKIP LOCKED
`
	return r.queryLogs(ctx, query, limit)
}

// MarkAggregated flips is_processed_for_analysis once the row's
// observation has been folded into its SqlPattern.
func (r *CapturedLogRepository) MarkAggregated(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE captured_logs SET is_processed_for_analysis = true WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return mapPgError(err)
}

func (r *CapturedLogRepository) queryLogs(ctx context.Context, query string, limit int) ([]*models.CapturedLog, error) {
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var logs []*models.CapturedLog
	for rows.Next() {
		var l models.CapturedLog
		if err := rows.Scan(&l.ID, &l.LogTime, &l.SourceDatabaseName, &l.Username, &l.RawSQLText, &l.DurationMs,
			&l.NormalizedSQL, &l.NormalizedSQLHash, &l.IsProcessedForAnalysis); err != nil {
			return nil, mapPgError(err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return logs, nil
}
