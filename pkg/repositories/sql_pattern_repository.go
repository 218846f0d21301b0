package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/darkcatc/pglumilineage/pkg/apperrors"
	"github.com/darkcatc/pglumilineage/pkg/models"
)

// SqlPatternRepository is the Pattern Aggregator's and the lineage
// pipeline's data access surface over the sql_patterns table.
type SqlPatternRepository struct {
	db Querier
}

func NewSqlPatternRepository(db Querier) *SqlPatternRepository {
	return &SqlPatternRepository{db: db}
}

// UpsertObservation folds one (raw_sql, timestamp, duration_ms)
// observation into the sql_patterns row keyed by sqlHash. The
// aggregate arithmetic (execution_count, min/max/avg duration) runs
// inside the SQL statement so concurrent aggregator workers upserting
// the same hash serialize on the row lock instead of racing a
// read-modify-write in application code. allowReanalysis controls
// whether a terminal FAILED_* row is reopened to PENDING by this
// observation, per operator policy.
func (r *SqlPatternRepository) UpsertObservation(ctx context.Context, sqlHash, sampleSQL, normalizedSQL, sourceDB string, observedAt time.Time, durationMs float64, allowReanalysis bool) error {
	const query = `
INSERT INTO sql_patterns (
	id, sql_hash, sample_sql, normalized_sql, source_database_name,
	first_seen_at, last_seen_at, execution_count,
	total_duration_ms, avg_duration_ms, min_duration_ms, max_duration_ms,
	llm_status, created_at, updated_at
) VALUES (
	gen_random_uuid(), $1, $2, $3, $4,
	$5, $5, 1,
	$6, $6, $6, $6,
	'PENDING', now(), now()
)
ON CONFLICT (sql_hash) DO UPDATE SET
	last_seen_at = GREATEST(sql_patterns.last_seen_at, EXCLUDED.last_seen_at),
	execution_count = sql_patterns.execution_count + 1,
	total_duration_ms = sql_patterns.total_duration_ms + EXCLUDED.total_duration_ms,
	avg_duration_ms = (sql_patterns.total_duration_ms + EXCLUDED.total_duration_ms) / (sql_patterns.execution_count + 1),
	min_duration_ms = LEAST(sql_patterns.min_duration_ms, EXCLUDED.min_duration_ms),
	max_duration_ms = GREATEST(sql_patterns.max_duration_ms, EXCLUDED.max_duration_ms),
	llm_status = CASE
		WHEN sql_patterns.llm_status IN ('FAILED_PARSE', 'FAILED_LLM') AND $7
			THEN 'PENDING'
		ELSE sql_patterns.llm_status
	END,
	updated_at = now()
`
	_, err := r.db.Exec(ctx, query, sqlHash, sampleSQL, normalizedSQL, sourceDB, observedAt, durationMs, allowReanalysis)
	return mapPgError(err)
}

// ClaimPendingBatch atomically selects up to limit PENDING rows with
// FOR UPDATE SKIP LOCKED and flips them to IN_PROGRESS in the same
// statement, so two concurrent Context Assembler/LLM Extractor workers
// never claim the same pattern.
func (r *SqlPatternRepository) ClaimPendingBatch(ctx context.Context, limit int) ([]*models.SqlPattern, error) {
	const query = `
WITH claimed AS (
	SELECT id FROM sql_patterns
	WHERE llm_status = 'PENDING'
	ORDER BY last_seen_at ASC
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
UPDATE sql_patterns SET llm_status = 'IN_PROGRESS', updated_at = now()
FROM claimed
WHERE sql_patterns.id = claimed.id
RETURNING ` + sqlPatternColumns

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanSqlPatterns(rows)
}

// ClaimGraphLoadBatch selects up to limit COMPLETED_SUCCESS rows with
// loaded_to_graph = false, row-locked with FOR UPDATE SKIP LOCKED so
// N lineage graph builder workers partition the batch safely. Unlike
// ClaimPendingBatch this does not itself flip any column: the caller
// must run this within the same transaction that will eventually set
// loaded_to_graph, so the lock is held for the whole per-pattern build.
func (r *SqlPatternRepository) ClaimGraphLoadBatch(ctx context.Context, limit int) ([]*models.SqlPattern, error) {
	const query = `
SELECT ` + sqlPatternColumns + `
FROM sql_patterns
WHERE llm_status = 'COMPLETED_SUCCESS' AND loaded_to_graph = false
ORDER BY last_seen_at ASC
LIMIT $1
FOR UPDATE SKIP LOCKED
`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanSqlPatterns(rows)
}

// MarkExtracted transitions an IN_PROGRESS row to a terminal
// extraction status (COMPLETED_SUCCESS, COMPLETED_NO_LINEAGE,
// FAILED_PARSE, or FAILED_LLM), recording the raw LineageDocument JSON
// when there is one. It refuses the write if the requested transition
// is not legal from the row's current status.
func (r *SqlPatternRepository) MarkExtracted(ctx context.Context, id uuid.UUID, next models.LLMStatus, extractedJSON []byte) error {
	current, err := r.getStatus(ctx, id)
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidStateTransition, current, next)
	}

	const query = `
UPDATE sql_patterns
SET llm_status = $2, llm_extracted_json = $3, last_llm_analysis_at = now(), updated_at = now()
WHERE id = $1
`
	_, err = r.db.Exec(ctx, query, id, string(next), extractedJSON)
	return mapPgError(err)
}

// ResetFailed reopens a FAILED_PARSE/FAILED_LLM row to PENDING. It is
// one of three paths back to PENDING from a terminal failure, next to
// ResetAllFailed and UpsertObservation with allowReanalysis set; all
// three are reached only through an explicit operator action.
func (r *SqlPatternRepository) ResetFailed(ctx context.Context, id uuid.UUID) error {
	current, err := r.getStatus(ctx, id)
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(models.LLMStatusPending) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidStateTransition, current, models.LLMStatusPending)
	}
	const query = `UPDATE sql_patterns SET llm_status = 'PENDING', updated_at = now() WHERE id = $1`
	_, err = r.db.Exec(ctx, query, id)
	return mapPgError(err)
}

// ResetAllFailed reopens every FAILED_PARSE/FAILED_LLM row to PENDING
// in one statement, for the extractor's -reanalyze flag. Like
// ResetFailed this is never invoked automatically.
func (r *SqlPatternRepository) ResetAllFailed(ctx context.Context) (int64, error) {
	const query = `
UPDATE sql_patterns
SET llm_status = 'PENDING', updated_at = now()
WHERE llm_status IN ('FAILED_PARSE', 'FAILED_LLM')
`
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}

// MarkGraphLoaded sets loaded_to_graph = true after the lineage graph
// builder's per-pattern transaction commits successfully.
func (r *SqlPatternRepository) MarkGraphLoaded(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE sql_patterns SET loaded_to_graph = true, graph_load_error = NULL, updated_at = now() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return mapPgError(err)
}

// MarkGraphLoadError records a failed graph build attempt without
// flipping loaded_to_graph, so the row remains eligible for
// ClaimGraphLoadBatch on the next run.
func (r *SqlPatternRepository) MarkGraphLoadError(ctx context.Context, id uuid.UUID, reason string) error {
	const query = `UPDATE sql_patterns SET graph_load_error = $2, updated_at = now() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, reason)
	return mapPgError(err)
}

// SweepStaleInProgress resets IN_PROGRESS rows whose updated_at is
// older than olderThan back to PENDING. Run once at start-up so a
// process that died mid-extraction never leaves a pattern stuck.
func (r *SqlPatternRepository) SweepStaleInProgress(ctx context.Context, olderThan time.Duration) (int64, error) {
	const query = `
UPDATE sql_patterns
SET llm_status = 'PENDING', updated_at = now()
WHERE llm_status = 'IN_PROGRESS' AND updated_at < now() - $1::interval
`
	tag, err := r.db.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}

// GetByHash fetches a single pattern by its content-addressed key.
func (r *SqlPatternRepository) GetByHash(ctx context.Context, sqlHash string) (*models.SqlPattern, error) {
	const query = `SELECT ` + sqlPatternColumns + ` FROM sql_patterns WHERE sql_hash = $1`
	row := r.db.QueryRow(ctx, query, sqlHash)
	return scanSqlPattern(row)
}

func (r *SqlPatternRepository) getStatus(ctx context.Context, id uuid.UUID) (models.LLMStatus, error) {
	var status string
	err := r.db.QueryRow(ctx, `SELECT llm_status FROM sql_patterns WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return "", mapPgError(err)
	}
	return models.LLMStatus(status), nil
}

const sqlPatternColumns = `
	id, sql_hash, sample_sql, normalized_sql, source_database_name,
	first_seen_at, last_seen_at, execution_count,
	total_duration_ms, avg_duration_ms, min_duration_ms, max_duration_ms,
	llm_status, llm_extracted_json, last_llm_analysis_at,
	loaded_to_graph, graph_load_error, created_at, updated_at
`

func scanSqlPattern(row pgx.Row) (*models.SqlPattern, error) {
	var p models.SqlPattern
	var status string
	err := row.Scan(
		&p.ID, &p.SqlHash, &p.SampleSQL, &p.NormalizedSQL, &p.SourceDatabaseName,
		&p.FirstSeenAt, &p.LastSeenAt, &p.ExecutionCount,
		&p.TotalDurationMs, &p.AvgDurationMs, &p.MinDurationMs, &p.MaxDurationMs,
		&status, &p.LLMExtractedJSON, &p.LastLLMAnalysisAt,
		&p.LoadedToGraph, &p.GraphLoadError, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	p.LLMStatus = models.LLMStatus(status)
	return &p, nil
}

func scanSqlPatterns(rows pgx.Rows) ([]*models.SqlPattern, error) {
	var patterns []*models.SqlPattern
	for rows.Next() {
		p, err := scanSqlPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return patterns, nil
}
