package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/darkcatc/pglumilineage/pkg/models"
)

// NormalizationErrorRepository records ParseFailure rejections for
// operator review. A row here never has a corresponding SqlPattern.
type NormalizationErrorRepository struct {
	db Querier
}

func NewNormalizationErrorRepository(db Querier) *NormalizationErrorRepository {
	return &NormalizationErrorRepository{db: db}
}

func (r *NormalizationErrorRepository) Record(ctx context.Context, capturedLogID uuid.UUID, rawSQL, reason string) error {
	const query = `
INSERT INTO normalization_errors (id, captured_log_id, raw_sql_text, reason, occurred_at)
VALUES (gen_random_uuid(), $1, $2, $3, now())
`
	_, err := r.db.Exec(ctx, query, capturedLogID, rawSQL, reason)
	return mapPgError(err)
}

func (r *NormalizationErrorRepository) List(ctx context.Context, limit int) ([]*models.NormalizationError, error) {
	const query = `
SELECT id, captured_log_id, raw_sql_text, reason, occurred_at
FROM normalization_errors
ORDER BY occurred_at DESC
LIMIT $1
`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var errs []*models.NormalizationError
	for rows.Next() {
		var e models.NormalizationError
		if err := rows.Scan(&e.ID, &e.CapturedLogID, &e.RawSQLText, &e.Reason, &e.OccurredAt); err != nil {
			return nil, mapPgError(err)
		}
		errs = append(errs, &e)
	}
	return errs, mapPgError(rows.Err())
}
