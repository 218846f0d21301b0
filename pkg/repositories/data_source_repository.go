package repositories

import (
	"context"

	"github.com/darkcatc/pglumilineage/pkg/models"
)

// DataSourceRepository is the read/write surface over the
// data_sources table.
type DataSourceRepository struct {
	db Querier
}

func NewDataSourceRepository(db Querier) *DataSourceRepository {
	return &DataSourceRepository{db: db}
}

// Upsert inserts or updates a row keyed by name. Data sources are
// provisioned by an external collector/admin surface; this repository
// only needs to persist what that surface decides.
func (r *DataSourceRepository) Upsert(ctx context.Context, s *models.DataSource) error {
	const query = `
INSERT INTO data_sources (
	id, name, host, port, retrieval_method, enabled, created_at, updated_at
) VALUES (
	gen_random_uuid(), $1, $2, $3, $4, $5, now(), now()
)
ON CONFLICT (name) DO UPDATE SET
	host = EXCLUDED.host,
	port = EXCLUDED.port,
	retrieval_method = EXCLUDED.retrieval_method,
	enabled = EXCLUDED.enabled,
	updated_at = now()
RETURNING id, created_at, updated_at
`
	return mapPgError(r.db.QueryRow(ctx, query,
		s.Name, s.Host, s.Port, string(s.RetrievalMethod), s.Enabled,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt))
}

func (r *DataSourceRepository) ListEnabled(ctx context.Context) ([]*models.DataSource, error) {
	const query = `
SELECT id, name, host, port, retrieval_method, enabled, created_at, updated_at
FROM data_sources
WHERE enabled = true
ORDER BY name
`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var sources []*models.DataSource
	for rows.Next() {
		var s models.DataSource
		var retrievalMethod string
		if err := rows.Scan(&s.ID, &s.Name, &s.Host, &s.Port, &retrievalMethod, &s.Enabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, mapPgError(err)
		}
		s.RetrievalMethod = models.RetrievalMethod(retrievalMethod)
		sources = append(sources, &s)
	}
	return sources, mapPgError(rows.Err())
}

func (r *DataSourceRepository) FindByName(ctx context.Context, name string) (*models.DataSource, error) {
	const query = `
SELECT id, name, host, port, retrieval_method, enabled, created_at, updated_at
FROM data_sources
WHERE name = $1
`
	var s models.DataSource
	var retrievalMethod string
	err := r.db.QueryRow(ctx, query, name).Scan(&s.ID, &s.Name, &s.Host, &s.Port, &retrievalMethod, &s.Enabled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	s.RetrievalMethod = models.RetrievalMethod(retrievalMethod)
	return &s, nil
}
