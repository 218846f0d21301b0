package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/darkcatc/pglumilineage/pkg/models"
)

// ObjectMetadataRepository is the read/write surface over the
// object_metadata table. Writes are used by the (externally specified)
// catalog collector; reads back the Context Assembler and Metadata
// Graph Builder.
type ObjectMetadataRepository struct {
	db Querier
}

func NewObjectMetadataRepository(db Querier) *ObjectMetadataRepository {
	return &ObjectMetadataRepository{db: db}
}

// Upsert inserts or updates a row keyed by (source_id, database,
// schema, name, object_type).
func (r *ObjectMetadataRepository) Upsert(ctx context.Context, o *models.ObjectMetadata) error {
	const query = `
INSERT INTO object_metadata (
	id, source_id, database, schema, name, object_type,
	owner, description, definition_sql, row_count_estimate, properties,
	created_at, updated_at
) VALUES (
	gen_random_uuid(), $1, $2, $3, $4, $5,
	$6, $7, $8, $9, $10,
	now(), now()
)
ON CONFLICT (source_id, database, schema, name, object_type) DO UPDATE SET
	owner = EXCLUDED.owner,
	description = EXCLUDED.description,
	definition_sql = EXCLUDED.definition_sql,
	row_count_estimate = EXCLUDED.row_count_estimate,
	properties = EXCLUDED.properties,
	updated_at = now()
RETURNING id, created_at, updated_at
`
	return mapPgError(r.db.QueryRow(ctx, query,
		o.SourceID, o.Database, o.Schema, o.Name, string(o.ObjectType),
		o.Owner, o.Description, o.DefinitionSQL, o.RowCountEstimate, o.Properties,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt))
}

// FindBySourceAndName resolves an unqualified or schema-qualified
// object reference against a source database, used by the Context
// Assembler's search-path resolution.
func (r *ObjectMetadataRepository) FindBySourceAndName(ctx context.Context, sourceID uuid.UUID, database, schema, name string) (*models.ObjectMetadata, error) {
	const query = `
SELECT id, source_id, database, schema, name, object_type, owner, description, definition_sql, row_count_estimate, properties, created_at, updated_at
FROM object_metadata
WHERE source_id = $1 AND database = $2 AND schema = $3 AND name = $4
`
	return scanObjectMetadata(r.db.QueryRow(ctx, query, sourceID, database, schema, name))
}

// ListBySource returns every object for a data source, used by the
// Metadata Graph Builder's fixed-order iteration.
func (r *ObjectMetadataRepository) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.ObjectMetadata, error) {
	const query = `
SELECT id, source_id, database, schema, name, object_type, owner, description, definition_sql, row_count_estimate, properties, created_at, updated_at
FROM object_metadata
WHERE source_id = $1
ORDER BY database, schema, name
`
	rows, err := r.db.Query(ctx, query, sourceID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var objects []*models.ObjectMetadata
	for rows.Next() {
		o, err := scanObjectMetadata(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}
	return objects, mapPgError(rows.Err())
}

func scanObjectMetadata(row interface {
	Scan(dest ...any) error
}) (*models.ObjectMetadata, error) {
	var o models.ObjectMetadata
	var objectType string
	err := row.Scan(&o.ID, &o.SourceID, &o.Database, &o.Schema, &o.Name, &objectType,
		&o.Owner, &o.Description, &o.DefinitionSQL, &o.RowCountEstimate, &o.Properties,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	o.ObjectType = models.ObjectType(objectType)
	return &o, nil
}
