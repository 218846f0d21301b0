package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/darkcatc/pglumilineage/pkg/models"
)

// ColumnMetadataRepository is the read/write surface over the
// column_metadata table, keyed by (object_id, column_name).
type ColumnMetadataRepository struct {
	db Querier
}

func NewColumnMetadataRepository(db Querier) *ColumnMetadataRepository {
	return &ColumnMetadataRepository{db: db}
}

func (r *ColumnMetadataRepository) Upsert(ctx context.Context, c *models.ColumnMetadata) error {
	const query = `
INSERT INTO column_metadata (
	id, object_id, column_name, ordinal, data_type, nullable, default_expr,
	is_primary_key, is_unique, fk_target_schema, fk_target_table, fk_target_column,
	description, created_at, updated_at
) VALUES (
	gen_random_uuid(), $1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11,
	$12, now(), now()
)
ON CONFLICT (object_id, column_name) DO UPDATE SET
	ordinal = EXCLUDED.ordinal,
	data_type = EXCLUDED.data_type,
	nullable = EXCLUDED.nullable,
	default_expr = EXCLUDED.default_expr,
	is_primary_key = EXCLUDED.is_primary_key,
	is_unique = EXCLUDED.is_unique,
	fk_target_schema = EXCLUDED.fk_target_schema,
	fk_target_table = EXCLUDED.fk_target_table,
	fk_target_column = EXCLUDED.fk_target_column,
	description = EXCLUDED.description,
	updated_at = now()
RETURNING id, created_at, updated_at
`
	return mapPgError(r.db.QueryRow(ctx, query,
		c.ObjectID, c.ColumnName, c.Ordinal, c.DataType, c.Nullable, c.DefaultExpr,
		c.IsPrimaryKey, c.IsUnique, c.FKTargetSchema, c.FKTargetTable, c.FKTargetColumn,
		c.Description,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt))
}

// ListByObject returns every column of one object ordered by ordinal
// position, used by the Context Assembler to build column lists and
// by the Metadata Graph Builder's fixed-order iteration.
func (r *ColumnMetadataRepository) ListByObject(ctx context.Context, objectID uuid.UUID) ([]*models.ColumnMetadata, error) {
	const query = `
SELECT id, object_id, column_name, ordinal, data_type, nullable, default_expr,
	is_primary_key, is_unique, fk_target_schema, fk_target_table, fk_target_column,
	description, created_at, updated_at
FROM column_metadata
WHERE object_id = $1
ORDER BY ordinal ASC
`
	rows, err := r.db.Query(ctx, query, objectID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var columns []*models.ColumnMetadata
	for rows.Next() {
		var c models.ColumnMetadata
		if err := rows.Scan(&c.ID, &c.ObjectID, &c.ColumnName, &c.Ordinal, &c.DataType, &c.Nullable, &c.DefaultExpr,
			&c.IsPrimaryKey, &c.IsUnique, &c.FKTargetSchema, &c.FKTargetTable, &c.FKTargetColumn,
			&c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, mapPgError(err)
		}
		columns = append(columns, &c)
	}
	return columns, mapPgError(rows.Err())
}
