package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/darkcatc/pglumilineage/pkg/models"
)

// FunctionMetadataRepository is the read/write surface over the
// function_metadata table, keyed by (source_id, database, schema,
// name, function_type, parameter_type_list).
type FunctionMetadataRepository struct {
	db Querier
}

func NewFunctionMetadataRepository(db Querier) *FunctionMetadataRepository {
	return &FunctionMetadataRepository{db: db}
}

func (r *FunctionMetadataRepository) Upsert(ctx context.Context, f *models.FunctionMetadata) error {
	const query = `
INSERT INTO function_metadata (
	id, source_id, database, schema, name, function_type,
	parameter_type_list, return_type, body, language, description,
	created_at, updated_at
) VALUES (
	gen_random_uuid(), $1, $2, $3, $4, $5,
	$6, $7, $8, $9, $10,
	now(), now()
)
ON CONFLICT (source_id, database, schema, name, function_type, parameter_type_list) DO UPDATE SET
	return_type = EXCLUDED.return_type,
	body = EXCLUDED.body,
	language = EXCLUDED.language,
	description = EXCLUDED.description,
	updated_at = now()
RETURNING id, created_at, updated_at
`
	return mapPgError(r.db.QueryRow(ctx, query,
		f.SourceID, f.Database, f.Schema, f.Name, string(f.FunctionType),
		f.ParameterTypeList, f.ReturnType, f.Body, f.Language, f.Description,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt))
}

// ListBySourceAndName returns every function/procedure overload matching
// a candidate reference for the Context Assembler; the caller
// disambiguates overloads by trying each match.
func (r *FunctionMetadataRepository) ListBySourceAndName(ctx context.Context, sourceID uuid.UUID, database, schema, name string) ([]*models.FunctionMetadata, error) {
	const query = `
SELECT id, source_id, database, schema, name, function_type, parameter_type_list, return_type, body, language, description, created_at, updated_at
FROM function_metadata
WHERE source_id = $1 AND database = $2 AND schema = $3 AND name = $4
`
	rows, err := r.db.Query(ctx, query, sourceID, database, schema, name)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var functions []*models.FunctionMetadata
	for rows.Next() {
		f, err := scanFunctionMetadata(rows)
		if err != nil {
			return nil, err
		}
		functions = append(functions, f)
	}
	return functions, mapPgError(rows.Err())
}

func (r *FunctionMetadataRepository) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.FunctionMetadata, error) {
	const query = `
SELECT id, source_id, database, schema, name, function_type, parameter_type_list, return_type, body, language, description, created_at, updated_at
FROM function_metadata
WHERE source_id = $1
ORDER BY database, schema, name
`
	rows, err := r.db.Query(ctx, query, sourceID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var functions []*models.FunctionMetadata
	for rows.Next() {
		f, err := scanFunctionMetadata(rows)
		if err != nil {
			return nil, err
		}
		functions = append(functions, f)
	}
	return functions, mapPgError(rows.Err())
}

func scanFunctionMetadata(row interface {
	Scan(dest ...any) error
}) (*models.FunctionMetadata, error) {
	var f models.FunctionMetadata
	var functionType string
	err := row.Scan(&f.ID, &f.SourceID, &f.Database, &f.Schema, &f.Name, &functionType,
		&f.ParameterTypeList, &f.ReturnType, &f.Body, &f.Language, &f.Description,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	f.FunctionType = models.FunctionType(functionType)
	return &f, nil
}
