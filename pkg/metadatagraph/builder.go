// Package metadatagraph converts catalog snapshots (ObjectMetadata,
// ColumnMetadata, FunctionMetadata) into idempotent graph mutations
// describing the structural Database/Schema/Object/Column/Function
// nodes and their containment and foreign-key edges.
package metadatagraph

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/graph"
	"github.com/darkcatc/pglumilineage/pkg/models"
	"github.com/darkcatc/pglumilineage/pkg/repositories"
)

// Result totals one Build run across every enabled data source.
type Result struct {
	SourcesProcessed  int
	SourcesFailed     int
	EntitiesProcessed int
	EntitiesFailed    int
}

// Builder refreshes the structural portion of the lineage graph from
// the relational catalog tables.
type Builder struct {
	pool      *pgxpool.Pool
	graphName string
	sources   *repositories.DataSourceRepository
	logger    *zap.Logger
}

func New(pool *pgxpool.Pool, graphName string, logger *zap.Logger) *Builder {
	return &Builder{
		pool:      pool,
		graphName: graphName,
		sources:   repositories.NewDataSourceRepository(pool),
		logger:    logger.Named("metadata-graph-builder"),
	}
}

// Build iterates every enabled data source and refreshes its portion of
// the graph, one transaction per source, so a partial refresh never
// leaves a half-updated schema. A single source's failure does not stop
// the others from running.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	sources, err := b.sources.ListEnabled(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list data sources: %w", err)
	}

	var total Result
	for _, source := range sources {
		processed, failed, err := b.buildSource(ctx, source)
		total.EntitiesProcessed += processed
		total.EntitiesFailed += failed
		if err != nil {
			total.SourcesFailed++
			b.logger.Error("metadata graph refresh failed for data source",
				zap.String("source", source.Name), zap.Error(err))
			continue
		}
		total.SourcesProcessed++
	}
	return total, nil
}

// buildSource runs the fixed-order iteration (Database -> Schema ->
// Object -> Column -> Function -> FK) for one data source inside a
// single transaction. Any error from a graph call aborts and rolls back
// the whole source's transaction, since it signals a store-level
// problem rather than a single bad row; the source is retried on the
// next scheduled run. A malformed individual row (missing required
// catalog fields) is skipped and counted without aborting the rest.
func (b *Builder) buildSource(ctx context.Context, source *models.DataSource) (processed, failed int, err error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	g := graph.New(tx, b.graphName)
	objects, err := repositories.NewObjectMetadataRepository(tx).ListBySource(ctx, source.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list objects: %w", err)
	}
	functions, err := repositories.NewFunctionMetadataRepository(tx).ListBySource(ctx, source.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list functions: %w", err)
	}
	columnRepo := repositories.NewColumnMetadataRepository(tx)

	b2 := &sourceBuild{g: g, source: source, logger: b.logger}

	for _, obj := range objects {
		if obj.Name == "" || obj.Schema == "" || obj.Database == "" {
			b2.skip(&failed, "object missing required fields", zap.String("object_id", obj.ID.String()))
			continue
		}

		schemaFQN, err := b2.ensureContainment(ctx, obj.Database, obj.Schema)
		if err != nil {
			return processed, failed, err
		}
		processed += 2

		objFQN := obj.FQN(source.Name)
		if err := b2.upsertObject(ctx, schemaFQN, objFQN, obj); err != nil {
			return processed, failed, err
		}
		processed++

		cols, err := columnRepo.ListByObject(ctx, obj.ID)
		if err != nil {
			return processed, failed, fmt.Errorf("list columns for object %s: %w", objFQN, err)
		}
		for _, col := range cols {
			if col.ColumnName == "" {
				b2.skip(&failed, "column missing name", zap.String("object_fqn", objFQN))
				continue
			}
			colFQN := col.FQN(objFQN)
			if err := b2.upsertColumn(ctx, objFQN, colFQN, col); err != nil {
				return processed, failed, err
			}
			processed++

			if col.IsForeignKey() {
				targetObjFQN := b2.dbFQN(obj.Database) + "." + *col.FKTargetSchema + "." + *col.FKTargetTable
				targetColFQN := targetObjFQN + "." + *col.FKTargetColumn
				if err := b2.upsertForeignKey(ctx, colFQN, targetColFQN); err != nil {
					return processed, failed, err
				}
				processed++
			}
		}
	}

	for _, fn := range functions {
		if fn.Name == "" || fn.Schema == "" || fn.Database == "" {
			b2.skip(&failed, "function missing required fields", zap.String("function_id", fn.ID.String()))
			continue
		}

		schemaFQN, err := b2.ensureContainment(ctx, fn.Database, fn.Schema)
		if err != nil {
			return processed, failed, err
		}
		processed += 2

		fnFQN := fn.FQN(schemaFQN)
		if err := b2.upsertFunction(ctx, schemaFQN, fnFQN, fn); err != nil {
			return processed, failed, err
		}
		processed++
	}

	if err := tx.Commit(ctx); err != nil {
		return processed, failed, fmt.Errorf("commit: %w", err)
	}
	return processed, failed, nil
}

// sourceBuild tracks the within-transaction state (which Database and
// Schema nodes this run has already materialised) so a source with many
// objects under the same schema doesn't re-upsert that schema's node and
// containment edge for every one of them.
type sourceBuild struct {
	g      *graph.Client
	source *models.DataSource
	logger *zap.Logger

	seenDatabases map[string]bool
	seenSchemas   map[string]bool
}

func (b *sourceBuild) dbFQN(database string) string {
	return b.source.Name + "." + database
}

func (b *sourceBuild) skip(failed *int, reason string, fields ...zap.Field) {
	*failed++
	b.logger.Warn(reason, append(fields, zap.String("source", b.source.Name))...)
}

// ensureContainment upserts the Database and Schema nodes and the
// Database-[HAS_SCHEMA]->Schema edge the first time this transaction
// encounters that (database, schema) pair, and is a no-op afterward.
// Returns the schema's FQN either way.
func (b *sourceBuild) ensureContainment(ctx context.Context, database, schema string) (string, error) {
	if b.seenDatabases == nil {
		b.seenDatabases = map[string]bool{}
		b.seenSchemas = map[string]bool{}
	}

	dbFQN := b.dbFQN(database)
	schemaFQN := dbFQN + "." + schema

	if !b.seenDatabases[dbFQN] {
		now := time.Now().UTC()
		if err := b.g.UpsertNode(ctx, NodeDatabase, "fqn", dbFQN,
			map[string]any{"created_at": now},
			map[string]any{"name": database, "source": b.source.Name, "updated_at": now},
		); err != nil {
			return "", fmt.Errorf("upsert database node %s: %w", dbFQN, err)
		}
		b.seenDatabases[dbFQN] = true
	}

	if !b.seenSchemas[schemaFQN] {
		now := time.Now().UTC()
		if err := b.g.UpsertNode(ctx, NodeSchema, "fqn", schemaFQN,
			map[string]any{"created_at": now},
			map[string]any{"name": schema, "updated_at": now},
		); err != nil {
			return "", fmt.Errorf("upsert schema node %s: %w", schemaFQN, err)
		}
		if err := b.g.UpsertEdge(ctx, EdgeHasSchema,
			NodeDatabase, "fqn", dbFQN, NodeSchema, "fqn", schemaFQN,
			nil,
			map[string]any{"created_at": now},
			map[string]any{"last_seen_at": now},
		); err != nil {
			return "", fmt.Errorf("upsert has-schema edge %s -> %s: %w", dbFQN, schemaFQN, err)
		}
		b.seenSchemas[schemaFQN] = true
	}

	return schemaFQN, nil
}

func (b *sourceBuild) upsertObject(ctx context.Context, schemaFQN, objFQN string, obj *models.ObjectMetadata) error {
	now := time.Now().UTC()
	set := map[string]any{
		"kind":       string(obj.ObjectType),
		"name":       obj.Name,
		"updated_at": now,
	}
	if obj.Owner != nil {
		set["owner"] = *obj.Owner
	}
	if obj.Description != nil {
		set["description"] = *obj.Description
	}
	if obj.DefinitionSQL != nil {
		set["definition_sql"] = *obj.DefinitionSQL
	}
	if obj.RowCountEstimate != nil {
		set["row_count_estimate"] = *obj.RowCountEstimate
	}
	if len(obj.Properties) > 0 {
		set["properties"] = map[string]any(obj.Properties)
	}

	if err := b.g.UpsertNode(ctx, NodeObject, "fqn", objFQN,
		map[string]any{"created_at": now}, set,
	); err != nil {
		return fmt.Errorf("upsert object node %s: %w", objFQN, err)
	}
	if err := b.g.UpsertEdge(ctx, EdgeHasObject,
		NodeSchema, "fqn", schemaFQN, NodeObject, "fqn", objFQN,
		nil,
		map[string]any{"created_at": now},
		map[string]any{"last_seen_at": now},
	); err != nil {
		return fmt.Errorf("upsert has-object edge %s -> %s: %w", schemaFQN, objFQN, err)
	}
	return nil
}

func (b *sourceBuild) upsertColumn(ctx context.Context, objFQN, colFQN string, col *models.ColumnMetadata) error {
	now := time.Now().UTC()
	set := map[string]any{
		"name":           col.ColumnName,
		"ordinal":        col.Ordinal,
		"data_type":      col.DataType,
		"nullable":       col.Nullable,
		"is_primary_key": col.IsPrimaryKey,
		"is_unique":      col.IsUnique,
		"updated_at":     now,
	}
	if col.DefaultExpr != nil {
		set["default_expr"] = *col.DefaultExpr
	}
	if col.Description != nil {
		set["description"] = *col.Description
	}

	if err := b.g.UpsertNode(ctx, NodeColumn, "fqn", colFQN,
		map[string]any{"created_at": now}, set,
	); err != nil {
		return fmt.Errorf("upsert column node %s: %w", colFQN, err)
	}
	if err := b.g.UpsertEdge(ctx, EdgeHasColumn,
		NodeObject, "fqn", objFQN, NodeColumn, "fqn", colFQN,
		nil,
		map[string]any{"created_at": now},
		map[string]any{"last_seen_at": now},
	); err != nil {
		return fmt.Errorf("upsert has-column edge %s -> %s: %w", objFQN, colFQN, err)
	}
	return nil
}

func (b *sourceBuild) upsertForeignKey(ctx context.Context, fromColFQN, toColFQN string) error {
	now := time.Now().UTC()
	if err := b.g.UpsertEdge(ctx, EdgeReferencesColumn,
		NodeColumn, "fqn", fromColFQN, NodeColumn, "fqn", toColFQN,
		nil,
		map[string]any{"created_at": now},
		map[string]any{"last_seen_at": now},
	); err != nil {
		return fmt.Errorf("upsert references-column edge %s -> %s: %w", fromColFQN, toColFQN, err)
	}
	return nil
}

func (b *sourceBuild) upsertFunction(ctx context.Context, schemaFQN, fnFQN string, fn *models.FunctionMetadata) error {
	now := time.Now().UTC()
	set := map[string]any{
		"name":                fn.Name,
		"function_type":       string(fn.FunctionType),
		"parameter_type_list": fn.ParameterTypeList,
		"return_type":         fn.ReturnType,
		"language":            fn.Language,
		"updated_at":          now,
	}
	if fn.Body != nil {
		set["body"] = *fn.Body
	}
	if fn.Description != nil {
		set["description"] = *fn.Description
	}

	if err := b.g.UpsertNode(ctx, NodeFunction, "fqn", fnFQN,
		map[string]any{"created_at": now}, set,
	); err != nil {
		return fmt.Errorf("upsert function node %s: %w", fnFQN, err)
	}
	if err := b.g.UpsertEdge(ctx, EdgeHasFunction,
		NodeSchema, "fqn", schemaFQN, NodeFunction, "fqn", fnFQN,
		nil,
		map[string]any{"created_at": now},
		map[string]any{"last_seen_at": now},
	); err != nil {
		return fmt.Errorf("upsert has-function edge %s -> %s: %w", schemaFQN, fnFQN, err)
	}
	return nil
}
