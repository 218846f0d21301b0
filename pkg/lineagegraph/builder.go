// Package lineagegraph converts validated LineageDocuments into
// idempotent graph mutations describing SqlPattern nodes, DATA_FLOW
// edges between source and target columns, and the pattern-to-object
// READS_FROM/WRITES_TO/GENERATES_FLOW edges that make every flow
// reachable from the pattern that produced it.
package lineagegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/graph"
	"github.com/darkcatc/pglumilineage/pkg/lineagedoc"
	"github.com/darkcatc/pglumilineage/pkg/models"
	"github.com/darkcatc/pglumilineage/pkg/repositories"
)

// Result totals one Build run.
type Result struct {
	PatternsLoaded int
	PatternsFailed int
}

// Builder drains the graph-load queue and applies one pattern's
// LineageDocument at a time.
type Builder struct {
	pool      *pgxpool.Pool
	graphName string
	logger    *zap.Logger
}

func New(pool *pgxpool.Pool, graphName string, logger *zap.Logger) *Builder {
	return &Builder{pool: pool, graphName: graphName, logger: logger.Named("lineage-graph-builder")}
}

// Build claims and loads up to limit patterns, one per transaction so
// the row lock ClaimGraphLoadBatch takes is held for exactly the
// duration of that pattern's build and no other. It stops early once
// there is no more eligible work; a failure loading one pattern is
// recorded against it and does not stop the run.
func (b *Builder) Build(ctx context.Context, limit int) (Result, error) {
	var total Result
	for i := 0; i < limit; i++ {
		claimed, loaded, err := b.processOnePattern(ctx)
		if err != nil {
			return total, err
		}
		if !claimed {
			break
		}
		if loaded {
			total.PatternsLoaded++
		} else {
			total.PatternsFailed++
		}
	}
	return total, nil
}

// processOnePattern claims a single pattern inside its own transaction,
// applies loadPattern, and marks the outcome. On failure the build
// transaction is rolled back before the error is recorded, since a
// graph statement error leaves the transaction aborted and no further
// statement (including MarkGraphLoadError) can run inside it.
func (b *Builder) processOnePattern(ctx context.Context) (claimed, loaded bool, err error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return false, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	patterns, err := repositories.NewSqlPatternRepository(tx).ClaimGraphLoadBatch(ctx, 1)
	if err != nil {
		return false, false, fmt.Errorf("claim graph load batch: %w", err)
	}
	if len(patterns) == 0 {
		return false, false, nil
	}
	pattern := patterns[0]

	if buildErr := b.loadPattern(ctx, tx, pattern); buildErr != nil {
		tx.Rollback(ctx)
		b.logger.Warn("lineage graph load failed",
			zap.String("sql_hash", pattern.SqlHash), zap.Error(buildErr))
		if markErr := repositories.NewSqlPatternRepository(b.pool).MarkGraphLoadError(ctx, pattern.ID, buildErr.Error()); markErr != nil {
			return true, false, fmt.Errorf("record graph load error for %s: %w", pattern.SqlHash, markErr)
		}
		return true, false, nil
	}

	if err := repositories.NewSqlPatternRepository(tx).MarkGraphLoaded(ctx, pattern.ID); err != nil {
		return true, false, fmt.Errorf("mark graph loaded for %s: %w", pattern.SqlHash, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return true, false, fmt.Errorf("commit lineage graph load for %s: %w", pattern.SqlHash, err)
	}
	return true, true, nil
}

// loadPattern runs the strictly ordered five-step procedure against
// pattern's stored LineageDocument: endpoint materialisation, the
// SqlPattern node itself, DATA_FLOW edges, GENERATES_FLOW edges, and
// finally READS_FROM/WRITES_TO edges. Endpoint materialisation always
// completes before any edge is created so no edge can ever reference a
// node that does not yet exist.
func (b *Builder) loadPattern(ctx context.Context, tx graph.Querier, pattern *models.SqlPattern) error {
	var doc lineagedoc.LineageDocument
	if err := json.Unmarshal(pattern.LLMExtractedJSON, &doc); err != nil {
		return fmt.Errorf("unmarshal lineage document: %w", err)
	}

	source, err := repositories.NewDataSourceRepository(tx).FindByName(ctx, pattern.SourceDatabaseName)
	if err != nil {
		return fmt.Errorf("resolve data source %q: %w", pattern.SourceDatabaseName, err)
	}

	now := time.Now().UTC()
	g := graph.New(tx, b.graphName)
	pb := newPatternBuild(g, source, repositories.NewObjectMetadataRepository(tx), now)

	targetType := lineagedoc.ObjectTypeTable
	if doc.TargetObject != nil {
		targetType = doc.TargetObject.Type
	}

	type flow struct {
		fromKind, fromFQN   string
		toKind, toFQN        string
		transformationLogic string
		derivationType       lineagedoc.DerivationType
	}
	var flows []flow

	// Step 1: endpoint materialisation for every column-level flow.
	for _, cl := range doc.ColumnLevelLineage {
		targetRef := lineagedoc.ObjectRef{Schema: cl.TargetObjectSchema, Name: cl.TargetObjectName, Type: targetType}
		targetColumn := cl.TargetColumn
		targetEP, err := pb.resolveEndpoint(ctx, targetRef, &targetColumn)
		if err != nil {
			return err
		}

		for _, src := range cl.Sources {
			srcEP, err := pb.resolveEndpoint(ctx, src.SourceObject, src.SourceColumn)
			if err != nil {
				return err
			}
			flows = append(flows, flow{
				fromKind: srcEP.flowKind(), fromFQN: srcEP.flowFQN(),
				toKind: targetEP.flowKind(), toFQN: targetEP.flowFQN(),
				transformationLogic: src.TransformationLogic,
				derivationType:      cl.DerivationType,
			})
		}
	}

	// Step 1 continued: every referenced object, even one with no
	// column-level flow (a pure read), still needs its node materialised
	// before step 5's READS_FROM/WRITES_TO edges.
	for _, ref := range doc.ReferencedObjects {
		if _, err := pb.resolveEndpoint(ctx, lineagedoc.ObjectRef{Schema: ref.Schema, Name: ref.Name, Type: ref.Type}, nil); err != nil {
			return err
		}
	}

	// Step 2: the SqlPattern node, refreshed with the row's latest
	// aggregate statistics on every load.
	if err := g.UpsertNode(ctx, NodeSqlPattern, "sql_hash", pattern.SqlHash,
		map[string]any{"created_at": pattern.FirstSeenAt},
		map[string]any{
			"sample_sql":           pattern.SampleSQL,
			"execution_count":      pattern.ExecutionCount,
			"avg_duration_ms":      pattern.AvgDurationMs,
			"last_seen_at":         pattern.LastSeenAt,
			"source_database_name": pattern.SourceDatabaseName,
		},
	); err != nil {
		return fmt.Errorf("upsert sql pattern node: %w", err)
	}

	// Steps 3 and 4: one DATA_FLOW edge per source, plus the
	// GENERATES_FLOW edge that makes it reachable from this pattern.
	// DATA_FLOW is keyed by (source_fqn, target_fqn, sql_hash) rather
	// than just the endpoints, since this is a multigraph and two
	// different patterns can both produce a flow between the same pair
	// of columns. GENERATES_FLOW cannot point at an edge directly — this
	// graph dialect has no edge-to-edge primitive — so it is keyed by
	// (sql_hash, flow_edge_key) and lands on the flow's target node,
	// which is enough to make that specific flow instance addressable
	// from its pattern.
	for _, f := range flows {
		if err := g.UpsertEdge(ctx, EdgeDataFlow,
			f.fromKind, "fqn", f.fromFQN, f.toKind, "fqn", f.toFQN,
			map[string]any{"sql_hash": pattern.SqlHash},
			map[string]any{"created_at": now},
			map[string]any{
				"transformation_logic": f.transformationLogic,
				"derivation_type":      string(f.derivationType),
				"last_seen_at":         now,
			},
		); err != nil {
			return fmt.Errorf("upsert data-flow edge %s -> %s: %w", f.fromFQN, f.toFQN, err)
		}

		flowEdgeKey := f.fromFQN + "->" + f.toFQN
		if err := g.UpsertEdge(ctx, EdgeGeneratesFlow,
			NodeSqlPattern, "sql_hash", pattern.SqlHash, f.toKind, "fqn", f.toFQN,
			map[string]any{"flow_edge_key": flowEdgeKey},
			map[string]any{"created_at": now},
			map[string]any{"last_seen_at": now},
		); err != nil {
			return fmt.Errorf("upsert generates-flow edge for %s: %w", flowEdgeKey, err)
		}
	}

	// Step 5: pattern-to-object edges for every touched object.
	for _, ref := range doc.ReferencedObjects {
		obj, err := pb.resolveObject(ctx, lineagedoc.ObjectRef{Schema: ref.Schema, Name: ref.Name, Type: ref.Type})
		if err != nil {
			return err
		}

		edgeKind := EdgeReadsFrom
		if ref.AccessMode == lineagedoc.AccessModeWrite {
			edgeKind = EdgeWritesTo
		}

		if err := g.UpsertEdge(ctx, edgeKind,
			NodeSqlPattern, "sql_hash", pattern.SqlHash, obj.kind, "fqn", obj.fqn,
			nil,
			map[string]any{"created_at": now},
			map[string]any{"last_seen_at": now},
		); err != nil {
			return fmt.Errorf("upsert %s edge to %s: %w", edgeKind, obj.fqn, err)
		}
	}

	return nil
}
