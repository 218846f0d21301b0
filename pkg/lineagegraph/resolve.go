package lineagegraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/darkcatc/pglumilineage/pkg/apperrors"
	"github.com/darkcatc/pglumilineage/pkg/graph"
	"github.com/darkcatc/pglumilineage/pkg/lineagedoc"
	"github.com/darkcatc/pglumilineage/pkg/models"
	"github.com/darkcatc/pglumilineage/pkg/repositories"
)

// sourceDatabase is the same placeholder seam pkg/contextassembler
// uses: in this module a DataSource's name and the logical database it
// exposes through the catalog are the same string.
func sourceDatabase(sourceName string) string {
	return sourceName
}

type resolvedObject struct {
	fqn  string
	kind string
}

// patternBuild holds the within-transaction state for one pattern's
// lineage load: the catalog resolution cache (so a table referenced by
// five different column flows is only looked up once) and the set of
// endpoint nodes already upserted this call (so step 1's materialisation
// and step 3/5's edge creation never issue a redundant UpsertNode for
// the same key).
type patternBuild struct {
	g       *graph.Client
	source  *models.DataSource
	objects *repositories.ObjectMetadataRepository
	now     time.Time

	resolved map[string]resolvedObject
	upserted map[string]bool
}

func newPatternBuild(g *graph.Client, source *models.DataSource, objects *repositories.ObjectMetadataRepository, now time.Time) *patternBuild {
	return &patternBuild{
		g:        g,
		source:   source,
		objects:  objects,
		now:      now,
		resolved: map[string]resolvedObject{},
		upserted: map[string]bool{},
	}
}

func (pb *patternBuild) fallbackFQN(ref lineagedoc.ObjectRef) string {
	return pb.source.Name + "." + sourceDatabase(pb.source.Name) + "." + ref.Schema + "." + ref.Name
}

// resolveObject looks ref up against the catalog. A TEMP_TABLE type,
// or a schema-qualified name the catalog doesn't know about, resolves
// to a TempTable stub instead of failing: this builder never treats an
// unresolved endpoint as an error, per the design that lineage can run
// ahead of a catalog snapshot.
func (pb *patternBuild) resolveObject(ctx context.Context, ref lineagedoc.ObjectRef) (resolvedObject, error) {
	key := ref.Schema + "." + ref.Name
	if v, ok := pb.resolved[key]; ok {
		return v, nil
	}

	var out resolvedObject
	if ref.Type == lineagedoc.ObjectTypeTempTable {
		out = resolvedObject{fqn: pb.fallbackFQN(ref), kind: NodeTempTable}
	} else {
		obj, err := pb.objects.FindBySourceAndName(ctx, pb.source.ID, sourceDatabase(pb.source.Name), ref.Schema, ref.Name)
		switch {
		case err == nil:
			out = resolvedObject{fqn: obj.FQN(pb.source.Name), kind: NodeObject}
		case errors.Is(err, apperrors.ErrNotFound):
			out = resolvedObject{fqn: pb.fallbackFQN(ref), kind: NodeTempTable}
		default:
			return resolvedObject{}, fmt.Errorf("resolve object %s.%s: %w", ref.Schema, ref.Name, err)
		}
	}

	pb.resolved[key] = out
	return out, nil
}

func columnKind(objKind string) string {
	if objKind == NodeTempTable {
		return NodeTempColumn
	}
	return NodeColumn
}

// upsertObjectNode materialises obj's node if this call hasn't already.
// onCreate marks sourced_by so the metadata builder's own upserts never
// report an endpoint it never created; set is empty, since a lineage
// endpoint node carries no attribute the lineage builder is authoritative
// over beyond that one-time marker.
func (pb *patternBuild) upsertObjectNode(ctx context.Context, obj resolvedObject) error {
	dedupeKey := "node:" + obj.kind + ":" + obj.fqn
	if pb.upserted[dedupeKey] {
		return nil
	}
	if err := pb.g.UpsertNode(ctx, obj.kind, "fqn", obj.fqn,
		map[string]any{"created_at": pb.now, "sourced_by": "lineage"}, nil,
	); err != nil {
		return fmt.Errorf("upsert endpoint node %s: %w", obj.fqn, err)
	}
	pb.upserted[dedupeKey] = true
	return nil
}

func (pb *patternBuild) upsertColumnNode(ctx context.Context, objKind, objFQN, column string) (fqn, kind string, err error) {
	kind = columnKind(objKind)
	fqn = objFQN + "." + column
	dedupeKey := "node:" + kind + ":" + fqn
	if pb.upserted[dedupeKey] {
		return fqn, kind, nil
	}
	if err := pb.g.UpsertNode(ctx, kind, "fqn", fqn,
		map[string]any{"created_at": pb.now, "sourced_by": "lineage"}, nil,
	); err != nil {
		return "", "", fmt.Errorf("upsert endpoint column %s: %w", fqn, err)
	}
	pb.upserted[dedupeKey] = true
	return fqn, kind, nil
}

// endpoint is a resolved and already-materialised object, optionally
// narrowed to one of its columns.
type endpoint struct {
	objKind, objFQN string
	colFQN, colKind string
	hasColumn       bool
}

// flowKind and flowFQN are the identity an edge should bind to: the
// column when one was named, otherwise the object itself (the literal
// or expression case, where there is no source column to point at).
func (e endpoint) flowKind() string {
	if e.hasColumn {
		return e.colKind
	}
	return e.objKind
}

func (e endpoint) flowFQN() string {
	if e.hasColumn {
		return e.colFQN
	}
	return e.objFQN
}

func (pb *patternBuild) resolveEndpoint(ctx context.Context, ref lineagedoc.ObjectRef, column *string) (endpoint, error) {
	obj, err := pb.resolveObject(ctx, ref)
	if err != nil {
		return endpoint{}, err
	}
	if err := pb.upsertObjectNode(ctx, obj); err != nil {
		return endpoint{}, err
	}

	ep := endpoint{objKind: obj.kind, objFQN: obj.fqn}
	if column != nil {
		colFQN, colKind, err := pb.upsertColumnNode(ctx, obj.kind, obj.fqn, *column)
		if err != nil {
			return endpoint{}, err
		}
		ep.colFQN, ep.colKind, ep.hasColumn = colFQN, colKind, true
	}
	return ep, nil
}
