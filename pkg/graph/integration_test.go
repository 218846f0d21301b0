package graph_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/darkcatc/pglumilineage/pkg/graph"
	"github.com/darkcatc/pglumilineage/pkg/testhelpers"
)

func setupGraph(t *testing.T) (*graph.Client, string) {
	t.Helper()
	db := testhelpers.GetTestDB(t)
	name := "test_graph_" + strings.ReplaceAll(uuid.NewString(), "-", "_")

	ctx := context.Background()
	if _, err := db.Pool.Exec(ctx, "LOAD 'age'"); err != nil {
		t.Fatalf("load age: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, "SET search_path = ag_catalog, public"); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, "SELECT create_graph($1)", name); err != nil {
		t.Fatalf("create graph: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), "SELECT drop_graph($1, true)", name)
	})

	return graph.New(db.Pool, name), name
}

func TestUpsertNode_CreatesOnceAndSetsPropertiesIdempotently(t *testing.T) {
	c, _ := setupGraph(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := c.UpsertNode(ctx, "Object", "fqn", "analytics.public.orders", map[string]any{
			"created_at": "2026-01-01T00:00:00Z",
		}, map[string]any{
			"kind": "TABLE",
		})
		if err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	results, err := c.Run(ctx, "MATCH (n {label: 'Object', fqn: $fqn}) RETURN count(n)", map[string]any{"fqn": "analytics.public.orders"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(results) != 1 || results[0] != "1" {
		t.Fatalf("expected exactly one node to exist after two upserts, got %v", results)
	}
}

func TestUpsertEdge_CreatesOneEdgeBetweenExistingEndpoints(t *testing.T) {
	c, _ := setupGraph(t)
	ctx := context.Background()

	if err := c.UpsertNode(ctx, "Object", "fqn", "analytics.public.orders", nil, nil); err != nil {
		t.Fatalf("upsert from: %v", err)
	}
	if err := c.UpsertNode(ctx, "Object", "fqn", "analytics.public.order_items", nil, nil); err != nil {
		t.Fatalf("upsert to: %v", err)
	}

	err := c.UpsertEdge(ctx, "DATA_FLOW",
		"Object", "fqn", "analytics.public.orders",
		"Object", "fqn", "analytics.public.order_items",
		nil, nil, map[string]any{"via": "join"})
	if err != nil {
		t.Fatalf("upsert edge: %v", err)
	}

	results, err := c.Run(ctx,
		"MATCH ({label: 'Object', fqn: $from})-[r {label: 'DATA_FLOW'}]->({label: 'Object', fqn: $to}) RETURN count(r)",
		map[string]any{"from": "analytics.public.orders", "to": "analytics.public.order_items"})
	if err != nil {
		t.Fatalf("count edges: %v", err)
	}
	if len(results) != 1 || results[0] != "1" {
		t.Fatalf("expected exactly one edge, got %v", results)
	}
}

func TestUpsertNode_ConcurrentUpsertsOfSameKeyConvergeOnOneNode(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	name := "test_graph_" + strings.ReplaceAll(uuid.NewString(), "-", "_")
	ctx := context.Background()

	if _, err := db.Pool.Exec(ctx, "LOAD 'age'"); err != nil {
		t.Fatalf("load age: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, "SET search_path = ag_catalog, public"); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, "SELECT create_graph($1)", name); err != nil {
		t.Fatalf("create graph: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), "SELECT drop_graph($1, true)", name)
	})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := db.Pool.Begin(ctx)
			if err != nil {
				errs[i] = err
				return
			}
			defer tx.Rollback(ctx)

			c := graph.New(tx, name)
			if err := c.UpsertNode(ctx, "Object", "fqn", "analytics.public.orders", nil, map[string]any{"kind": "TABLE"}); err != nil {
				errs[i] = err
				return
			}
			errs[i] = tx.Commit(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}

	c := graph.New(db.Pool, name)
	results, err := c.Run(ctx, "MATCH (n {label: 'Object', fqn: $fqn}) RETURN count(n)", map[string]any{"fqn": "analytics.public.orders"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(results) != 1 || results[0] != "1" {
		t.Fatalf("expected concurrent upserts to converge on one node, got %v", results)
	}
}
