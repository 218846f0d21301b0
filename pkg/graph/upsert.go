package graph

import (
	"context"
	"fmt"
	"sort"
)

// relType is the single native Cypher relationship type this package
// ever creates. The graph dialect's real kind (DATA_FLOW, READS_FROM,
// HAS_SCHEMA, ...) is carried as a `label` property instead of a
// native Cypher label/relationship-type, the same way node kind is:
// a native label or relationship type has to be a static identifier
// embedded in the query text, and the kind values this pipeline writes
// come from catalog and lineage-document data, not module-authored
// constants — encoding them as a property lets every value flow
// through the same parameter-bound path as any other attribute.
const relType = "REL"

// UpsertNode applies the match/conditional-create/unconditional-set
// decomposition this graph dialect requires in place of a native
// `MERGE ... ON CREATE SET ... ON MATCH SET`: match by (kind, key);
// on create, apply onCreate (e.g. created_at) once; then apply set
// unconditionally on both branches, so a producer that owns only a
// subset of attributes never disturbs fields it doesn't own or
// timestamps another producer already wrote.
//
// kind is stored as the node's `label` property (see relType).
// keyValue, onCreate, and set values must be JSON-marshalable.
// keyProp and property map keys become Cypher parameter names and so
// must be valid identifiers chosen by the caller, never raw
// catalog/pattern text.
//
// The caller must run this against a pgx.Tx, not the bare pool: the
// advisory lock that serializes concurrent creators of the same key is
// released at transaction end, and an unscoped single-statement
// "transaction" on the pool would release it immediately and defeat
// the lock.
func (c *Client) UpsertNode(ctx context.Context, kind, keyProp string, keyValue any, onCreate, set map[string]any) error {
	lockKey := kind + ":" + keyProp + "=" + fmt.Sprint(keyValue)
	if err := c.advisoryLock(ctx, lockKey); err != nil {
		return err
	}

	matchClause := fmt.Sprintf("MATCH (n {label: $label, %s: $key})", keyProp)
	matchParams := map[string]any{"label": kind, "key": keyValue}

	exists, err := c.Exists(ctx, matchClause+" RETURN n", matchParams)
	if err != nil {
		return fmt.Errorf("check existing node %s: %w", lockKey, err)
	}

	if !exists {
		createClause := fmt.Sprintf("CREATE (n {label: $label, %s: $key}) RETURN n", keyProp)
		if _, err := c.Run(ctx, createClause, matchParams); err != nil {
			return fmt.Errorf("create node %s: %w", lockKey, err)
		}
		if len(onCreate) > 0 {
			createSetParams := map[string]any{"label": kind, "key": keyValue, "props": onCreate}
			if _, err := c.Run(ctx, matchClause+" SET n += $props RETURN n", createSetParams); err != nil {
				return fmt.Errorf("set creation properties on node %s: %w", lockKey, err)
			}
		}
	}

	if len(set) == 0 {
		return nil
	}
	setParams := map[string]any{"label": kind, "key": keyValue, "props": set}
	if _, err := c.Run(ctx, matchClause+" SET n += $props RETURN n", setParams); err != nil {
		return fmt.Errorf("set properties on node %s: %w", lockKey, err)
	}
	return nil
}

// UpsertEdge applies the same match/conditional-create/unconditional-set
// decomposition to a directed edge between two nodes already
// identified by (fromKind, fromKeyProp, fromValue) and
// (toKind, toKeyProp, toValue). edgeKind is stored as the edge's
// `label` property, same rationale as UpsertNode. matchExtra adds
// further properties to the edge's identity beyond (from, to,
// edgeKind) — the lineage builder uses it to key a DATA_FLOW edge by
// (source_fqn, target_fqn, sql_hash) rather than just the endpoints,
// since this dialect is a multigraph and a bare endpoint-pair match
// would collide two patterns' flows onto the same column pair. Pass
// nil when edgeKind alone already identifies the edge. onCreate is
// applied once when the edge is first created (e.g. created_at); set
// is applied on every call (e.g. last_seen_at, transformation_logic).
// Both endpoint nodes must already exist; callers materialise
// endpoints via UpsertNode first.
func (c *Client) UpsertEdge(ctx context.Context, edgeKind string, fromKind, fromKeyProp string, fromValue any, toKind, toKeyProp string, toValue any, matchExtra, onCreate, set map[string]any) error {
	lockKey := fmt.Sprintf("%s:%v->%s:%v:%s:%v", fromKind, fromValue, toKind, toValue, edgeKind, matchExtra)
	if err := c.advisoryLock(ctx, lockKey); err != nil {
		return err
	}

	extraKeys := sortedKeys(matchExtra)
	var extraProps string
	params := map[string]any{
		"fromLabel": fromKind, "from": fromValue,
		"toLabel": toKind, "to": toValue,
		"edgeLabel": edgeKind,
	}
	for _, k := range extraKeys {
		paramName := "extra_" + k
		extraProps += fmt.Sprintf(", %s: $%s", k, paramName)
		params[paramName] = matchExtra[k]
	}

	matchClause := fmt.Sprintf(
		"MATCH (a {label: $fromLabel, %s: $from})-[r:%s {label: $edgeLabel%s}]->(b {label: $toLabel, %s: $to})",
		fromKeyProp, relType, extraProps, toKeyProp,
	)

	exists, err := c.Exists(ctx, matchClause+" RETURN r", params)
	if err != nil {
		return fmt.Errorf("check existing edge %s: %w", lockKey, err)
	}

	if !exists {
		createClause := fmt.Sprintf(
			"MATCH (a {label: $fromLabel, %s: $from}), (b {label: $toLabel, %s: $to}) CREATE (a)-[r:%s {label: $edgeLabel%s}]->(b) RETURN r",
			fromKeyProp, toKeyProp, relType, extraProps,
		)
		if _, err := c.Run(ctx, createClause, params); err != nil {
			return fmt.Errorf("create edge %s: %w", lockKey, err)
		}
		if len(onCreate) > 0 {
			createSetParams := copyParams(params)
			createSetParams["props"] = onCreate
			if _, err := c.Run(ctx, matchClause+" SET r += $props RETURN r", createSetParams); err != nil {
				return fmt.Errorf("set creation properties on edge %s: %w", lockKey, err)
			}
		}
	}

	if len(set) == 0 {
		return nil
	}
	setParams := copyParams(params)
	setParams["props"] = set
	if _, err := c.Run(ctx, matchClause+" SET r += $props RETURN r", setParams); err != nil {
		return fmt.Errorf("set properties on edge %s: %w", lockKey, err)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	return out
}

// advisoryLock serializes concurrent upserts to the same graph key
// within the caller's transaction. hashtext collapses the key to an
// int4; collisions are possible but only cost an unneeded lock wait,
// never correctness, since the match/create/set sequence underneath is
// still safe to re-run.
func (c *Client) advisoryLock(ctx context.Context, key string) error {
	_, err := c.db.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key)
	if err != nil {
		return fmt.Errorf("acquire graph key lock: %w", err)
	}
	return nil
}
