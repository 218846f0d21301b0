// Package graph wraps Cypher execution against the Apache AGE property
// graph loaded into the control-plane database. AGE has no native Go
// driver; every operation goes through plain pgx calling the
// `ag_catalog.cypher()` set-returning function with the graph name and
// Cypher text inlined (trusted, module-authored strings, never request
// data) and every Cypher parameter value bound through an ordinary pgx
// placeholder inside a `jsonb_build_object(...)::text::agtype`
// expression, never string-interpolated.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict names a concurrent create of the same node or edge.
// Nothing in this package returns it: UpsertNode/UpsertEdge take an
// advisory lock on the key before their match and create steps, which
// serializes concurrent writers when the caller runs them inside a
// transaction.
var ErrConflict = errors.New("graph: concurrent create")

// StatementError wraps a Cypher statement that AGE rejected, carrying
// the statement text (sanitized of parameter values, which never
// appear in the text) for diagnosis.
type StatementError struct {
	Cypher string
	Err    error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("graph statement failed: %v", e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// IsRetryable reports false: a rejected Cypher statement is a bug in
// the caller's query construction, not a transient condition.
func (e *StatementError) IsRetryable() bool { return false }

// Querier is the minimal pgx surface this package needs, satisfied by
// *pgxpool.Pool and pgx.Tx alike so graph operations can run standalone
// or inside a caller-managed transaction (required for UpsertNode's
// advisory-lock serialization, see upsert.go).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client executes Cypher statements against one named AGE graph.
type Client struct {
	db   Querier
	name string
}

func New(db Querier, graphName string) *Client {
	return &Client{db: db, name: graphName}
}

// Run executes a Cypher statement and returns each result row's single
// column rendered as agtype text. By convention every cypherBody this
// package sends ends in a RETURN clause producing exactly one
// expression: AGE's cypher() function requires its result shape
// declared up front via an AS (...) clause, so standardising on one
// `result agtype` column (cast to text in the outer SELECT, so pgx
// never needs the agtype OID registered) keeps every call site uniform.
func (c *Client) Run(ctx context.Context, cypherBody string, params map[string]any) ([]string, error) {
	paramsExpr, args := buildParamsExpr(params)
	stmt := fmt.Sprintf(
		"SELECT (result)::text FROM cypher(%s, $CYPHER$%s$CYPHER$, %s) AS (result agtype)",
		quoteLiteral(c.name), cypherBody, paramsExpr,
	)

	rows, err := c.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, &StatementError{Cypher: cypherBody, Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &StatementError{Cypher: cypherBody, Err: err}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &StatementError{Cypher: cypherBody, Err: err}
	}
	return out, nil
}

// Exists runs a MATCH-only cypherBody (expected to RETURN a single
// boolean or a node) and reports whether it produced any rows.
func (c *Client) Exists(ctx context.Context, cypherBody string, params map[string]any) (bool, error) {
	rows, err := c.Run(ctx, cypherBody, params)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// buildParamsExpr renders the Cypher parameter map as a
// jsonb_build_object(...)::text::agtype SQL expression. Only the map's
// keys are interpolated into the SQL text; they are Cypher parameter
// names chosen by this module's own code (e.g. "fqn", "props"), never
// content read from a pattern, catalog row, or LLM response. Every
// value is bound through an ordinary positional pgx parameter.
func buildParamsExpr(params map[string]any) (string, []any) {
	if len(params) == 0 {
		return "NULL", nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("jsonb_build_object(")
	args := make([]any, 0, len(params))
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		args = append(args, params[k])
		fmt.Fprintf(&b, "%s, $%d", quoteLiteral(k), len(args))
	}
	b.WriteString(")::text::agtype")
	return b.String(), args
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
