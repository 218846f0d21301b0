package fingerprint

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// classifyNonDataFlow reports whether parsed carries no table/column
// lineage: session settings, introspection, maintenance, or
// transaction-control statements. Multiple statements in one raw
// string are rejected outright rather than classified per-statement,
// since a SqlPattern is keyed to exactly one statement.
func classifyNonDataFlow(parsed *pg_query.ParseResult) (Reason, bool) {
	if len(parsed.Stmts) > 1 {
		return ReasonMultiStatement, true
	}

	node := parsed.Stmts[0].Stmt
	if node == nil {
		return ReasonEmpty, true
	}

	switch node.Node.(type) {
	case *pg_query.Node_VariableSetStmt,
		*pg_query.Node_VariableShowStmt,
		*pg_query.Node_VacuumStmt,
		*pg_query.Node_TransactionStmt,
		*pg_query.Node_DiscardStmt,
		*pg_query.Node_ListenStmt,
		*pg_query.Node_UnlistenStmt,
		*pg_query.Node_NotifyStmt,
		*pg_query.Node_CheckPointStmt,
		*pg_query.Node_ExplainStmt,
		*pg_query.Node_PrepareStmt,
		*pg_query.Node_ExecuteStmt,
		*pg_query.Node_DeallocateStmt,
		*pg_query.Node_LoadStmt,
		*pg_query.Node_ClusterStmt,
		*pg_query.Node_ReindexStmt:
		return ReasonNonDataFlow, true
	}

	return "", false
}
