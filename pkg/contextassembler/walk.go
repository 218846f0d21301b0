// Package contextassembler builds the compact prompt context the LLM
// Extractor sends alongside a pattern's SQL: the candidate objects the
// statement appears to touch, their columns, and view/function
// definitions, trimmed to fit a token budget.
package contextassembler

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// relevance ranks how strongly a candidate object reference should
// survive trimming: appearing in the SELECT projection outranks a bare
// FROM/JOIN reference, which outranks an object introduced only inside
// a WHERE-clause subquery.
type relevance int

const (
	relevanceWhereOnly relevance = iota
	relevanceFromJoin
	relevanceSelectProjection
)

// tableRef is one candidate table/view reference collected from the
// parse tree, keyed by (schema, name) with alias tracked so qualified
// column references in other clauses can be attributed back to it.
type tableRef struct {
	schema    string
	name      string
	alias     string
	relevance relevance
}

// funcRef is one candidate function/procedure call collected from the
// parse tree.
type funcRef struct {
	schema string
	name   string
}

// collected accumulates the walk's output. Table/function references
// are deduplicated by (schema, name); a later reference at higher
// relevance upgrades an existing entry instead of duplicating it.
type collected struct {
	tables    []*tableRef
	tableKeys map[string]*tableRef
	funcs     []*funcRef
	funcKeys  map[string]bool
}

func newCollected() *collected {
	return &collected{
		tableKeys: make(map[string]*tableRef),
		funcKeys:  make(map[string]bool),
	}
}

func (c *collected) addTable(schema, name, alias string, rel relevance) {
	if name == "" {
		return
	}
	key := schema + "." + name
	if existing, ok := c.tableKeys[key]; ok {
		if rel > existing.relevance {
			existing.relevance = rel
		}
		if alias != "" && existing.alias == "" {
			existing.alias = alias
		}
		return
	}
	t := &tableRef{schema: schema, name: name, alias: alias, relevance: rel}
	c.tableKeys[key] = t
	c.tables = append(c.tables, t)
}

func (c *collected) addFunc(schema, name string) {
	if name == "" {
		return
	}
	key := schema + "." + name
	if c.funcKeys[key] {
		return
	}
	c.funcKeys[key] = true
	c.funcs = append(c.funcs, &funcRef{schema: schema, name: name})
}

func (c *collected) boostAlias(alias string, rel relevance) {
	if alias == "" {
		return
	}
	for _, t := range c.tables {
		if t.alias == alias || (t.alias == "" && t.name == alias) {
			if rel > t.relevance {
				t.relevance = rel
			}
		}
	}
}

// collectReferences parses sql and walks it for candidate object and
// function references, grouped by the clause relevance used to trim
// the assembled context to the token budget.
func collectReferences(sql string) (*collected, error) {
	parsed, err := pg_query.Parse(sql)
	if err != nil {
		return nil, err
	}
	out := newCollected()
	for _, raw := range parsed.Stmts {
		walkStmt(raw.Stmt, out, relevanceFromJoin)
	}
	return out, nil
}

func walkStmt(node *pg_query.Node, out *collected, fromRelevance relevance) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		walkSelect(n.SelectStmt, out, fromRelevance)
	case *pg_query.Node_InsertStmt:
		if n.InsertStmt.Relation != nil {
			out.addTable(n.InsertStmt.Relation.Schemaname, n.InsertStmt.Relation.Relname, "", relevanceSelectProjection)
		}
		walkStmt(n.InsertStmt.SelectStmt, out, fromRelevance)
	case *pg_query.Node_UpdateStmt:
		if n.UpdateStmt.Relation != nil {
			out.addTable(n.UpdateStmt.Relation.Schemaname, n.UpdateStmt.Relation.Relname, "", relevanceSelectProjection)
		}
		for _, from := range n.UpdateStmt.FromClause {
			walkFromNode(from, out, relevanceFromJoin)
		}
		walkExpr(n.UpdateStmt.WhereClause, out, relevanceWhereOnly)
	case *pg_query.Node_DeleteStmt:
		if n.DeleteStmt.Relation != nil {
			out.addTable(n.DeleteStmt.Relation.Schemaname, n.DeleteStmt.Relation.Relname, "", relevanceSelectProjection)
		}
		for _, using := range n.DeleteStmt.UsingClause {
			walkFromNode(using, out, relevanceFromJoin)
		}
		walkExpr(n.DeleteStmt.WhereClause, out, relevanceWhereOnly)
	case *pg_query.Node_CommonTableExpr:
		walkStmt(n.CommonTableExpr.Ctequery, out, fromRelevance)
	}
}

func walkSelect(sel *pg_query.SelectStmt, out *collected, fromRelevance relevance) {
	if sel == nil {
		return
	}
	walkSelect(sel.Larg, out, fromRelevance)
	walkSelect(sel.Rarg, out, fromRelevance)

	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			walkStmt(cte, out, fromRelevance)
		}
	}
	for _, from := range sel.FromClause {
		walkFromNode(from, out, fromRelevance)
	}
	for _, target := range sel.TargetList {
		walkExpr(target, out, relevanceSelectProjection)
	}
	walkExpr(sel.WhereClause, out, relevanceWhereOnly)
	walkExpr(sel.HavingClause, out, relevanceWhereOnly)
}

func walkFromNode(node *pg_query.Node, out *collected, rel relevance) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		out.addTable(n.RangeVar.Schemaname, n.RangeVar.Relname, n.RangeVar.Alias.GetAliasname(), rel)
	case *pg_query.Node_JoinExpr:
		walkFromNode(n.JoinExpr.Larg, out, rel)
		walkFromNode(n.JoinExpr.Rarg, out, rel)
		walkExpr(n.JoinExpr.Quals, out, rel)
	case *pg_query.Node_RangeSubselect:
		walkStmt(n.RangeSubselect.Subquery, out, rel)
	case *pg_query.Node_RangeFunction:
		for _, fn := range n.RangeFunction.Functions {
			walkExpr(fn, out, rel)
		}
	}
}

func walkExpr(node *pg_query.Node, out *collected, rel relevance) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_ResTarget:
		walkExpr(n.ResTarget.Val, out, rel)
	case *pg_query.Node_ColumnRef:
		if len(n.ColumnRef.Fields) >= 2 {
			if s, ok := n.ColumnRef.Fields[len(n.ColumnRef.Fields)-2].Node.(*pg_query.Node_String_); ok {
				out.boostAlias(s.String_.Sval, rel)
			}
		}
	case *pg_query.Node_FuncCall:
		if len(n.FuncCall.Funcname) > 0 {
			schema, name := splitFuncName(n.FuncCall.Funcname)
			out.addFunc(schema, name)
		}
		for _, arg := range n.FuncCall.Args {
			walkExpr(arg, out, rel)
		}
	case *pg_query.Node_SubLink:
		walkStmt(n.SubLink.Subselect, out, rel)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			walkExpr(arg, out, rel)
		}
	case *pg_query.Node_AExpr:
		walkExpr(n.AExpr.Lexpr, out, rel)
		walkExpr(n.AExpr.Rexpr, out, rel)
	case *pg_query.Node_TypeCast:
		walkExpr(n.TypeCast.Arg, out, rel)
	case *pg_query.Node_CaseExpr:
		walkExpr(n.CaseExpr.Arg, out, rel)
		for _, w := range n.CaseExpr.Args {
			walkExpr(w, out, rel)
		}
		walkExpr(n.CaseExpr.Defresult, out, rel)
	case *pg_query.Node_CaseWhen:
		walkExpr(n.CaseWhen.Expr, out, rel)
		walkExpr(n.CaseWhen.Result, out, rel)
	case *pg_query.Node_CoalesceExpr:
		for _, arg := range n.CoalesceExpr.Args {
			walkExpr(arg, out, rel)
		}
	case *pg_query.Node_List:
		for _, item := range n.List.Items {
			walkExpr(item, out, rel)
		}
	}
}

func splitFuncName(parts []*pg_query.Node) (schema, name string) {
	var strs []string
	for _, p := range parts {
		if s, ok := p.Node.(*pg_query.Node_String_); ok {
			strs = append(strs, s.String_.Sval)
		}
	}
	switch len(strs) {
	case 0:
		return "", ""
	case 1:
		return "", strs[0]
	default:
		return strs[len(strs)-2], strs[len(strs)-1]
	}
}
