package fingerprint

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Sentinel markers substituted for every literal value. They are
// alphanumeric-only so pg_query.Deparse never needs to escape them,
// which lets applyPlaceholderMarkers do a plain string replace after
// deparsing instead of a second parse pass.
const (
	markerString = "pglumi0lit0str0marker"
	markerNumber = "pglumi0lit0num0marker"
	markerBool   = "pglumi0lit0bool0marker"
	markerNull   = "pglumi0lit0null0marker"
)

// maskNode walks a parse tree in place, replacing every A_Const leaf
// with a typed sentinel string constant and collapsing IN-lists of
// constants to a single element. Node types absent from this switch
// (RangeVar, ParamRef, TypeCast target types, and similar leaves) hold
// no literals worth masking and are left untouched.
func maskNode(node *pg_query.Node) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		maskSelectStmt(n.SelectStmt)
	case *pg_query.Node_InsertStmt:
		maskInsertStmt(n.InsertStmt)
	case *pg_query.Node_UpdateStmt:
		maskUpdateStmt(n.UpdateStmt)
	case *pg_query.Node_DeleteStmt:
		maskDeleteStmt(n.DeleteStmt)
	case *pg_query.Node_CommonTableExpr:
		maskNode(n.CommonTableExpr.Ctequery)
	case *pg_query.Node_RangeSubselect:
		maskNode(n.RangeSubselect.Subquery)
	case *pg_query.Node_JoinExpr:
		maskNode(n.JoinExpr.Larg)
		maskNode(n.JoinExpr.Rarg)
		maskNode(n.JoinExpr.Quals)
	case *pg_query.Node_ResTarget:
		maskNode(n.ResTarget.Val)
	case *pg_query.Node_SubLink:
		maskNode(n.SubLink.Testexpr)
		maskNode(n.SubLink.Subselect)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			maskNode(arg)
		}
	case *pg_query.Node_AExpr:
		maskAExpr(n.AExpr)
	case *pg_query.Node_NullTest:
		maskNode(n.NullTest.Arg)
	case *pg_query.Node_BooleanTest:
		maskNode(n.BooleanTest.Arg)
	case *pg_query.Node_TypeCast:
		maskNode(n.TypeCast.Arg)
	case *pg_query.Node_FuncCall:
		for _, arg := range n.FuncCall.Args {
			maskNode(arg)
		}
	case *pg_query.Node_CaseExpr:
		maskNode(n.CaseExpr.Arg)
		for _, when := range n.CaseExpr.Args {
			maskNode(when)
		}
		maskNode(n.CaseExpr.Defresult)
	case *pg_query.Node_CaseWhen:
		maskNode(n.CaseWhen.Expr)
		maskNode(n.CaseWhen.Result)
	case *pg_query.Node_CoalesceExpr:
		for _, arg := range n.CoalesceExpr.Args {
			maskNode(arg)
		}
	case *pg_query.Node_MinMaxExpr:
		for _, arg := range n.MinMaxExpr.Args {
			maskNode(arg)
		}
	case *pg_query.Node_RowExpr:
		for _, arg := range n.RowExpr.Args {
			maskNode(arg)
		}
	case *pg_query.Node_List:
		for _, item := range n.List.Items {
			maskNode(item)
		}
	case *pg_query.Node_NamedArgExpr:
		maskNode(n.NamedArgExpr.Arg)
	case *pg_query.Node_SortBy:
		maskNode(n.SortBy.Node)
	case *pg_query.Node_WindowDef:
		for _, p := range n.WindowDef.PartitionClause {
			maskNode(p)
		}
		for _, o := range n.WindowDef.OrderClause {
			maskNode(o)
		}
	case *pg_query.Node_AIndirection:
		maskNode(n.AIndirection.Arg)
	case *pg_query.Node_AArrayExpr:
		for _, el := range n.AArrayExpr.Elements {
			maskNode(el)
		}
	case *pg_query.Node_AConst:
		maskConst(n.AConst)
	}
}

func maskSelectStmt(sel *pg_query.SelectStmt) {
	if sel == nil {
		return
	}
	maskSelectStmt(sel.Larg)
	maskSelectStmt(sel.Rarg)

	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			maskNode(cte)
		}
	}
	for _, from := range sel.FromClause {
		maskNode(from)
	}
	for _, target := range sel.TargetList {
		maskNode(target)
	}
	maskNode(sel.WhereClause)
	maskNode(sel.HavingClause)
	for _, g := range sel.GroupClause {
		maskNode(g)
	}
	for _, o := range sel.SortClause {
		maskNode(o)
	}
	maskNode(sel.LimitCount)
	maskNode(sel.LimitOffset)
}

func maskInsertStmt(ins *pg_query.InsertStmt) {
	if ins == nil {
		return
	}
	maskNode(ins.SelectStmt)
	if ins.OnConflictClause != nil {
		maskNode(ins.OnConflictClause.WhereClause)
		for _, target := range ins.OnConflictClause.TargetList {
			maskNode(target)
		}
	}
}

func maskUpdateStmt(upd *pg_query.UpdateStmt) {
	if upd == nil {
		return
	}
	for _, target := range upd.TargetList {
		maskNode(target)
	}
	for _, from := range upd.FromClause {
		maskNode(from)
	}
	maskNode(upd.WhereClause)
}

func maskDeleteStmt(del *pg_query.DeleteStmt) {
	if del == nil {
		return
	}
	for _, using := range del.UsingClause {
		maskNode(using)
	}
	maskNode(del.WhereClause)
}

// maskAExpr masks both operands and, for the IN operator, collapses a
// literal list to a single masked element once every element in it is
// itself a bare constant.
func maskAExpr(expr *pg_query.A_Expr) {
	if expr == nil {
		return
	}
	maskNode(expr.Lexpr)

	if expr.Kind == pg_query.A_Expr_Kind_AEXPR_IN {
		if list, ok := expr.Rexpr.Node.(*pg_query.Node_List); ok {
			allConst := len(list.List.Items) > 0
			for _, item := range list.List.Items {
				if _, ok := item.Node.(*pg_query.Node_AConst); !ok {
					allConst = false
					break
				}
			}
			if allConst {
				first := list.List.Items[0]
				maskNode(first)
				list.List.Items = []*pg_query.Node{first}
				return
			}
		}
	}

	maskNode(expr.Rexpr)
}

// maskConst replaces c's value in place with a typed sentinel string,
// so the shape of the literal (integer vs float vs string vs boolean
// vs NULL) collapses to one of four placeholder classes regardless of
// its original value.
func maskConst(c *pg_query.A_Const) {
	if c == nil {
		return
	}

	if c.Isnull {
		c.Val = &pg_query.A_Const_Sval{Sval: &pg_query.String{Sval: markerNull}}
		c.Isnull = false
		return
	}

	switch c.Val.(type) {
	case *pg_query.A_Const_Ival, *pg_query.A_Const_Fval:
		c.Val = &pg_query.A_Const_Sval{Sval: &pg_query.String{Sval: markerNumber}}
	case *pg_query.A_Const_Boolval:
		c.Val = &pg_query.A_Const_Sval{Sval: &pg_query.String{Sval: markerBool}}
	default:
		c.Val = &pg_query.A_Const_Sval{Sval: &pg_query.String{Sval: markerString}}
	}
}
