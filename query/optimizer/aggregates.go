package optimizer

import (
	"fmt"

	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/transform"
)

// RewriteAggregates computes group aggregates in the grouped select
// itself. Each AggregateSubquery becomes a column of the select named by its
// group alias, and the correlated subquery is used only when that select is
// not part of the tree.
func RewriteAggregates(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	lookup := make(map[ast.Alias][]*ast.AggregateSubquery)
	ast.Inspect(n, func(n ast.Node) bool {
		if a, ok := n.(*ast.AggregateSubquery); ok {
			lookup[a.GroupAlias] = append(lookup[a.GroupAlias], a)
		}
		return true
	})
	if len(lookup) == 0 {
		return n, transform.SameTree, nil
	}

	mapped := make(map[string]*ast.Column)
	key := func(a *ast.AggregateSubquery) string {
		return string(a.GroupAlias) + ":" + ast.Format(a.InGroup)
	}
	return transform.Node(n, func(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
		switch n := n.(type) {
		case *ast.Select:
			aggs := lookup[n.Alias]
			if len(aggs) == 0 {
				return n, transform.SameTree, nil
			}
			ns := *n
			ns.Columns = append([]ast.ColumnDecl(nil), n.Columns...)
			for _, a := range aggs {
				k := key(a)
				if _, ok := mapped[k]; ok {
					continue
				}
				name := fmt.Sprintf("agg%d", len(ns.Columns))
				ns.Columns = append(ns.Columns, ast.ColumnDecl{Name: name, Expr: a.InGroup})
				mapped[k] = &ast.Column{Alias: n.Alias, Name: name, Typ: a.Type()}
			}
			return &ns, transform.NewTree, nil
		case *ast.AggregateSubquery:
			if c, ok := mapped[key(n)]; ok {
				return c, transform.NewTree, nil
			}
			return n.Subquery, transform.NewTree, nil
		}
		return n, transform.SameTree, nil
	})
}
