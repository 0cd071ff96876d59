package optimizer

import (
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/transform"
)

// NormalizeDelete filters the target table directly when the bound
// EXISTS reads that same table and nothing else.
func NormalizeDelete(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	d, ok := n.(*ast.Delete)
	if !ok {
		return n, transform.SameTree, nil
	}
	where, ok, err := collapseTarget(d.Table, d.Where)
	if err != nil || !ok {
		return n, transform.SameTree, err
	}
	return &ast.Delete{Table: d.Table, Where: where}, transform.NewTree, nil
}

// NormalizeUpdate is NormalizeDelete for updates.
func NormalizeUpdate(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	u, ok := n.(*ast.Update)
	if !ok {
		return n, transform.SameTree, nil
	}
	where, ok, err := collapseTarget(u.Table, u.Where)
	if err != nil || !ok {
		return n, transform.SameTree, err
	}
	return &ast.Update{Table: u.Table, Where: where, Assignments: u.Assignments}, transform.NewTree, nil
}

// NormalizeInsert leaves database generated columns out of inserts.
func NormalizeInsert(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	ins, ok := n.(*ast.Insert)
	if !ok {
		return n, transform.SameTree, nil
	}
	var keep []ast.Assignment
	for _, a := range ins.Assignments {
		if !a.Computed {
			keep = append(keep, a)
		}
	}
	if len(keep) == len(ins.Assignments) {
		return n, transform.SameTree, nil
	}
	return &ast.Insert{Table: ins.Table, Assignments: keep}, transform.NewTree, nil
}

func collapseTarget(table *ast.Table, where ast.Node) (ast.Node, bool, error) {
	ex, ok := where.(*ast.Exists)
	if !ok {
		return nil, false, nil
	}
	sel := ex.Select
	src, ok := sel.From.(*ast.Table)
	if !ok || src.Name != table.Name || !sel.IsDefaultScope() {
		return nil, false, nil
	}
	out, _, err := transform.Columns(sel.Where, func(c *ast.Column) (ast.Node, bool) {
		if c.Alias != src.Alias {
			return c, false
		}
		return &ast.Column{Alias: table.Alias, Name: c.Name, Typ: c.Typ}, true
	})
	if err != nil {
		return nil, false, err
	}
	var keep []ast.Node
	for _, p := range ast.SplitAnd(out) {
		if b, ok := p.(*ast.Binary); ok && b.Op == ast.OpEq && ast.Format(b.Left) == ast.Format(b.Right) {
			continue
		}
		keep = append(keep, p)
	}
	return ast.And(keep...), true, nil
}
