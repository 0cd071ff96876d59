package optimizer

import (
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/columns"
	"github.com/satishbabariya/objql/query/transform"
)

// RewriteCrossApply turns applies whose right side depends on the left row
// only through its WHERE clause into plain joins on that clause. Applies
// that remain need a dialect with lateral joins.
func RewriteCrossApply(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	return transform.Node(n, func(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
		j, ok := n.(*ast.Join)
		if !ok || !j.Join.IsApply() {
			return n, transform.SameTree, nil
		}
		switch right := j.Right.(type) {
		case *ast.Table:
			if j.Join == ast.JoinCrossApply {
				return &ast.Join{Join: ast.JoinCross, Left: j.Left, Right: right}, transform.NewTree, nil
			}
			return &ast.Join{Join: ast.JoinLeft, Left: j.Left, Right: right, Condition: ast.NewLiteral(true)}, transform.NewTree, nil
		case *ast.Select:
			out, ok, err := decorrelate(j, right)
			if err != nil || !ok {
				return n, transform.SameTree, err
			}
			return out, transform.NewTree, nil
		}
		return n, transform.SameTree, nil
	})
}

func decorrelate(j *ast.Join, right *ast.Select) (ast.Node, bool, error) {
	if paged(right) || right.Distinct || len(right.GroupBy) > 0 || hasAggregates(right) {
		return nil, false, nil
	}
	rest := *right
	rest.Where = nil
	if ast.References(&rest, ast.DeclaredAliases(j.Left)) {
		return nil, false, nil
	}

	where := right.Where
	if where != nil {
		sources := ast.SourceAliases(right.From)
		inner := make(map[ast.Alias]bool, len(sources))
		for _, a := range sources {
			inner[a] = true
		}
		// Only the right side's own columns move into its column list; the
		// left side's columns stay in the join condition.
		pc, err := columns.ProjectWith(where, columns.Options{
			CanBeColumn: func(n ast.Node) bool {
				c, ok := n.(*ast.Column)
				return ok && inner[c.Alias]
			},
			Existing: right.Columns,
		}, right.Alias, sources...)
		if err != nil {
			return nil, false, err
		}
		rest.Columns = pc.Columns
		where = pc.Projector
	}

	kind := ast.JoinLeft
	switch {
	case where == nil && j.Join == ast.JoinCrossApply:
		kind = ast.JoinCross
	case where == nil:
		where = ast.NewLiteral(true)
	case j.Join == ast.JoinCrossApply:
		kind = ast.JoinInner
	}
	return &ast.Join{Join: kind, Left: j.Left, Right: &rest, Condition: where}, true, nil
}
